package slices

// Map applies mapper to each element of sli and collects the results.
//
// The element at index N of the returned slice is mapper(sli[N]).
func Map[T any, R any](sli []T, mapper func(v T) R) []R {
	ret := make([]R, len(sli))
	for nth, v := range sli {
		ret[nth] = mapper(v)
	}
	return ret
}

// Map over sli with a fallible mapper.
//
// On the first error, return (nil, error). Otherwise (mapped slice, nil).
func MapUntilError[T any, R any](sli []T, mapper func(v T) (R, error)) ([]R, error) {
	ret := make([]R, len(sli))
	for nth, v := range sli {
		r, err := mapper(v)
		if err != nil {
			return nil, err
		}
		ret[nth] = r
	}
	return ret, nil
}

// ToMap converts a slice into a map keyed with getkey.
//
// When keys collide, the later element wins.
func ToMap[T any, K comparable](sli []T, getkey func(v T) K) map[K]T {
	m := map[K]T{}
	for _, v := range sli {
		m[getkey(v)] = v
	}
	return m
}

// Filter returns elements of vs for which pred evaluates true.
func Filter[T any](vs []T, pred func(T) bool) []T {
	ret := []T{}
	for _, v := range vs {
		if pred(v) {
			ret = append(ret, v)
		}
	}
	return ret
}

// First returns the first element matching pred.
//
// The second return value is false when no element matches.
func First[T any](vs []T, pred func(T) bool) (T, bool) {
	for _, v := range vs {
		if pred(v) {
			return v, true
		}
	}
	return *new(T), false
}

// Contains reports whether vs has an element matching pred.
func Contains[T any](vs []T, pred func(T) bool) bool {
	_, ok := First(vs, pred)
	return ok
}
