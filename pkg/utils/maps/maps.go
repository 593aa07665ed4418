package maps

// KeysOf flattens a map into the slice of its keys.
//
// Ordering is not specified.
func KeysOf[K comparable, T any](m map[K]T) []K {
	sli := make([]K, 0, len(m))
	for k := range m {
		sli = append(sli, k)
	}
	return sli
}

// ValuesOf flattens a map into the slice of its values.
//
// Ordering is not specified.
func ValuesOf[K comparable, T any](m map[K]T) []T {
	sli := make([]T, 0, len(m))
	for _, v := range m {
		sli = append(sli, v)
	}
	return sli
}

// DerefOf converts map-of-pointers to map-of-values, skipping nils.
func DerefOf[K comparable, T any](m map[K]*T) map[K]T {
	ret := make(map[K]T, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		ret[k] = *v
	}
	return ret
}
