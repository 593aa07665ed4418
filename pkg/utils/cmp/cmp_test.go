package cmp_test

import (
	"testing"

	"github.com/tencentblueking/bkpaas-core/pkg/utils/cmp"
)

func TestSliceEq(t *testing.T) {
	theory := func(a []string, b []string, want bool) func(*testing.T) {
		return func(t *testing.T) {
			if got := cmp.SliceEq(a, b); got != want {
				t.Errorf("unexpected result: (actual, expected) = (%v, %v)", got, want)
			}
		}
	}

	t.Run("equal slices", theory([]string{"web", "worker"}, []string{"web", "worker"}, true))
	t.Run("different order", theory([]string{"web", "worker"}, []string{"worker", "web"}, false))
	t.Run("different length", theory([]string{"web"}, []string{"web", "worker"}, false))
	t.Run("both empty", theory(nil, []string{}, true))
}

func TestSliceContentEq(t *testing.T) {
	theory := func(a []string, b []string, want bool) func(*testing.T) {
		return func(t *testing.T) {
			if got := cmp.SliceContentEq(a, b); got != want {
				t.Errorf("unexpected result: (actual, expected) = (%v, %v)", got, want)
			}
		}
	}

	t.Run("same content, different order", theory(
		[]string{"web", "worker", "beat"}, []string{"beat", "web", "worker"}, true,
	))
	t.Run("duplicates count", theory(
		[]string{"web", "web", "worker"}, []string{"web", "worker", "worker"}, false,
	))
	t.Run("disjoint", theory([]string{"web"}, []string{"worker"}, false))
}

func TestSliceEqWith(t *testing.T) {
	type spec struct{ name string }
	a := []spec{{name: "web"}, {name: "worker"}}
	b := []string{"web", "worker"}

	if !cmp.SliceEqWith(a, b, func(s spec, name string) bool { return s.name == name }) {
		t.Error("unexpected result: slices should be equal under the predicate")
	}
	if cmp.SliceEqWith(a, b[:1], func(s spec, name string) bool { return s.name == name }) {
		t.Error("unexpected result: slices of different length are never equal")
	}
}

func TestSliceContentEqWith(t *testing.T) {
	type spec struct{ name string }
	pred := func(s spec, name string) bool { return s.name == name }

	if !cmp.SliceContentEqWith(
		[]spec{{name: "worker"}, {name: "web"}}, []string{"web", "worker"}, pred,
	) {
		t.Error("unexpected result: content should match ignoring order")
	}
	if cmp.SliceContentEqWith(
		[]spec{{name: "web"}, {name: "web"}}, []string{"web", "worker"}, pred,
	) {
		t.Error("unexpected result: each element needs a distinct counterpart")
	}
}

func TestMapEq(t *testing.T) {
	theory := func(a map[string]string, b map[string]string, want bool) func(*testing.T) {
		return func(t *testing.T) {
			if got := cmp.MapEq(a, b); got != want {
				t.Errorf("unexpected result: (actual, expected) = (%v, %v)", got, want)
			}
		}
	}

	t.Run("equal maps", theory(
		map[string]string{"FOO": "bar", "BAZ": "qux"},
		map[string]string{"BAZ": "qux", "FOO": "bar"},
		true,
	))
	t.Run("different values", theory(
		map[string]string{"FOO": "bar"}, map[string]string{"FOO": "baz"}, false,
	))
	t.Run("extra key", theory(
		map[string]string{"FOO": "bar"}, map[string]string{"FOO": "bar", "BAZ": "qux"}, false,
	))
	t.Run("both empty", theory(nil, map[string]string{}, true))
}

func TestMapEqWith(t *testing.T) {
	a := map[string]int{"web": 2, "worker": 1}
	b := map[string]string{"web": "2", "worker": "1"}

	pred := func(replicas int, repr string) bool {
		return repr == map[int]string{1: "1", 2: "2"}[replicas]
	}
	if !cmp.MapEqWith(a, b, pred) {
		t.Error("unexpected result: maps should be equal under the predicate")
	}
	if cmp.MapEqWith(a, map[string]string{"web": "2"}, pred) {
		t.Error("unexpected result: maps of different size are never equal")
	}
}
