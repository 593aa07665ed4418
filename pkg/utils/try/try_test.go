package try_test

import (
	"errors"
	"testing"

	"github.com/tencentblueking/bkpaas-core/pkg/utils/try"
)

type fataler struct {
	fatal [][]any
}

func (f *fataler) Fatal(args ...any) {
	f.fatal = append(f.fatal, args)
}

type helperFataler struct {
	fataler

	helper uint
}

func (hf *helperFataler) Helper() {
	hf.helper += 1
}

func TestTry(t *testing.T) {
	t.Run("when it does not have error,", func(t *testing.T) {
		expected := 42
		testee := try.To(try.Done(expected))

		t.Run("Get returns the value", func(t *testing.T) {
			actual, err := testee.Get()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if actual != expected {
				t.Errorf("unexpected result: (actual, expected) = (%d, %d)", actual, expected)
			}
		})

		t.Run("OrFatal returns the value without calling Fatal", func(t *testing.T) {
			f := &fataler{}
			actual := testee.OrFatal(f)
			if actual != expected {
				t.Errorf("unexpected result: (actual, expected) = (%d, %d)", actual, expected)
			}
			if len(f.fatal) != 0 {
				t.Errorf("Fatal should not be called: %v", f.fatal)
			}
		})

		t.Run("OrDefault returns the value", func(t *testing.T) {
			if actual := testee.OrDefault(-1); actual != expected {
				t.Errorf("unexpected result: (actual, expected) = (%d, %d)", actual, expected)
			}
		})
	})

	t.Run("when it has error,", func(t *testing.T) {
		expected := errors.New("fake error")
		testee := try.To(0, expected)

		t.Run("Get returns the error", func(t *testing.T) {
			if _, err := testee.Get(); !errors.Is(err, expected) {
				t.Errorf("unexpected error: %v", err)
			}
		})

		t.Run("OrFatal calls Fatal with the error", func(t *testing.T) {
			f := &fataler{}
			testee.OrFatal(f)
			if len(f.fatal) != 1 {
				t.Fatalf("unexpected Fatal calls: %v", f.fatal)
			}
			if len(f.fatal[0]) != 1 || f.fatal[0][0] != expected {
				t.Errorf("unexpected Fatal args: %v", f.fatal[0])
			}
		})

		t.Run("OrFatal calls Helper when the Fataler has one", func(t *testing.T) {
			hf := &helperFataler{}
			testee.OrFatal(hf)
			if hf.helper == 0 {
				t.Error("Helper should be called")
			}
			if len(hf.fatal) != 1 {
				t.Errorf("unexpected Fatal calls: %v", hf.fatal)
			}
		})

		t.Run("OrDefault returns the default", func(t *testing.T) {
			if actual := testee.OrDefault(-1); actual != -1 {
				t.Errorf("unexpected result: %d", actual)
			}
		})
	})
}
