package errors_test

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"testing"

	xe "github.com/tencentblueking/bkpaas-core/pkg/errors"
)

type rootErr struct{}

func (rootErr) Error() string {
	return "error type for test"
}

func createError(message string) error {
	return xe.New(message)
}

func TestNewError(t *testing.T) {
	t.Run("it knows location where it is created.", func(t *testing.T) {
		testee := createError("test error")
		errMessage := testee.Error()

		_, thisFile, _, _ := runtime.Caller(0)

		if !strings.Contains(errMessage, "createError") {
			t.Errorf("it does not know function name: %s", errMessage)
		}
		if !strings.Contains(errMessage, thisFile) {
			t.Errorf("it does not know file (%s): %s", thisFile, errMessage)
		}
	})

	t.Run("it supports errors protocol", func(t *testing.T) {
		root := rootErr{}

		err := xe.Wrap(
			fmt.Errorf("%w", fmt.Errorf("%w", root)),
		)

		if !errors.Is(err, root) {
			t.Error("it does not support unwrapping.")
		}
	})

	t.Run("WrapWithNote carries the note in the message", func(t *testing.T) {
		err := xe.WrapWithNote("while syncing processes", rootErr{})
		if !strings.Contains(err.Error(), "while syncing processes") {
			t.Errorf("note is missing: %s", err.Error())
		}
		if !errors.Is(err, rootErr{}) {
			t.Error("it does not support unwrapping.")
		}
	})
}
