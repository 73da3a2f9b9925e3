package errors

import (
	goerrors "errors"
	"testing"

	"github.com/liquidgecka/testlib"
)

func TestNewMultipleError_Empty(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	T.Equal(NewMultipleError("cleanup", nil), nil)
	T.Equal(NewMultipleError("cleanup", []error{}), nil)
}

func TestNewMultipleError_Single(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	err := goerrors.New("boom")
	T.Equal(NewMultipleError("cleanup", []error{err}), err)
}

func TestNewMultipleError_Many(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	e1 := goerrors.New("first")
	e2 := goerrors.New("second")
	err := NewMultipleError("cleanup", []error{e1, e2})
	T.ExpectErrorMessage(err, "cleanup: first, second")
	T.Equal(goerrors.Is(err, e1), true)
	T.Equal(goerrors.Is(err, e2), true)
}

func TestNewMultipleError_CopiesList(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	errs := []error{goerrors.New("first"), goerrors.New("second")}
	err := NewMultipleError("cleanup", errs)
	errs[0] = goerrors.New("mutated")
	T.ExpectErrorMessage(err, "cleanup: first, second")
}
