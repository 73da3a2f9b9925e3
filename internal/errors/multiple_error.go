package errors

import (
	"strings"
)

// Collects the errors from a batch operation into a single error value.
// The individual errors stay reachable via Unwrap so callers can still
// match them with errors.Is/As.
type MultipleError struct {
	Errors      []error
	Description string
}

// Wraps the given errors under a single description. Returns nil when
// the list is empty and the error itself when there is only one, so
// callers can collect unconditionally and wrap at the end.
func NewMultipleError(desc string, errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	// Make a copy of the errors so that the caller won't have its error
	// list suddenly allocated on heap.
	errCopy := make([]error, len(errs))
	copy(errCopy, errs)
	return &MultipleError{
		Errors:      errCopy,
		Description: desc,
	}
}

func (m *MultipleError) Error() string {
	strs := make([]string, len(m.Errors))
	for i, e := range m.Errors {
		strs[i] = e.Error()
	}
	return m.Description + ": " + strings.Join(strs, ", ")
}

func (m *MultipleError) Unwrap() []error {
	return m.Errors
}
