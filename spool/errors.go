package spool

import (
	"fmt"
)

type ErrQueueExists string

func (e ErrQueueExists) Error() string {
	return fmt.Sprintf("The queue %s already exists.", string(e))
}

type ErrQueueNotFound string

func (e ErrQueueNotFound) Error() string {
	return fmt.Sprintf("The queue %s was not found.", string(e))
}

type ErrQueueEmpty string

func (e ErrQueueEmpty) Error() string {
	return fmt.Sprintf("The queue %s has no entries.", string(e))
}

type ErrInvalidName string

func (e ErrInvalidName) Error() string {
	return fmt.Sprintf("%s is not a valid queue name.", string(e))
}

type ErrEntryCorrupt string

func (e ErrEntryCorrupt) Error() string {
	return fmt.Sprintf("The entry %s failed checksum validation.", string(e))
}

type ErrQuotaExceeded struct {
	// The resource that ran out: "files", "directories", "files per
	// directory" or "bytes".
	Resource string
}

func (e ErrQuotaExceeded) Error() string {
	return fmt.Sprintf("The %s quota has been exceeded.", e.Resource)
}
