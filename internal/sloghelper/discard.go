package sloghelper

import (
	"context"
	"log/slog"
)

// log/slog does not yet ship a discard handler (see
// https://github.com/golang/go/issues/62005) so this fills the gap until
// one can be used from the standard library directly.
type DiscardHandler struct{}

func (DiscardHandler) Enabled(context.Context, slog.Level) bool {
	return false
}

func (DiscardHandler) Handle(context.Context, slog.Record) error {
	return nil
}

func (d DiscardHandler) WithAttrs([]slog.Attr) slog.Handler {
	return d
}

func (d DiscardHandler) WithGroup(string) slog.Handler {
	return d
}
