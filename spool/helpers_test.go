package spool

import (
	"log/slog"

	"github.com/liquidgecka/testlib"

	"github.com/liquidgecka/eventfs/internal/delayqueue"
	"github.com/liquidgecka/eventfs/internal/quota"
	"github.com/liquidgecka/eventfs/internal/sloghelper"
	"github.com/liquidgecka/eventfs/internal/workqueue"
)

func NewTestLogger() *slog.Logger {
	return slog.New(sloghelper.DiscardHandler{})
}

// Builds a started Spool backed by a live delay queue and remove work
// queue. The returned function tears the whole stack down.
func newTestSpool(
	T *testlib.T,
	mod func(*Settings),
) (*Spool, func()) {
	dq := &delayqueue.DelayQueue{}
	dq.Start()
	wq := &workqueue.WorkQueue{}
	wq.Init(workqueue.Settings{})
	T.ExpectSuccess(wq.Start())
	settings := &Settings{
		BaseDirectory:   T.TempDir(),
		BaseLogger:      NewTestLogger(),
		DelayQueue:      dq,
		RemoveQueue:     wq,
		Quotas:          quota.NewTable(quota.Limits{}),
		Usage:           quota.NewUsage(),
		VerifyChecksums: true,
	}
	if mod != nil {
		mod(settings)
	}
	s := New(settings)
	T.ExpectSuccess(s.Start())
	return s, func() {
		s.Stop()
		T.ExpectSuccess(wq.Stop())
		T.ExpectSuccess(wq.Destroy())
		dq.Stop()
	}
}
