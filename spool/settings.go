package spool

import (
	"log/slog"
	"time"

	"github.com/liquidgecka/eventfs/internal/delayqueue"
	"github.com/liquidgecka/eventfs/internal/quota"
	"github.com/liquidgecka/eventfs/internal/workqueue"
)

const (
	// Entries that have not been popped after this long are removed.
	defaultTTL = time.Hour

	// How often the reaper sweeps the spool for expired entries that the
	// in memory timers missed.
	defaultReapInterval = time.Minute * 5
)

type Settings struct {
	// The directory that queues will be kept in. Each queue is a child
	// directory and each entry a file within it.
	BaseDirectory string

	// If this is set to something other than nil then logging will be
	// written to this output.
	BaseLogger *slog.Logger

	// How long an entry may sit unconsumed before it is removed. Zero
	// selects the default (one hour).
	DefaultTTL time.Duration

	// The DelayQueue used to schedule entry expirations and the periodic
	// reap sweep.
	DelayQueue *delayqueue.DelayQueue

	// The interval between reap sweeps. Zero selects the default (five
	// minutes).
	ReapInterval time.Duration

	// The WorkQueue that backing file removals are deferred onto so they
	// never run on a caller's critical path.
	RemoveQueue *workqueue.WorkQueue

	// Per owner limits and live usage counters. Both are required.
	Quotas *quota.Table
	Usage  *quota.Usage

	// When true every read re-hashes the payload and compares it against
	// the checksum header written at append time.
	VerifyChecksums bool
}
