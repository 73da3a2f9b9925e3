// Package quota tracks per owner resource limits and usage for the spool.
// Limits come from configuration (a default set plus optional per owner
// overrides) while usage is maintained live by the spool as queues and
// entries come and go.
package quota

import (
	"sync"
)

// Limits caps the resources a single owner may consume. A zero value for
// any field means that the resource is unlimited.
type Limits struct {
	// The maximum number of entry files across all of the owner's queues.
	MaxFiles uint64

	// The maximum number of queue directories the owner may create.
	MaxDirs uint64

	// The maximum number of entries in any single queue.
	MaxFilesPerDir uint64

	// The maximum total payload bytes across all of the owner's entries.
	MaxBytes uint64
}

// Table maps owner ids to their Limits, falling back to a default set for
// owners with no explicit entry. Safe for concurrent use.
type Table struct {
	lock     sync.RWMutex
	defaults Limits
	entries  map[int64]Limits
}

// NewTable creates a Table that answers with the given defaults for any
// owner that has no override.
func NewTable(defaults Limits) *Table {
	return &Table{
		defaults: defaults,
		entries:  make(map[int64]Limits),
	}
}

// Set installs or replaces the override for an owner.
func (t *Table) Set(owner int64, l Limits) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.entries[owner] = l
}

// Clear removes the override for an owner so that it falls back to the
// defaults.
func (t *Table) Clear(owner int64) {
	t.lock.Lock()
	defer t.lock.Unlock()
	delete(t.entries, owner)
}

// Lookup returns the effective Limits for an owner. The bool reports
// whether an explicit override existed.
func (t *Table) Lookup(owner int64) (Limits, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	if l, ok := t.entries[owner]; ok {
		return l, true
	}
	return t.defaults, false
}

func (t *Table) MaxFiles(owner int64) uint64 {
	l, _ := t.Lookup(owner)
	return l.MaxFiles
}

func (t *Table) MaxDirs(owner int64) uint64 {
	l, _ := t.Lookup(owner)
	return l.MaxDirs
}

func (t *Table) MaxFilesPerDir(owner int64) uint64 {
	l, _ := t.Lookup(owner)
	return l.MaxFilesPerDir
}

func (t *Table) MaxBytes(owner int64) uint64 {
	l, _ := t.Lookup(owner)
	return l.MaxBytes
}

// Usage counts the resources each owner currently consumes. Deltas may be
// negative; counters saturate at zero rather than wrapping so a missed
// decrement can not poison the accounting forever.
type Usage struct {
	lock    sync.Mutex
	entries map[int64]*counts
}

type counts struct {
	files uint64
	dirs  uint64
	bytes uint64
}

func NewUsage() *Usage {
	return &Usage{
		entries: make(map[int64]*counts),
	}
}

func (u *Usage) AddFiles(owner int64, delta int64) {
	u.lock.Lock()
	defer u.lock.Unlock()
	c := u.get(owner)
	c.files = apply(c.files, delta)
}

func (u *Usage) AddDirs(owner int64, delta int64) {
	u.lock.Lock()
	defer u.lock.Unlock()
	c := u.get(owner)
	c.dirs = apply(c.dirs, delta)
}

func (u *Usage) AddBytes(owner int64, delta int64) {
	u.lock.Lock()
	defer u.lock.Unlock()
	c := u.get(owner)
	c.bytes = apply(c.bytes, delta)
}

func (u *Usage) NumFiles(owner int64) uint64 {
	u.lock.Lock()
	defer u.lock.Unlock()
	if c, ok := u.entries[owner]; ok {
		return c.files
	}
	return 0
}

func (u *Usage) NumDirs(owner int64) uint64 {
	u.lock.Lock()
	defer u.lock.Unlock()
	if c, ok := u.entries[owner]; ok {
		return c.dirs
	}
	return 0
}

func (u *Usage) NumBytes(owner int64) uint64 {
	u.lock.Lock()
	defer u.lock.Unlock()
	if c, ok := u.entries[owner]; ok {
		return c.bytes
	}
	return 0
}

// Callers must hold the lock.
func (u *Usage) get(owner int64) *counts {
	c, ok := u.entries[owner]
	if !ok {
		c = &counts{}
		u.entries[owner] = c
	}
	return c
}

func apply(current uint64, delta int64) uint64 {
	if delta < 0 {
		sub := uint64(-delta)
		if sub > current {
			return 0
		}
		return current - sub
	}
	return current + uint64(delta)
}
