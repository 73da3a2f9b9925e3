// Package spool manages a self cleaning spool directory of event queues.
// Each queue is a directory under the base directory and each entry is a
// file inside it, written with a checksum header and named by a per queue
// sequence number so that lexical order is submission order.
//
// The spool never deletes backing files on a caller's path: every removal
// (pop, TTL expiry, queue removal, reap sweep) is packaged as a work request
// and drained by the remove work queue's background worker.
package spool

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/liquidgecka/eventfs/internal/backoff"
	"github.com/liquidgecka/eventfs/internal/delayqueue"
	"github.com/liquidgecka/eventfs/internal/sloghelper"
)

const (
	// Every entry file carries this suffix; anything else in a queue
	// directory is ignored by the scanner and the reaper.
	entrySuffix = ".ev"

	// Records the owner id of a queue directory so that usage accounting
	// survives a restart.
	ownerFile = ".owner"
)

type Spool struct {
	settings Settings
	log      *slog.Logger

	// Guards running, queues and all queueState data.
	lock    sync.Mutex
	running bool
	queues  map[string]*queueState

	// Drives the periodic reap sweep, slowing down while sweeps fail.
	reapToken   delayqueue.Token
	reapBackOff backoff.BackOff
}

type queueState struct {
	// The owner charged for this queue's resources.
	owner int64

	// The sequence number of the most recently appended entry.
	seq uint64

	// Live entries by file name.
	entries map[string]*entryState
}

type entryState struct {
	// Total file bytes accounted against the owner.
	size int64

	// When the entry should be removed if it has not been popped. Kept
	// so the timer can be rearmed after a stop/start cycle.
	expires time.Time

	// The TTL timer that expires this entry.
	expire delayqueue.Token
}

// New creates a Spool from the given settings. Call Start before using it.
func New(settings *Settings) *Spool {
	s := &Spool{
		settings: *settings,
		queues:   make(map[string]*queueState),
	}
	if s.settings.BaseLogger == nil {
		s.settings.BaseLogger = slog.New(sloghelper.DiscardHandler{})
	}
	if s.settings.DefaultTTL <= 0 {
		s.settings.DefaultTTL = defaultTTL
	}
	if s.settings.ReapInterval <= 0 {
		s.settings.ReapInterval = defaultReapInterval
	}
	s.log = s.settings.BaseLogger
	s.reapBackOff = backoff.BackOff{
		Period: s.settings.ReapInterval * 10,
		X:      s.settings.ReapInterval,
		Max:    s.settings.ReapInterval * 10,
	}
	return s
}

// Start creates the base directory if needed, recovers state from any
// queues already on disk, and schedules the reap sweep. Starting an already
// running spool is a no-op.
func (s *Spool) Start() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.running {
		return nil
	}
	if err := os.MkdirAll(s.settings.BaseDirectory, 0755); err != nil {
		return err
	}
	// Only scan on the first start; a stop/start cycle within the same
	// process keeps its in memory state and accounting, but Stop canceled
	// the expiry timers so they have to be rearmed.
	if len(s.queues) == 0 {
		if err := s.scan(); err != nil {
			return err
		}
	} else {
		s.rescheduleExpiry()
	}
	s.running = true
	s.settings.DelayQueue.Schedule(
		&s.reapToken,
		time.Now().Add(s.settings.ReapInterval),
		s.reap)
	s.log.Info(
		"Spool started.",
		sloghelper.String("directory", s.settings.BaseDirectory),
		sloghelper.Duration("ttl", s.settings.DefaultTTL),
		sloghelper.Duration("reap-interval", s.settings.ReapInterval),
		sloghelper.Int("queues", len(s.queues)))
	return nil
}

// Stop cancels the reaper and every entry expiry timer. Removals already
// handed to the work queue are not recalled; whether they run depends on
// when the work queue itself is stopped.
func (s *Spool) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.settings.DelayQueue.Cancel(&s.reapToken)
	for _, qs := range s.queues {
		for _, es := range qs.entries {
			s.settings.DelayQueue.Cancel(&es.expire)
		}
	}
}

// CreateQueue makes a new queue directory owned by the given owner id.
func (s *Spool) CreateQueue(name string, owner int64) error {
	if err := validateName(name); err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, ok := s.queues[name]; ok {
		return ErrQueueExists(name)
	}
	max := s.settings.Quotas.MaxDirs(owner)
	if max > 0 && s.settings.Usage.NumDirs(owner)+1 > max {
		return ErrQuotaExceeded{Resource: "directories"}
	}
	dir := filepath.Join(s.settings.BaseDirectory, name)
	if err := os.Mkdir(dir, 0755); err != nil {
		return err
	}
	ownerData := strconv.FormatInt(owner, 10) + "\n"
	if err := os.WriteFile(
		filepath.Join(dir, ownerFile),
		[]byte(ownerData),
		0644,
	); err != nil {
		os.Remove(dir)
		return err
	}
	s.settings.Usage.AddDirs(owner, 1)
	s.queues[name] = &queueState{
		owner:   owner,
		entries: make(map[string]*entryState),
	}
	s.log.Info(
		"Created queue.",
		sloghelper.String("queue", name),
		sloghelper.Int64("owner", owner))
	return nil
}

// RemoveQueue removes a queue and everything in it. The directory and its
// backing files are unlinked asynchronously by the remove work queue; the
// queue stops being visible to callers immediately.
func (s *Spool) RemoveQueue(name string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	qs, ok := s.queues[name]
	if !ok {
		return ErrQueueNotFound(name)
	}
	ctx := &removeContext{
		queue:     name,
		owner:     qs.owner,
		removeDir: true,
	}
	for en, es := range qs.entries {
		s.settings.DelayQueue.Cancel(&es.expire)
		ctx.entries = append(ctx.entries, removeEntry{
			name: en,
			size: es.size,
		})
	}
	delete(s.queues, name)
	s.scheduleRemove(ctx)
	s.log.Info(
		"Queue scheduled for removal.",
		sloghelper.String("queue", name),
		sloghelper.Int("entries", len(ctx.entries)))
	return nil
}

// Append writes a payload to the tail of a queue and returns the name of
// the new entry. The entry will be removed automatically if it has not been
// popped within the spool's TTL.
//
// The file write happens with the spool lock held so that quota checks and
// the append stay atomic; event payloads are expected to be small.
func (s *Spool) Append(queue string, payload []byte) (string, error) {
	data := append([]byte(checksum(payload)+"\n"), payload...)
	total := int64(len(data))

	s.lock.Lock()
	defer s.lock.Unlock()
	qs, ok := s.queues[queue]
	if !ok {
		return "", ErrQueueNotFound(queue)
	}
	owner := qs.owner
	quotas := s.settings.Quotas
	usage := s.settings.Usage
	if max := quotas.MaxFiles(owner); max > 0 &&
		usage.NumFiles(owner)+1 > max {
		return "", ErrQuotaExceeded{Resource: "files"}
	}
	if max := quotas.MaxFilesPerDir(owner); max > 0 &&
		uint64(len(qs.entries))+1 > max {
		return "", ErrQuotaExceeded{Resource: "files per directory"}
	}
	if max := quotas.MaxBytes(owner); max > 0 &&
		usage.NumBytes(owner)+uint64(total) > max {
		return "", ErrQuotaExceeded{Resource: "bytes"}
	}

	qs.seq++
	name := fmt.Sprintf("%016x%s", qs.seq, entrySuffix)
	path := filepath.Join(s.settings.BaseDirectory, queue, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		qs.seq--
		return "", err
	}
	es := &entryState{
		size:    total,
		expires: time.Now().Add(s.settings.DefaultTTL),
	}
	qs.entries[name] = es
	usage.AddFiles(owner, 1)
	usage.AddBytes(owner, total)
	s.settings.DelayQueue.Schedule(
		&es.expire,
		es.expires,
		func() { s.expire(queue, name) })
	s.log.Debug(
		"Appended entry.",
		sloghelper.String("queue", queue),
		sloghelper.String("entry", name),
		sloghelper.Uint64("sequence", qs.seq),
		sloghelper.Int64("bytes", total))
	return name, nil
}

// Head returns the payload and name of the oldest entry without consuming
// it.
func (s *Spool) Head(queue string) ([]byte, string, error) {
	s.lock.Lock()
	qs, ok := s.queues[queue]
	if !ok {
		s.lock.Unlock()
		return nil, "", ErrQueueNotFound(queue)
	}
	name := oldestEntry(qs)
	s.lock.Unlock()
	if name == "" {
		return nil, "", ErrQueueEmpty(queue)
	}
	payload, err := s.readEntry(queue, name)
	if err != nil {
		return nil, "", err
	}
	return payload, name, nil
}

// Pop consumes the oldest entry: its payload is returned and its backing
// file is scheduled for removal on the work queue.
func (s *Spool) Pop(queue string) ([]byte, error) {
	s.lock.Lock()
	qs, ok := s.queues[queue]
	if !ok {
		s.lock.Unlock()
		return nil, ErrQueueNotFound(queue)
	}
	name := oldestEntry(qs)
	es := qs.entries[name]
	s.lock.Unlock()
	if name == "" {
		return nil, ErrQueueEmpty(queue)
	}

	payload, err := s.readEntry(queue, name)
	if err != nil {
		return nil, err
	}

	// The entry may have expired, or the whole queue may have been
	// removed, while the file was being read; in either case the removal
	// is already scheduled.
	s.lock.Lock()
	if cur, ok := s.queues[queue]; !ok || cur != qs {
		s.lock.Unlock()
		return payload, nil
	}
	if current, ok := qs.entries[name]; ok && current == es {
		delete(qs.entries, name)
		s.settings.DelayQueue.Cancel(&es.expire)
		s.scheduleRemove(&removeContext{
			queue: queue,
			owner: qs.owner,
			entries: []removeEntry{{
				name: name,
				size: es.size,
			}},
		})
	}
	s.lock.Unlock()
	return payload, nil
}

// Len returns the number of live entries in a queue.
func (s *Spool) Len(queue string) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	qs, ok := s.queues[queue]
	if !ok {
		return 0, ErrQueueNotFound(queue)
	}
	return len(qs.entries), nil
}

// Queues returns the names of every live queue.
func (s *Spool) Queues() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	names := make([]string, 0, len(s.queues))
	for name := range s.queues {
		names = append(names, name)
	}
	return names
}

// Called by the delay queue when an entry's TTL passes.
func (s *Spool) expire(queue, name string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	qs, ok := s.queues[queue]
	if !ok {
		return
	}
	es, ok := qs.entries[name]
	if !ok {
		return
	}
	delete(qs.entries, name)
	s.log.Debug(
		"Entry expired.",
		sloghelper.String("queue", queue),
		sloghelper.String("entry", name))
	s.scheduleRemove(&removeContext{
		queue: queue,
		owner: qs.owner,
		entries: []removeEntry{{
			name: name,
			size: es.size,
		}},
	})
}

// Reads and validates a single entry file.
func (s *Spool) readEntry(queue, name string) ([]byte, error) {
	path := filepath.Join(s.settings.BaseDirectory, queue, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		return nil, ErrEntryCorrupt(name)
	}
	header := string(data[:idx])
	payload := data[idx+1:]
	if s.settings.VerifyChecksums && !verifyChecksum(header, payload) {
		return nil, ErrEntryCorrupt(name)
	}
	return payload, nil
}

// Rearms the expiry timer for every tracked entry, keeping the deadline
// it was given when it was appended or scanned. Callers must hold the
// lock.
func (s *Spool) rescheduleExpiry() {
	for queue, qs := range s.queues {
		queue := queue
		for name, es := range qs.entries {
			name := name
			s.settings.DelayQueue.Schedule(
				&es.expire,
				es.expires,
				func() { s.expire(queue, name) })
		}
	}
}

// Rebuilds queue state and usage accounting from what is on disk. Expiry
// deadlines are recovered as mtime plus the TTL. Callers must hold the
// lock.
func (s *Spool) scan() error {
	base := s.settings.BaseDirectory
	dirs, err := os.ReadDir(base)
	if err != nil {
		return err
	}
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		queue := d.Name()
		owner := s.readOwner(queue)
		qs := &queueState{
			owner:   owner,
			entries: make(map[string]*entryState),
		}
		files, err := os.ReadDir(filepath.Join(base, queue))
		if err != nil {
			return err
		}
		for _, f := range files {
			name := f.Name()
			if !strings.HasSuffix(name, entrySuffix) {
				continue
			}
			seq, err := strconv.ParseUint(
				strings.TrimSuffix(name, entrySuffix), 16, 64)
			if err != nil {
				s.log.Warn(
					"Ignoring unrecognized file in queue directory.",
					sloghelper.String("queue", queue),
					sloghelper.String("file", name))
				continue
			}
			info, err := f.Info()
			if err != nil {
				return err
			}
			es := &entryState{
				size:    info.Size(),
				expires: info.ModTime().Add(s.settings.DefaultTTL),
			}
			qs.entries[name] = es
			if seq > qs.seq {
				qs.seq = seq
			}
			s.settings.Usage.AddFiles(owner, 1)
			s.settings.Usage.AddBytes(owner, info.Size())
			entryName := name
			s.settings.DelayQueue.Schedule(
				&es.expire,
				es.expires,
				func() { s.expire(queue, entryName) })
		}
		s.settings.Usage.AddDirs(owner, 1)
		s.queues[queue] = qs
		s.log.Info(
			"Recovered queue.",
			sloghelper.String("queue", queue),
			sloghelper.Int("entries", len(qs.entries)))
	}
	return nil
}

// Reads the owner id recorded in a queue directory, falling back to zero
// for directories that predate owner tracking or were made by hand.
func (s *Spool) readOwner(queue string) int64 {
	path := filepath.Join(s.settings.BaseDirectory, queue, ownerFile)
	data, err := os.ReadFile(path)
	if err != nil {
		s.log.Warn(
			"Queue directory has no owner record.",
			sloghelper.String("queue", queue))
		return 0
	}
	owner, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		s.log.Warn(
			"Queue directory has an invalid owner record.",
			sloghelper.String("queue", queue))
		return 0
	}
	return owner
}

// Returns the lexically smallest entry name, which by construction is the
// oldest, or an empty string for an empty queue. Callers must hold the
// lock.
func oldestEntry(qs *queueState) string {
	oldest := ""
	for name := range qs.entries {
		if oldest == "" || name < oldest {
			oldest = name
		}
	}
	return oldest
}

func validateName(name string) error {
	if name == "" ||
		strings.HasPrefix(name, ".") ||
		strings.ContainsAny(name, `/\`) {
		return ErrInvalidName(name)
	}
	return nil
}
