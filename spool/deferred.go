package spool

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/liquidgecka/eventfs/internal/errors"
	"github.com/liquidgecka/eventfs/internal/sloghelper"
	"github.com/liquidgecka/eventfs/internal/workqueue"
)

// removeContext carries everything the remove worker needs to unlink a set
// of backing files (and optionally their queue directory) and to credit the
// owner's usage back once they are gone.
type removeContext struct {
	queue     string
	owner     int64
	entries   []removeEntry
	removeDir bool
}

type removeEntry struct {
	name string
	size int64
}

// Packages a removal as a work request and hands it to the remove queue.
// Ownership of the context transfers with the request.
func (s *Spool) scheduleRemove(ctx *removeContext) {
	s.settings.RemoveQueue.Enqueue(workqueue.NewRequest(s.removeWork, ctx))
}

// The remove worker callback. Unlinks every file in the context, releasing
// usage accounting only for files that actually disappear; a file that can
// not be removed stays accounted and will be retried by a later reap sweep.
// One failed unlink never stops the rest of the batch.
func (s *Spool) removeWork(r *workqueue.Request, data interface{}) error {
	ctx := data.(*removeContext)
	dir := filepath.Join(s.settings.BaseDirectory, ctx.queue)
	usage := s.settings.Usage
	var errs []error
	for _, e := range ctx.entries {
		err := os.Remove(filepath.Join(dir, e.name))
		switch {
		case err == nil:
			usage.AddFiles(ctx.owner, -1)
			usage.AddBytes(ctx.owner, -e.size)
			s.log.Debug(
				"Removed entry.",
				sloghelper.String("queue", ctx.queue),
				sloghelper.String("entry", e.name))
		case os.IsNotExist(err):
			// Someone else removed it; whoever did released the
			// accounting.
			s.log.Warn(
				"Entry was already removed.",
				sloghelper.String("queue", ctx.queue),
				sloghelper.String("entry", e.name))
		default:
			errs = append(errs, err)
			s.log.Error(
				"Unable to remove entry.",
				sloghelper.String("queue", ctx.queue),
				sloghelper.String("entry", e.name),
				sloghelper.Error("error", err))
		}
	}
	if ctx.removeDir {
		if err := os.Remove(filepath.Join(dir, ownerFile)); err != nil &&
			!os.IsNotExist(err) {
			errs = append(errs, err)
		}
		err := os.Remove(dir)
		switch {
		case err == nil:
			usage.AddDirs(ctx.owner, -1)
			s.log.Info(
				"Removed queue.",
				sloghelper.String("queue", ctx.queue))
		case os.IsNotExist(err):
		default:
			errs = append(errs, err)
			s.log.Error(
				"Unable to remove queue directory.",
				sloghelper.String("queue", ctx.queue),
				sloghelper.Error("error", err))
		}
	}
	return errors.NewMultipleError("removing spool entries", errs)
}

// Called by the delay queue when the reap deadline passes. The sweep walks
// the whole spool on disk, so it is handed to the remove work queue rather
// than run inline where it would stall the other timers.
func (s *Spool) reap() {
	s.settings.RemoveQueue.Enqueue(workqueue.NewRequest(s.reapWork, nil))
}

// The periodic sweep worker callback. Catches anything the in memory timers
// missed: entries recovered after a crash whose deadlines raced the scanner,
// and entries whose earlier removal failed. Reschedules the reap token,
// backing off while sweeps fail.
func (s *Spool) reapWork(r *workqueue.Request, data interface{}) error {
	err := s.sweep()
	if err != nil {
		s.reapBackOff.Failure()
	} else {
		s.reapBackOff.Reset()
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if !s.running {
		return err
	}
	delay := s.settings.ReapInterval + s.reapBackOff.Wait()
	s.settings.DelayQueue.Schedule(
		&s.reapToken,
		time.Now().Add(delay),
		s.reap)
	return err
}

// Walks every queue directory scheduling removal for expired files that no
// timer is tracking. Files still tracked in memory are left to their
// timers.
func (s *Spool) sweep() error {
	base := s.settings.BaseDirectory
	dirs, err := os.ReadDir(base)
	if err != nil {
		return err
	}
	cutoff := time.Now().Add(-s.settings.DefaultTTL)
	var errs []error
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		queue := d.Name()
		files, err := os.ReadDir(filepath.Join(base, queue))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, f := range files {
			name := f.Name()
			if !strings.HasSuffix(name, entrySuffix) {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			s.lock.Lock()
			qs, known := s.queues[queue]
			if !known {
				// Not a queue this spool manages; leave it alone.
				s.lock.Unlock()
				continue
			}
			if _, tracked := qs.entries[name]; tracked {
				s.lock.Unlock()
				continue
			}
			s.scheduleRemove(&removeContext{
				queue: queue,
				owner: qs.owner,
				entries: []removeEntry{{
					name: name,
					size: info.Size(),
				}},
			})
			s.lock.Unlock()
			s.log.Warn(
				"Reaping expired entry.",
				sloghelper.String("queue", queue),
				sloghelper.String("entry", name))
		}
	}
	return errors.NewMultipleError("sweeping spool directories", errs)
}
