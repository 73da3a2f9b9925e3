package workqueue

import (
	"log/slog"
	"sync"

	"github.com/liquidgecka/eventfs/internal/sloghelper"
)

// Settings configure a WorkQueue via Init.
type Settings struct {
	// Diagnostics from the worker (failed requests, panics, discarded
	// work) are written to this logger. A nil logger discards everything.
	BaseLogger *slog.Logger

	// If set then the queue will update these collectors as requests move
	// through it. A nil value disables instrumentation.
	Metrics *Metrics
}

// WorkQueue is an asynchronous, single consumer work queue. Producers hand
// it Requests via Enqueue and a single background worker drains and executes
// them in submission order, off the producer's critical path. Producers get
// no completion notification; failures are logged and dropped.
//
// The pending chain is only ever touched under lock, and the worker detaches
// the entire chain in one O(1) critical section before executing anything,
// so producers are never blocked behind a slow work function.
type WorkQueue struct {
	// Guards head, tail and running.
	lock sync.Mutex

	// The pending chain of requests. head owns the chain, tail is kept
	// purely for O(1) appends. head == nil if and only if tail == nil.
	head *Request
	tail *Request

	// Wakes the worker when work is appended. The worker drains the whole
	// chain on every pass so a single buffered slot carries as much
	// information as a counter would.
	wake chan struct{}

	// Closed by Stop to cancel a worker blocked waiting for work. Replaced
	// on every Start since closed channels can not be reused.
	stop chan struct{}

	// Closed by the worker as it exits; Stop blocks on it to join.
	done chan struct{}

	// True between a successful Start and the matching Stop.
	running bool

	log     *slog.Logger
	metrics *Metrics
}

// Init prepares the queue for use. It must be called before any other
// method, and may be called again after Destroy to reuse the structure.
func (w *WorkQueue) Init(s Settings) {
	if s.BaseLogger == nil {
		s.BaseLogger = slog.New(sloghelper.DiscardHandler{})
	}
	w.lock.Lock()
	defer w.lock.Unlock()
	w.head = nil
	w.tail = nil
	w.wake = make(chan struct{}, 1)
	w.log = s.BaseLogger
	w.metrics = s.Metrics
}

// Start spawns the background worker. Returns ErrAlreadyRunning if the
// queue already has a worker.
func (w *WorkQueue) Start() error {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.running {
		return ErrAlreadyRunning{}
	}
	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.process(w.stop, w.done)
	// Work left chained by a previous Stop gets picked up right away
	// rather than waiting for the next Enqueue.
	if w.head != nil {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Stop shuts the worker down and blocks until it has fully exited. A batch
// that is already being processed will be finished first. Work that is still
// chained when the worker exits is left in place; it will be picked up if
// the queue is started again, or discarded by Destroy.
//
// Returns ErrNotRunning if the queue has no worker.
func (w *WorkQueue) Stop() error {
	w.lock.Lock()
	if !w.running {
		w.lock.Unlock()
		return ErrNotRunning{}
	}
	w.running = false
	close(w.stop)
	// A spurious wakeup in case the worker is already in its select; the
	// closed stop channel makes this belt and braces but harmless.
	select {
	case w.wake <- struct{}{}:
	default:
	}
	done := w.done
	w.lock.Unlock()
	<-done
	return nil
}

// Destroy discards any work that is still pending, without executing it,
// and resets the structure so that Init can be called on it again. Returns
// ErrStillRunning if the queue has not been stopped first.
func (w *WorkQueue) Destroy() error {
	w.lock.Lock()
	if w.running {
		w.lock.Unlock()
		return ErrStillRunning{}
	}
	head := w.head
	w.head = nil
	w.tail = nil
	w.lock.Unlock()

	discarded := 0
	for r := head; r != nil; {
		next := r.next
		r.reset()
		r = next
		discarded++
	}
	if discarded > 0 {
		w.metrics.discarded(discarded)
		w.log.Warn(
			"Discarding unexecuted work requests.",
			sloghelper.Int("requests", discarded))
	}

	// Reset everything except the mutex so Init can be called again.
	w.lock.Lock()
	w.wake = nil
	w.stop = nil
	w.done = nil
	w.log = nil
	w.metrics = nil
	w.lock.Unlock()
	return nil
}

// Enqueue appends a request to the pending chain and wakes the worker.
// Ownership of the request transfers to the queue on call. This is safe to
// call from any number of goroutines concurrently with each other and with
// the worker. Requests from a single producer are executed in submission
// order; across producers the order is whichever Enqueue takes the lock
// first.
func (w *WorkQueue) Enqueue(r *Request) {
	if r == nil {
		return
	}
	w.lock.Lock()
	if w.head == nil {
		w.head = r
		w.tail = r
	} else {
		w.tail.next = r
		w.tail = r
	}
	w.lock.Unlock()
	w.metrics.enqueued()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// The worker main loop. Waits for a wakeup, detaches the entire pending
// chain under lock, then executes each request with no lock held. A request
// enqueued while a batch is being processed is deferred to the next pass.
func (w *WorkQueue) process(stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-w.wake:
		case <-stop:
			return
		}

		// Stop may have signaled the wake channel rather than the stop
		// channel winning the select.
		if !w.isRunning() {
			return
		}

		// Exchange buffers: take the whole chain and release the lock
		// before running anything.
		w.lock.Lock()
		r := w.head
		w.head = nil
		w.tail = nil
		w.lock.Unlock()

		for r != nil {
			w.run(r)
			next := r.next
			r.reset()
			r = next
		}
	}
}

// Executes a single request, reporting a failure or a panic without letting
// either take down the worker or the rest of the batch.
func (w *WorkQueue) run(r *Request) {
	defer func() {
		if p := recover(); p != nil {
			w.metrics.panicked()
			w.log.Error(
				"Work request panicked.",
				sloghelper.Interface("panic", p))
		}
	}()
	if err := r.work(r, r.data); err != nil {
		w.metrics.failed()
		w.log.Error(
			"Work request failed.",
			sloghelper.Error("error", err))
	} else {
		w.metrics.processed()
	}
}

func (w *WorkQueue) isRunning() bool {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.running
}
