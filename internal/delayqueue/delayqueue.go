package delayqueue

import (
	"container/heap"
	"sync"
	"time"
)

// DelayQueue runs functions at deadlines without burning a goroutine and a
// timer per deadline. Deadlines here are fire once events (entry TTLs, the
// periodic reap sweep) so tokens are kept in a min heap ordered by deadline
// and a single timer tracks only the earliest one.
//
// Callbacks are run inline from the processing goroutine; anything slow
// should hand itself off to a work queue rather than stalling other timers.
type DelayQueue struct {
	// Guards every field below.
	lock sync.Mutex

	// Tokens ordered by deadline, earliest at the root.
	tokens tokenHeap

	// Tracks the deadline of the heap root. Reset whenever the root
	// changes. This is only a hint to wake the processor; the processor
	// re-checks deadlines itself.
	timer *time.Timer

	// Closed by Stop to shut the processor down.
	stop chan struct{}
}

// Token tracks a single scheduled function so that the caller can cancel or
// reschedule it. The zero value is ready for use.
type Token struct {
	f  func()
	at time.Time

	// Heap position plus one, zero while not scheduled.
	pos int
}

// Scheduled returns true while the token sits in a queue waiting to fire.
func (t *Token) Scheduled() bool {
	return t.pos > 0
}

// Schedule arranges for f to run at the given time. If the token is already
// scheduled its deadline and function are replaced. Panics on a nil
// function.
func (d *DelayQueue) Schedule(tok *Token, at time.Time, f func()) {
	if f == nil {
		panic("DelayQueue.Schedule with a nil function.")
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	tok.f = f
	tok.at = at
	if tok.pos > 0 {
		heap.Fix(&d.tokens, tok.pos-1)
	} else {
		heap.Push(&d.tokens, tok)
	}
	if d.tokens[0] == tok {
		d.resetTimer()
	}
}

// Cancel removes a token from the queue. Canceling a token that is not
// scheduled does nothing. Note that a callback that is already running can
// not be canceled.
func (d *DelayQueue) Cancel(tok *Token) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if tok.pos <= 0 {
		return
	}
	wasNext := tok.pos == 1
	heap.Remove(&d.tokens, tok.pos-1)
	tok.f = nil
	if wasNext {
		d.resetTimer()
	}
}

// Starts the DelayQueue processing.
func (d *DelayQueue) Start() {
	d.lock.Lock()
	defer d.lock.Unlock()
	d.stop = make(chan struct{})
	d.timer = time.NewTimer(longSleep)
	// Tokens may have been scheduled before the queue was started.
	d.resetTimer()
	go d.process(d.stop)
}

// Stops the DelayQueue processing. Scheduled tokens stay in the queue and
// will fire if the queue is started again and their deadlines are due.
func (d *DelayQueue) Stop() {
	d.lock.Lock()
	defer d.lock.Unlock()
	close(d.stop)
}

// The processing loop. Fires every due token, then sleeps until the next
// deadline (or practically forever when the queue is empty).
func (d *DelayQueue) process(stop chan struct{}) {
	for {
		for f := d.next(); f != nil; f = d.next() {
			f()
		}
		select {
		case <-d.timer.C:
		case <-stop:
			return
		}
	}
}

// Pops the root token if its deadline has passed, returning its function.
// Returns nil once nothing is due, after arming the timer for the next
// deadline.
func (d *DelayQueue) next() func() {
	d.lock.Lock()
	defer d.lock.Unlock()
	if len(d.tokens) == 0 {
		d.armTimer(longSleep)
		return nil
	}
	tok := d.tokens[0]
	if wait := time.Until(tok.at); wait > 0 {
		d.armTimer(wait)
		return nil
	}
	heap.Pop(&d.tokens)
	f := tok.f
	tok.f = nil
	return f
}

// Arms the timer for the current heap root. Callers must hold the lock.
func (d *DelayQueue) resetTimer() {
	if d.timer == nil {
		// Not started yet; Start will arm the timer.
		return
	}
	if len(d.tokens) == 0 {
		d.armTimer(longSleep)
	} else {
		d.armTimer(time.Until(d.tokens[0].at))
	}
}

func (d *DelayQueue) armTimer(wait time.Duration) {
	if !d.timer.Stop() {
		select {
		case <-d.timer.C:
		default:
		}
	}
	d.timer.Reset(wait)
}

// Used when there is nothing to wait for; Schedule resets the timer the
// moment that changes.
const longSleep = time.Hour * 24 * 365

// heap.Interface over tokens, ordered by deadline.
type tokenHeap []*Token

func (h tokenHeap) Len() int {
	return len(h)
}

func (h tokenHeap) Less(i, j int) bool {
	return h[i].at.Before(h[j].at)
}

func (h tokenHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].pos = i + 1
	h[j].pos = j + 1
}

func (h *tokenHeap) Push(x interface{}) {
	tok := x.(*Token)
	*h = append(*h, tok)
	tok.pos = len(*h)
}

func (h *tokenHeap) Pop() interface{} {
	old := *h
	tok := old[len(old)-1]
	old[len(old)-1] = nil
	tok.pos = 0
	*h = old[:len(old)-1]
	return tok
}
