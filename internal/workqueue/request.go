package workqueue

// Func is the callback that performs a single unit of deferred work. It is
// handed the Request that carried it along with the opaque data that was
// given to NewRequest. A non nil error is reported through the queue's
// logger but will never stop the queue or the rest of the batch that the
// request was processed in.
type Func func(r *Request, data interface{}) error

// Request is a single unit of deferred work. Once a Request has been passed
// to WorkQueue.Enqueue it is owned by the queue and the caller must not
// touch it again; the queue will clear it after its one and only processing
// pass (or when the queue is destroyed with the request still pending).
type Request struct {
	// The function that will be run by the worker.
	work Func

	// Opaque data that is carried along with the request. The queue never
	// inspects this value, it is only forwarded to the work function.
	data interface{}

	// The next Request in the pending chain. The chain is a singly linked
	// FIFO owned by the WorkQueue.
	next *Request
}

// Creates a Request that will run the given function with the given data
// once it reaches the front of a WorkQueue.
func NewRequest(work Func, data interface{}) *Request {
	return &Request{
		work: work,
		data: data,
	}
}

// Returns the opaque data attached to this Request.
func (r *Request) Data() interface{} {
	return r.data
}

// Clears the request after its processing pass so that stale references
// can not keep large payloads alive or accidentally re-run work.
func (r *Request) reset() {
	r.work = nil
	r.data = nil
	r.next = nil
}
