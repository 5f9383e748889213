// Package queue provides a bounded, multi-producer FIFO with an explicit
// lifecycle state machine.
//
// A Queue is created with a fixed capacity and a number of adders, the
// producers that are allowed to add to it. Each adder calls RemoveAdder
// exactly once when it is done; when the last one does, the queue enters EOF.
// Items queued before EOF remain drainable.
//
// Legal state transitions:
//
//	OK    -> Flush  (SignalFlush)
//	Flush -> OK     (Resume)
//	OK    -> EOF    (last RemoveAdder, or Close)
//	Flush -> EOF    (last RemoveAdder, or Close)
//	any   -> Stop   (Stop)
//
// Stop is terminal.
package queue

import (
	"sync"

	"github.com/cockroachdb/errors"
	fifo "github.com/eapache/queue"
)

// DefaultCapacity is the capacity used when New is given a non-positive one.
const DefaultCapacity = 1000

// State is the lifecycle state of a Queue.
type State int32

// Queue states.
const (
	OK    State = iota // accepting adds and gets
	Flush              // producers must not block; a drain is in progress
	EOF                // no more adds; remaining items can be drained
	Stop               // terminal
)

func (s State) String() string {
	switch s {
	case OK:
		return "ok"
	case Flush:
		return "flush"
	case EOF:
		return "eof"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// Result is the outcome of Add or Get.
type Result int

// Operation results.
const (
	Done       Result = iota // the item was added or removed
	WouldBlock               // wait was false and the operation would have blocked
	Closed                   // the queue is not accepting the operation; inspect State
)

func (r Result) String() string {
	switch r {
	case Done:
		return "done"
	case WouldBlock:
		return "would-block"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Queue is a bounded FIFO safe for concurrent use.
type Queue[T any] struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond
	changed  *sync.Cond

	items    *fifo.Queue
	capacity int
	adders   int
	state    State
}

// New returns a queue holding at most capacity items, fed by the given
// number of adders. A queue created with zero adders starts in EOF.
func New[T any](capacity, adders int) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	q := &Queue[T]{
		items:    fifo.New(),
		capacity: capacity,
		adders:   adders,
	}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	q.changed = sync.NewCond(&q.mu)
	if adders <= 0 {
		q.adders = 0
		q.state = EOF
	}
	return q
}

// Add appends v. With wait set, a full queue blocks the caller until space
// frees up or the state changes.
func (q *Queue[T]) Add(v T, wait bool) Result {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.state == EOF || q.state == Stop {
			return Closed
		}
		if q.items.Length() < q.capacity {
			q.items.Add(v)
			q.notEmpty.Signal()
			return Done
		}
		if q.state == Flush {
			return Closed
		}
		if !wait {
			return WouldBlock
		}
		q.notFull.Wait()
	}
}

// Get removes the oldest item. With wait set, an empty queue blocks the
// caller until an item arrives or the queue reaches EOF. Closed is returned
// only once the queue is EOF and empty, or stopped.
func (q *Queue[T]) Get(wait bool) (T, Result) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	for {
		if q.state == Stop {
			return zero, Closed
		}
		if q.items.Length() > 0 {
			v := q.items.Remove().(T) //nolint:errcheck // only T is ever added
			q.notFull.Signal()
			return v, Done
		}
		if q.state == EOF {
			return zero, Closed
		}
		if !wait {
			return zero, WouldBlock
		}
		q.notEmpty.Wait()
	}
}

// RemoveAdder relinquishes one producer's right to add. It must be called
// exactly once per adder.
func (q *Queue[T]) RemoveAdder() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.adders <= 0 {
		panic(errors.AssertionFailedf("queue: RemoveAdder called with no adders left"))
	}
	q.adders--
	if q.adders == 0 {
		q.transition(EOF)
	}
}

// Close declares EOF from the consumer side, telling producers that nothing
// more will be consumed. Items already queued can still be drained.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.transition(EOF)
}

// SignalFlush releases producers blocked on a full queue without declaring
// EOF. It has no effect unless the queue is OK.
func (q *Queue[T]) SignalFlush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == OK {
		q.transition(Flush)
	}
}

// Resume ends a flush started by SignalFlush.
func (q *Queue[T]) Resume() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.state == Flush {
		q.transition(OK)
	}
}

// WaitUntilNotFlush blocks while the queue is in Flush and returns the state
// it left Flush for.
func (q *Queue[T]) WaitUntilNotFlush() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.state == Flush {
		q.changed.Wait()
	}
	return q.state
}

// Stop moves the queue to its terminal state and wakes every waiter.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.transition(Stop)
}

// transition must be called with q.mu held.
func (q *Queue[T]) transition(to State) {
	if q.state == Stop || q.state == to {
		return
	}
	q.state = to
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
	q.changed.Broadcast()
}

// State returns the current state.
func (q *Queue[T]) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}

// Cap returns the queue capacity.
func (q *Queue[T]) Cap() int {
	return q.capacity
}

// Adders returns the number of producers that have not yet called
// RemoveAdder.
func (q *Queue[T]) Adders() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.adders
}
