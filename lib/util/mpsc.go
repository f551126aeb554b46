// BoundedMPSC: a bounded, lock-free Multi-Producer Single-Consumer (MPSC) queue.
//
// Features and Guarantees:
//
//   - Lock-Free appends: producers link nodes with atomic operations; no producer waits for another
//   - Bounded: at most Cap() items are queued, Push blocks while the queue is full
//   - Thread-Safe writes: Allows any number of goroutines to safely Push() concurrently
//   - Single Consumer: Designed for a single goroutine to consume values (via the Recv() channel).
//   - No Lost Wakeups: every successful Push is observed by the consumer, even if the consumer
//     was just about to go to sleep when the item was linked.
//   - Drain on Close: items pushed before Close() are still delivered, then Recv() is closed.
//   - No Strict FIFO Guarantee: Under concurrent Push() operations, the exact ordering of items
//     is determined by which producer completes its operation first, not by which producer
//     started first. A single producer always observes FIFO order.

package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// node represents a single element in the queue
type node[T interface{}] struct {
	value *T
	next  atomic.Pointer[node[T]]
}

// BoundedMPSC is a bounded multi-producer single-consumer queue
// Implementation uses a linked list of nodes with atomic operations
// for concurrent push operations and a counting semaphore for the bound
type BoundedMPSC[T interface{}] struct {
	head     atomic.Pointer[node[T]]
	tail     atomic.Pointer[node[T]]
	out      chan *T
	slots    chan struct{} // one token per queued item
	done     chan struct{} // closed by Close, wakes blocked producers
	consumer sync.WaitGroup
	length   atomic.Int64

	// producers hold closeMu for reading while linking a node, Close holds it for writing.
	// So every node linked by a successful Push is visible once closed is set.
	closeMu   sync.RWMutex
	closed    atomic.Bool
	closeOnce sync.Once

	// Condition variable for efficient waiting
	mu   sync.Mutex
	cond *sync.Cond
}

// NewBoundedMPSC creates a new queue that holds at most capacity items (minimum 1)
func NewBoundedMPSC[T interface{}](capacity int) *BoundedMPSC[T] {
	if capacity < 1 {
		capacity = 1
	}

	// Create a sentinel node (dummy node at the beginning)
	sentinel := &node[T]{}

	q := &BoundedMPSC[T]{
		out:   make(chan *T),
		slots: make(chan struct{}, capacity),
		done:  make(chan struct{}),
	}

	q.cond = sync.NewCond(&q.mu)

	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.consumer.Add(1)
	go q.consume()

	return q
}

// Push adds an item to the queue, blocking while the queue is full.
// Returns true if the item was added, or false if the value is nil or the queue is closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *BoundedMPSC[T]) Push(value *T) bool {
	if value == nil {
		return false
	}

	// reserve capacity
	select {
	case q.slots <- struct{}{}:
	case <-q.done:
		return false
	}

	q.closeMu.RLock()
	if q.closed.Load() {
		q.closeMu.RUnlock()
		<-q.slots
		return false
	}
	q.append(&node[T]{value: value})
	q.length.Add(1)
	q.closeMu.RUnlock()

	q.signal()
	return true
}

// TryPush adds an item to the queue without blocking.
// Returns false if the queue is full, closed or the value is nil.
func (q *BoundedMPSC[T]) TryPush(value *T) bool {
	if value == nil {
		return false
	}

	select {
	case q.slots <- struct{}{}:
	default:
		return false
	}

	q.closeMu.RLock()
	if q.closed.Load() {
		q.closeMu.RUnlock()
		<-q.slots
		return false
	}
	q.append(&node[T]{value: value})
	q.length.Add(1)
	q.closeMu.RUnlock()

	q.signal()
	return true
}

// append links newNode behind the current tail
func (q *BoundedMPSC[T]) append(newNode *node[T]) {
	var backoff uint8 = 0

	for {
		tailNode := q.tail.Load()

		next := tailNode.next.Load()
		if next == nil {
			if tailNode.next.CompareAndSwap(nil, newNode) {
				// CAS may fail if another producer already helped, tail is updated eventually
				q.tail.CompareAndSwap(tailNode, newNode)
				return
			}
		} else {
			// help update the tail pointer if another producer has already appended a node but hasn't updated the tail yet
			q.tail.CompareAndSwap(tailNode, next)
		}

		/*
		 Exponential backoff under contention:
		  - At low contention (<10 retries): spin with Gosched
		  - At higher contention: Yield the processor once per retry
		*/
		if backoff < 10 {
			backoff++
			for i := 0; i < 1<<backoff; i++ {
				runtime.Gosched()
			}
		}
		runtime.Gosched()
	}
}

// signal wakes the consumer. The mutex must be held while signalling, otherwise
// a consumer that has just checked for an empty list but not yet called Wait
// misses the signal and sleeps on a non-empty queue.
func (q *BoundedMPSC[T]) signal() {
	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// consume continuously sends items from the linked list to the output channel and frees memory
func (q *BoundedMPSC[T]) consume() {
	defer q.consumer.Done()
	defer close(q.out)

	for {
		hasItems := false

		for {
			head := q.head.Load()
			next := head.next.Load()

			if next == nil {
				break
			}

			hasItems = true

			// Capture value before updating pointers
			value := next.value

			// move head pointer (free up memory)
			q.head.Store(next)

			q.out <- value

			// help go gc - safe to clear after sending
			next.value = nil
			q.length.Add(-1)

			// release capacity only once the value has been handed over
			<-q.slots
		}

		if q.closed.Load() {
			// closed is set after the last linked node became visible
			if q.head.Load().next.Load() == nil {
				return
			}
			continue
		}

		if !hasItems {
			q.mu.Lock()
			// Double-check condition after acquiring lock
			head := q.head.Load()
			if head.next.Load() == nil && !q.closed.Load() {
				q.cond.Wait()
			}
			q.mu.Unlock()
		}
	}
}

// Recv returns a receive-only channel for consuming from the queue.
// This allows the queue to be used with the '<-' operator in select statements.
// The channel is closed after Close() once every queued item was received.
func (q *BoundedMPSC[T]) Recv() <-chan *T {
	return q.out
}

// Close closes the queue, preventing further writes and unblocking waiting producers.
// Any items already in the queue will still be delivered to the consumer.
func (q *BoundedMPSC[T]) Close() {
	q.closeOnce.Do(func() {
		q.closeMu.Lock()
		q.closed.Store(true)
		close(q.done)
		q.closeMu.Unlock()

		q.signal()
	})
}

// IsClosed returns true if the queue is closed.
func (q *BoundedMPSC[T]) IsClosed() bool {
	return q.closed.Load()
}

// Len returns the number of items linked but not yet received.
func (q *BoundedMPSC[T]) Len() int {
	return int(q.length.Load())
}

// Cap returns the maximum number of queued items.
func (q *BoundedMPSC[T]) Cap() int {
	return cap(q.slots)
}
