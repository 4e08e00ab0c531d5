package unpin

import (
	"sync"

	"lsmversion/pkg/dberrors"
	"lsmversion/pkg/types"
)

// Queue is an unbounded channel of version ids. Send never blocks; a pump
// goroutine forwards queued ids to Out in FIFO order.
type Queue struct {
	mu     sync.Mutex
	items  []types.VersionID
	closed bool

	notify  chan struct{}
	closing chan struct{}
	abandon chan struct{}
	out     chan types.VersionID

	abandonOnce sync.Once
}

func NewQueue() *Queue {
	q := &Queue{
		notify:  make(chan struct{}, 1),
		closing: make(chan struct{}),
		abandon: make(chan struct{}),
		out:     make(chan types.VersionID),
	}
	go q.pump()

	return q
}

// Send queues id. After Close it returns dberrors.ErrClosed.
func (q *Queue) Send(id types.VersionID) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return dberrors.ErrClosed
	}
	q.items = append(q.items, id)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *Queue) Out() <-chan types.VersionID {
	return q.out
}

// Len reports ids accepted by Send and not yet taken by the pump.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further sends. Ids already queued are still delivered, then
// Out is closed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.closing)
}

// Abandon stops delivery at once and drops whatever is still queued.
func (q *Queue) Abandon() {
	q.Close()
	q.abandonOnce.Do(func() { close(q.abandon) })
}

func (q *Queue) pump() {
	defer close(q.out)

	for {
		q.mu.Lock()
		batch := q.items
		q.items = nil
		closed := q.closed
		q.mu.Unlock()

		for _, id := range batch {
			select {
			case q.out <- id:
			case <-q.abandon:
				return
			}
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}

		select {
		case <-q.notify:
		case <-q.closing:
		case <-q.abandon:
			return
		}
	}
}
