package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue keeps jobs in process. Received deliveries stay in flight until
// acked or released.
type MemoryQueue struct {
	ready chan Delivery

	mu       sync.Mutex
	inFlight map[string]Delivery
	receives map[string]int
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 128
	}
	return &MemoryQueue{
		ready:    make(chan Delivery, capacity),
		inFlight: make(map[string]Delivery),
		receives: make(map[string]int),
	}
}

// Send blocks while the queue is full.
func (q *MemoryQueue) Send(ctx context.Context, body string) error {
	select {
	case q.ready <- Delivery{ID: uuid.NewString(), Body: body}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive waits up to wait for the first delivery, then takes whatever else is
// ready without blocking. A zero wait blocks until ctx is done.
func (q *MemoryQueue) Receive(ctx context.Context, limit int, wait time.Duration) ([]Delivery, error) {
	if limit <= 0 {
		limit = 1
	}
	var expired <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		expired = timer.C
	}

	var first Delivery
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-expired:
		return nil, nil
	case first = <-q.ready:
	}

	out := []Delivery{q.checkout(first)}
	for len(out) < limit {
		select {
		case d := <-q.ready:
			out = append(out, q.checkout(d))
		default:
			return out, nil
		}
	}
	return out, nil
}

func (q *MemoryQueue) checkout(d Delivery) Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.receives[d.ID]++
	d.Receives = q.receives[d.ID]
	d.Receipt = uuid.NewString()
	q.inFlight[d.Receipt] = d
	return d
}

func (q *MemoryQueue) Ack(_ context.Context, receipt string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if d, ok := q.inFlight[receipt]; ok {
		delete(q.inFlight, receipt)
		delete(q.receives, d.ID)
	}
	return nil
}

// Release puts the delivery back after delay. Unknown receipts are ignored.
func (q *MemoryQueue) Release(_ context.Context, receipt string, delay time.Duration) error {
	q.mu.Lock()
	d, ok := q.inFlight[receipt]
	delete(q.inFlight, receipt)
	q.mu.Unlock()
	if !ok {
		return nil
	}
	d.Receipt = ""
	requeue := func() {
		select {
		case q.ready <- d:
		default:
			// Full: hand it back on a goroutine rather than block the timer.
			go func() { q.ready <- d }()
		}
	}
	if delay <= 0 {
		requeue()
		return nil
	}
	time.AfterFunc(delay, requeue)
	return nil
}

// Len reports jobs waiting to be received.
func (q *MemoryQueue) Len() int {
	return len(q.ready)
}

// InFlight reports received jobs not yet acked or released.
func (q *MemoryQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}
