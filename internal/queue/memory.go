package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memEntry struct {
	id        string
	body      string
	receipt   string
	receives  int
	invisible time.Time
}

// MemoryQueue is an in-process Queue with the same lease semantics as SQS.
// It backs tests and the single-process mode of the worker daemon.
type MemoryQueue struct {
	mu         sync.Mutex
	entries    []*memEntry
	visibility time.Duration
	wait       time.Duration
	now        func() time.Time
	notify     chan struct{}
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue creates a queue whose receives lease a message for
// visibility and block for at most wait when the queue is empty.
func NewMemoryQueue(visibility, wait time.Duration) *MemoryQueue {
	return &MemoryQueue{
		visibility: visibility,
		wait:       wait,
		now:        time.Now,
		notify:     make(chan struct{}, 1),
	}
}

// SetClock overrides the lease clock.
func (q *MemoryQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	q.now = now
	q.mu.Unlock()
}

func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, body string) error {
	q.mu.Lock()
	q.entries = append(q.entries, &memEntry{id: uuid.NewString(), body: body})
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *MemoryQueue) Receive(ctx context.Context) (*Message, error) {
	deadline := time.NewTimer(q.wait)
	defer deadline.Stop()
	for {
		if m := q.take(); m != nil {
			return m, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return q.take(), nil
		case <-q.notify:
		case <-time.After(10 * time.Millisecond):
			// Leases expire without a signal.
		}
	}
}

func (q *MemoryQueue) take() *Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	for _, e := range q.entries {
		if now.Before(e.invisible) {
			continue
		}
		e.receives++
		e.receipt = uuid.NewString()
		e.invisible = now.Add(q.visibility)
		return &Message{ID: e.id, Body: e.body, Receipt: e.receipt, ReceiveCount: e.receives}
	}
	return nil
}

func (q *MemoryQueue) find(m *Message) (int, error) {
	for i, e := range q.entries {
		if e.id == m.ID {
			if e.receipt != m.Receipt {
				return -1, fmt.Errorf("stale receipt for message %s", m.ID)
			}
			return i, nil
		}
	}
	return -1, fmt.Errorf("message %s not in flight", m.ID)
}

func (q *MemoryQueue) Ack(ctx context.Context, m *Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	i, err := q.find(m)
	if err != nil {
		return err
	}
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	return nil
}

func (q *MemoryQueue) Abandon(ctx context.Context, m *Message) error {
	q.mu.Lock()
	i, err := q.find(m)
	if err == nil {
		q.entries[i].invisible = time.Time{}
		q.entries[i].receipt = ""
	}
	q.mu.Unlock()
	if err == nil {
		q.signal()
	}
	return err
}

// Len returns the number of messages not yet acknowledged.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Bodies returns the bodies of all unacknowledged messages in enqueue order.
func (q *MemoryQueue) Bodies() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e.body)
	}
	return out
}
