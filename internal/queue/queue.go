// Package queue is the work queue: at-least-once delivery of opaque text
// messages. A received message stays invisible to other consumers until it is
// acknowledged (deleted), abandoned (made visible again at once), or its
// visibility timeout lapses.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/fpang/media-pipeline/internal/request"
)

// Message is one delivery. Receipt identifies this delivery, not the message:
// a redelivered message carries a new receipt.
type Message struct {
	ID           string
	Body         string
	Receipt      string
	ReceiveCount int
}

// Queue is the contract the intake and worker consume.
type Queue interface {
	Enqueue(ctx context.Context, body string) error
	// Receive waits up to the queue's poll interval and returns nil, nil when
	// nothing arrived.
	Receive(ctx context.Context) (*Message, error)
	Ack(ctx context.Context, m *Message) error
	Abandon(ctx context.Context, m *Message) error
}

// EnqueueRequest validates r and enqueues its wire encoding.
func EnqueueRequest(ctx context.Context, q Queue, r request.Request) error {
	if err := r.Validate(); err != nil {
		return err
	}
	body, err := r.Encode()
	if err != nil {
		return err
	}
	return q.Enqueue(ctx, body)
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("queue %s: %w", op, err)
	}
	return fmt.Errorf("queue %s: %w: %w", op, request.ErrQueueUnavailable, err)
}
