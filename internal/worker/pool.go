package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/media-pipeline/internal/queue"
)

// Receive-failure backoff bounds.
const (
	minBackoff = 100 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// Pool runs Concurrency independent consumers against one queue.
type Pool struct {
	Queue       queue.Queue
	Worker      *Worker
	Concurrency int
	// MaxBackoff caps the wait after a failed Receive. Defaults to 30s.
	MaxBackoff time.Duration
}

// Run consumes until ctx is cancelled, then waits for in-flight messages to
// be settled. It returns nil on a clean shutdown.
func (p *Pool) Run(ctx context.Context) error {
	n := max(p.Concurrency, 1)
	log.Info().Int("concurrency", n).Msg("Worker pool starting")

	g := new(errgroup.Group)
	for i := range n {
		g.Go(func() error {
			p.consume(ctx, i)
			return nil
		})
	}
	err := g.Wait()
	log.Info().Msg("Worker pool stopped")
	return err
}

func (p *Pool) consume(ctx context.Context, id int) {
	logger := log.With().Int("consumer", id).Logger()
	backoff := time.Duration(0)
	for ctx.Err() == nil {
		m, err := p.Queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			backoff = p.nextBackoff(backoff)
			logger.Warn().Err(err).Dur("backoff", backoff).Msg("Queue receive failed")
			if !sleep(ctx, backoff) {
				return
			}
			continue
		}
		backoff = 0
		if m == nil {
			continue
		}
		p.settle(ctx, m)
	}
}

// settle handles m and acknowledges or abandons it. Settling uses a context
// detached from shutdown so a message that finished is not redelivered.
func (p *Pool) settle(ctx context.Context, m *queue.Message) {
	d := p.Worker.Handle(ctx, m.ID, []byte(m.Body))
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	var err error
	if d.Deletes() {
		err = p.Queue.Ack(sctx, m)
	} else {
		err = p.Queue.Abandon(sctx, m)
	}
	if err != nil {
		// The lease lapses on its own and the message is redelivered.
		log.Error().Err(err).
			Str("messageId", m.ID).
			Str("disposition", d.String()).
			Msg("Failed to settle message")
	}
}

func (p *Pool) nextBackoff(prev time.Duration) time.Duration {
	limit := p.MaxBackoff
	if limit <= 0 {
		limit = maxBackoff
	}
	next := prev * 2
	if next < minBackoff {
		next = minBackoff
	}
	return min(next, limit)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
