// Package cleanup removes stale scratch objects from the temp namespace.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/media-pipeline/internal/router"
	"github.com/fpang/media-pipeline/internal/store"
)

// DefaultRetention is how long temp objects are kept.
const DefaultRetention = 7 * 24 * time.Hour

// Report summarises one sweep.
type Report struct {
	Scanned      int      `json:"scanned"`
	Deleted      int      `json:"deleted"`
	DeletedBytes int64    `json:"deletedBytes"`
	Failed       []string `json:"failed,omitempty"`
}

// Sweeper deletes objects older than Retention from Namespace.
type Sweeper struct {
	Store     store.Manager
	Namespace string
	Retention time.Duration
	// DryRun reports what would be deleted without deleting it.
	DryRun bool
	Now    func() time.Time
}

// New returns a Sweeper for the temp namespace with the default retention.
func New(s store.Manager) *Sweeper {
	return &Sweeper{Store: s, Namespace: router.NamespaceTemp, Retention: DefaultRetention, Now: time.Now}
}

// Sweep lists the namespace once and deletes everything past retention.
// Individual delete failures are collected and do not stop the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	var r Report
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	retention := s.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	cutoff := now().Add(-retention)

	objects, err := s.Store.List(ctx, s.Namespace, "")
	if err != nil {
		return r, fmt.Errorf("list %s: %w", s.Namespace, err)
	}
	r.Scanned = len(objects)

	var errs []error
	for _, obj := range objects {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if !obj.LastModified.Before(cutoff) {
			continue
		}
		if !s.DryRun {
			if err := s.Store.Delete(ctx, obj.Namespace, obj.Key); err != nil && !errors.Is(err, store.ErrNotFound) {
				log.Warn().Err(err).Str("namespace", obj.Namespace).Str("key", obj.Key).Msg("Failed to delete temp object")
				r.Failed = append(r.Failed, obj.Key)
				errs = append(errs, err)
				continue
			}
		}
		r.Deleted++
		r.DeletedBytes += obj.Size
	}

	log.Info().
		Str("namespace", s.Namespace).
		Dur("retention", retention).
		Bool("dryRun", s.DryRun).
		Int("scanned", r.Scanned).
		Int("deleted", r.Deleted).
		Int64("deletedBytes", r.DeletedBytes).
		Int("failed", len(r.Failed)).
		Msg("Temp cleanup complete")
	return r, errors.Join(errs...)
}
