package search

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanmcp/internal/errors"
)

// GatherConfig bounds the concurrency and retry policy of Gather.
type GatherConfig struct {
	// Concurrency caps the number of work units in flight at once. <= 0
	// means unbounded.
	Concurrency int
	Retry       errors.RetryConfig
}

// DefaultGatherConfig bounds fan-out to 8 concurrent units with the
// package-wide default retry policy.
func DefaultGatherConfig() GatherConfig {
	return GatherConfig{Concurrency: 8, Retry: errors.DefaultRetryConfig()}
}

// Gather runs one factory per unit, each retried per cfg.Retry, with at
// most cfg.Concurrency in flight. A unit whose retries are all exhausted
// leaves a nil slot rather than failing the whole gather: permanent
// failure of one fan-out unit never aborts its siblings. Gather itself
// only returns an error on context cancellation.
func Gather[T any](ctx context.Context, units []func(ctx context.Context) (T, error), cfg GatherConfig) ([]*T, error) {
	results := make([]*T, len(units))
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Concurrency > 0 {
		g.SetLimit(cfg.Concurrency)
	}

	for i, unit := range units {
		i, unit := i, unit
		g.Go(func() error {
			v, err := errors.RetryWithResult(gctx, cfg.Retry, func() (T, error) {
				return unit(gctx)
			})
			if err != nil {
				// Permanent failure of this slot only; never propagated.
				return nil
			}
			results[i] = &v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}
