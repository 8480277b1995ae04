package sheets

import (
	"context"

	"github.com/erazemk/rezervator/internal/resilience"
)

// Resilient wraps a Client so that every attempt waits for the rate limiter
// and quota errors are retried with backoff.
type Resilient struct {
	next    Client
	limiter *resilience.Limiter
	retrier *resilience.Retrier
}

var _ Client = (*Resilient)(nil)

// NewResilient decorates next.
func NewResilient(next Client, limiter *resilience.Limiter, retrier *resilience.Retrier) *Resilient {
	return &Resilient{next: next, limiter: limiter, retrier: retrier}
}

func (r *Resilient) call(ctx context.Context, op func(context.Context) error) error {
	return r.retrier.Do(ctx, func(ctx context.Context) error {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		return op(ctx)
	})
}

func (r *Resilient) Rows(ctx context.Context, sheet string) ([][]string, error) {
	return resilience.Do(ctx, r.retrier, func(ctx context.Context) ([][]string, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return r.next.Rows(ctx, sheet)
	})
}

func (r *Resilient) Append(ctx context.Context, sheet string, row []string) error {
	return r.call(ctx, func(ctx context.Context) error {
		return r.next.Append(ctx, sheet, row)
	})
}

func (r *Resilient) Update(ctx context.Context, sheet string, index int, row []string) error {
	return r.call(ctx, func(ctx context.Context) error {
		return r.next.Update(ctx, sheet, index, row)
	})
}

func (r *Resilient) DeleteRow(ctx context.Context, sheet string, index int) error {
	return r.call(ctx, func(ctx context.Context) error {
		return r.next.DeleteRow(ctx, sheet, index)
	})
}

func (r *Resilient) EnsureSheet(ctx context.Context, sheet string, header []string) error {
	return r.call(ctx, func(ctx context.Context) error {
		return r.next.EnsureSheet(ctx, sheet, header)
	})
}
