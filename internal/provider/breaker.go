package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// Resilient wraps a Provider with a circuit breaker so a failing backend is
// rejected fast instead of burning request deadlines. Governance decisions
// happen before the breaker, so an open circuit never spends budget.
type Resilient struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker
}

func WithBreaker(p Provider) *Resilient {
	settings := gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	}
	return &Resilient{
		inner: p,
		cb:    gobreaker.NewCircuitBreaker(settings),
	}
}

func (r *Resilient) Complete(ctx context.Context, req *Request) (*Response, error) {
	result, err := r.cb.Execute(func() (interface{}, error) {
		return r.inner.Complete(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Response), nil
}

func (r *Resilient) AnalyzeScene(ctx context.Context, req *VisionRequest) (*SceneAnalysis, error) {
	result, err := r.cb.Execute(func() (interface{}, error) {
		return r.inner.AnalyzeScene(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*SceneAnalysis), nil
}

func (r *Resilient) CompleteStream(ctx context.Context, req *Request) (<-chan *Chunk, error) {
	if r.cb.State() == gobreaker.StateOpen {
		return nil, fmt.Errorf("circuit breaker is open for provider: %s", r.inner.Name())
	}

	origCh, err := r.inner.CompleteStream(ctx, req)
	if err != nil {
		_, _ = r.cb.Execute(func() (interface{}, error) {
			return nil, err
		})
		return nil, err
	}

	wrappedCh := make(chan *Chunk)
	go func() {
		defer close(wrappedCh)
		for chunk := range origCh {
			if chunk.Err != nil {
				_, _ = r.cb.Execute(func() (interface{}, error) {
					return nil, chunk.Err
				})
			}
			select {
			case wrappedCh <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return wrappedCh, nil
}

func (r *Resilient) Name() string {
	return r.inner.Name()
}
