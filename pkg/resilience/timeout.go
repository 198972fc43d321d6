package resilience

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-search-index/pkg/errors"
)

// WithTimeout runs fn with a context cancelled after timeout and stops
// waiting for it at that point. Running out of time yields an error matching
// apperrors.ErrTimeout and context.DeadlineExceeded; a cancelled parent is
// reported as such. A non-positive timeout runs fn unbounded.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx2, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- fn(ctx2) }()

	select {
	case err := <-result:
		return err
	case <-ctx2.Done():
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return apperrors.Wrap(apperrors.ErrTimeout, http.StatusServiceUnavailable, context.DeadlineExceeded,
			"%s did not finish within %v", name, timeout)
	}
}
