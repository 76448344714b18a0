package process

import (
	"context"

	"github.com/p2pswarm/node/internal/retry"
)

// retryDial wraps op with the exponential-backoff policy used for dialing
// an earlier-ranked peer that may not be listening yet on process startup.
func retryDial(ctx context.Context, op retry.Operation) error {
	return retry.Do(ctx, op, retry.WithExponentialBackoff(dialMaxAttempts, dialInitialDelay, dialMaxDelay)...)
}
