package credential

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"
)

// throttleBackoffSteps is the fixed escalation spec.md §4.7 names for
// throttled token requests: 10s, 20s, 30s, then give up.
var throttleBackoffSteps = []time.Duration{10 * time.Second, 20 * time.Second, 30 * time.Second}

// acquireWithThrottleRetry calls src.Token(), retrying only on a throttled
// (HTTP 429) response from the token endpoint. Any other failure — bad
// grant, network error, revoked refresh token — is returned immediately.
func acquireWithThrottleRetry(ctx context.Context, src oauth2.TokenSource, logger *slog.Logger) (*oauth2.Token, error) {
	var tok *oauth2.Token

	backoff := newSteppedBackoff(throttleBackoffSteps...)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		t, tokErr := src.Token()
		if tokErr != nil {
			if isThrottled(tokErr) {
				logger.Warn("token request throttled, backing off", slog.String("error", tokErr.Error()))
				return retry.RetryableError(tokErr)
			}

			return tokErr
		}

		tok = t

		return nil
	})

	return tok, err
}

// isThrottled reports whether err is an oauth2 token-endpoint error caused
// by rate limiting.
func isThrottled(err error) bool {
	var retrieveErr *oauth2.RetrieveError

	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return retrieveErr.Response.StatusCode == http.StatusTooManyRequests
	}

	return false
}

// steppedBackoff replays a fixed sequence of delays, then stops. Unlike
// go-retry's built-in Constant/Fibonacci/Exponential backoffs, the
// 10s/20s/30s sequence in spec.md §4.7 isn't expressible as a closed-form
// growth rate, so it's spelled out directly.
type steppedBackoff struct {
	steps []time.Duration
	next  int
}

func newSteppedBackoff(steps ...time.Duration) retry.Backoff {
	return &steppedBackoff{steps: steps}
}

func (b *steppedBackoff) Next() (time.Duration, bool) {
	if b.next >= len(b.steps) {
		return 0, true
	}

	d := b.steps[b.next]
	b.next++

	return d, false
}
