package upload

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultMaxAttempts bounds the number of send attempts per batch,
// Property 8's "≤ 10 attempts per item".
const DefaultMaxAttempts = 10

// newBackOff configures the exponential backoff policy Property 8
// requires: 1s base, doubling to a 5 minute cap, full jitter via a 0.5
// randomization factor so each delay lands in
// [base·2^k·0.5, base·2^k·1.5], bounded to DefaultMaxAttempts tries
// total (the first send plus DefaultMaxAttempts-1 retries).
func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.MaxInterval = 5 * time.Minute
	b.MaxElapsedTime = 0 // bounded by attempt count, not wall-clock elapsed time
	return backoff.WithMaxRetries(b, DefaultMaxAttempts-1)
}
