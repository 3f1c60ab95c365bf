package election

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const minBackoff = 10 * time.Millisecond

// newRetryBackOff spaces out consecutive failed sends: randomized (+/-20%)
// exponential delays starting at 10ms and capped at max. It never gives up;
// the retry budget decides that. A non-positive max returns nil.
func newRetryBackOff(max time.Duration) *backoff.ExponentialBackOff {
	if max <= 0 {
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = minBackoff
	if max < minBackoff {
		b.InitialInterval = max
	}
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
