// Package retry provides the exponential-backoff delay calculator and a
// generic retry wrapper shared by the sync and upload pathways.
package retry

import (
	"math/rand/v2"
	"time"
)

const (
	// BaseDelay is the delay before the first retry.
	BaseDelay = 2 * time.Second

	// MaxDelay caps the backoff growth.
	MaxDelay = 5 * time.Minute

	// jitterFraction bounds the randomization window around the
	// deterministic delay.
	jitterFraction = 0.2
)

// BackoffDelay returns the delay before retry number attempt (0-based):
// BaseDelay doubled per attempt, capped at MaxDelay.
//
// With jitter enabled the result is drawn uniformly from ±20% of the
// deterministic value, so retry storms across clients decorrelate. With
// jitter disabled the result is exact and reproducible.
func BackoffDelay(attempt int, jitter bool) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := BaseDelay
	for i := 0; i < attempt && d < MaxDelay; i++ {
		d *= 2
	}
	if d > MaxDelay {
		d = MaxDelay
	}

	if !jitter {
		return d
	}

	// Uniform in [d*(1-f), d*(1+f)].
	span := float64(d) * jitterFraction
	return time.Duration(float64(d) - span + rand.Float64()*2*span)
}
