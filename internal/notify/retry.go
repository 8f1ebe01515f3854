package notify

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy yields the delay to sleep before retry attempt n (1-based).
type RetryPolicy interface {
	Delay(attempt int) time.Duration
}

// FlatPolicy sleeps the same interval between every attempt. This is the
// dispatcher's default: report mail failures are almost always a mail relay
// hiccup where a fixed short pause is enough, and the batch driver wants
// predictable per-unit runtime.
type FlatPolicy struct {
	Interval time.Duration
}

func (p FlatPolicy) Delay(int) time.Duration { return p.Interval }

// BackoffPolicy grows the delay exponentially with jitter, for callers
// dispatching against rate-limited or flaky relays.
type BackoffPolicy struct {
	Initial        time.Duration
	Max            time.Duration
	Multiplier     float64
	JitterFraction float64
}

// DefaultBackoff returns a backoff policy suitable for external relays.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		Initial:        500 * time.Millisecond,
		Max:            30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := p.Initial
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 2.0
	}
	delay := float64(initial) * math.Pow(mult, float64(attempt-1))
	if p.Max > 0 && delay > float64(p.Max) {
		delay = float64(p.Max)
	}
	if p.JitterFraction > 0 {
		jitter := delay * p.JitterFraction
		delay = delay - jitter + rand.Float64()*2*jitter
	}
	return time.Duration(delay)
}
