package fetch

import (
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Policy bounds the retries of one request.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the delay before the second attempt; it doubles after
	// every further attempt.
	BaseDelay time.Duration
	// MaxDelay caps every delay, including Retry-After.
	MaxDelay time.Duration
	// Jitter is the fraction by which a delay is randomly stretched or shrunk.
	Jitter float64
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Jitter:      DefaultJitter,
	}
}

// Start returns the retry state of a new request.
func (p Policy) Start() *Backoff {
	return &Backoff{policy: p, random: rand.Float64}
}

// Outcome is what an attempt produced, as far as retrying is concerned.
type Outcome struct {
	Status     Status
	StatusCode int
	// RetryAfter is the server-requested wait, zero when absent.
	RetryAfter time.Duration
	// Terminal marks failures that no retry can fix, like a malformed URL.
	Terminal bool
}

// Retryable reports whether the outcome may succeed on another attempt.
func (o Outcome) Retryable() bool {
	if o.Terminal {
		return false
	}
	switch o.Status {
	case StatusNetworkError, StatusTimeout:
		return true
	case StatusHTTPError:
		return o.StatusCode == http.StatusTooManyRequests || o.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}

// Backoff is the retry state machine of one request. It is not safe for
// concurrent use.
type Backoff struct {
	policy   Policy
	attempts int
	random   func() float64
}

// Attempts returns the number of attempts reported to Next.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// Next records the outcome of an attempt and returns how long to wait before
// the next one. retry is false when the outcome is final or the attempt
// budget is spent.
func (b *Backoff) Next(o Outcome) (delay time.Duration, retry bool) {
	b.attempts++
	if !o.Retryable() || b.attempts >= b.policy.MaxAttempts {
		return 0, false
	}
	if o.RetryAfter > 0 {
		return b.cap(o.RetryAfter), true
	}
	return b.cap(b.jitter(b.exponential())), true
}

// exponential returns BaseDelay * 2^(attempts-1).
func (b *Backoff) exponential() time.Duration {
	d := b.policy.BaseDelay
	for i := 1; i < b.attempts; i++ {
		d *= 2
		if b.policy.MaxDelay > 0 && d >= b.policy.MaxDelay {
			return b.policy.MaxDelay
		}
	}
	return d
}

func (b *Backoff) jitter(d time.Duration) time.Duration {
	j := b.policy.Jitter
	if j <= 0 || d <= 0 {
		return d
	}
	// Scale by a factor in [1-j, 1+j].
	factor := 1 + j*(2*b.random()-1)
	return time.Duration(float64(d) * factor)
}

func (b *Backoff) cap(d time.Duration) time.Duration {
	if b.policy.MaxDelay > 0 && d > b.policy.MaxDelay {
		return b.policy.MaxDelay
	}
	return d
}

// parseRetryAfter reads a Retry-After header given either as delay seconds or
// as an HTTP date. It returns zero when the header is absent or unusable.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
