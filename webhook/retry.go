package webhook

import (
	"fmt"
	"time"
)

// Backoff selects how the delay between attempts grows
type Backoff int

const (
	Fixed Backoff = iota + 1
	Exponential
)

// String returns the string representation of the backoff
func (b Backoff) String() string {
	switch b {
	case Fixed:
		return "fixed"
	case Exponential:
		return "exponential"
	default:
		return "unknown"
	}
}

// NewBackoff creates a Backoff from a string
func NewBackoff(s string) Backoff {
	switch s {
	case "exponential":
		return Exponential
	default:
		return Fixed
	}
}

/* RetryPolicy bounds a delivery cycle
 * MaxAttempts counts the initial attempt: 3 means one try plus two retries
 */
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Backoff     Backoff
	MaxDelay    time.Duration
}

// DefaultRetryPolicy returns 3 attempts with a fixed 2 second delay
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       2 * time.Second,
		Backoff:     Fixed,
		MaxDelay:    time.Minute,
	}
}

// Validate checks if the policy is usable
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1 (got %d)", p.MaxAttempts)
	}
	if p.Delay < 0 {
		return fmt.Errorf("retry delay cannot be negative")
	}
	if p.Backoff != Fixed && p.Backoff != Exponential {
		return fmt.Errorf("invalid backoff: %d", p.Backoff)
	}
	return nil
}

// Budget returns the attempt budget, preferring a positive override
func (p RetryPolicy) Budget(override int) int {
	if override > 0 {
		return override
	}
	return p.MaxAttempts
}

// NextDelay returns how long to wait after the given failed attempt (1-based)
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if p.Backoff != Exponential || attempt < 1 {
		return p.Delay
	}
	delay := p.Delay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}
