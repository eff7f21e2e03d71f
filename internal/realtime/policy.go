package realtime

import "time"

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// ReconnectPolicy controls how often the manager retries after the transport closes.
type ReconnectPolicy struct {
	// MaxAttempts caps consecutive retries. Zero disables reconnection.
	MaxAttempts int
	// BaseDelay is the wait before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the doubled delay.
	MaxDelay time.Duration
}

// DefaultReconnectPolicy returns 5 attempts starting at 1s and capped at 30s.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
	}
}

// Delay returns min(BaseDelay * 2^attempt, MaxDelay) for a zero-based attempt counter.
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	if base >= maxDelay {
		return maxDelay
	}

	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	return delay
}
