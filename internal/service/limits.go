package service

import "time"

// Defaults for UserLimits fields left zero.
const (
	DefaultIdleTimeout = 30 * time.Minute
	DefaultMaxUsers    = 10000
)

// UserLimits bounds the per-user state a service keeps in memory. User ids
// come from a client header, so both the idle lifetime and the count are
// capped.
type UserLimits struct {
	// IdleTimeout evicts a user's state after no access for this long.
	IdleTimeout time.Duration
	// MaxUsers caps users held at once. A new user beyond it gets
	// domain.ErrRateLimited until idle users are evicted.
	MaxUsers int
}

func (l UserLimits) withDefaults() UserLimits {
	if l.IdleTimeout <= 0 {
		l.IdleTimeout = DefaultIdleTimeout
	}
	if l.MaxUsers <= 0 {
		l.MaxUsers = DefaultMaxUsers
	}
	return l
}

// sweepEvery is how often idle users are looked for.
func (l UserLimits) sweepEvery() time.Duration {
	return max(l.IdleTimeout/4, time.Second)
}
