// Package lockout implements the per-account failed-login state machine.
// All mutation of an account's attempt counter and lock timestamp flows
// through these transitions; persistence applies them with a store-level
// compare-and-swap so concurrent attempts cannot lose updates.
package lockout

import "time"

// DefaultPolicy matches the production lockout rules: the fifth
// consecutive failure locks the account for one hour.
var DefaultPolicy = Policy{
	MaxAttempts:  5,
	LockDuration: time.Hour,
}

type Policy struct {
	MaxAttempts  int
	LockDuration time.Duration
}

// State is a snapshot of an account's lockout fields.
type State struct {
	Attempts    int
	LockedUntil time.Time
}

// Locked reports whether the account is currently unauthenticatable.
// An expired lock counts as unlocked; it is cleared lazily on the next
// transition rather than by an explicit unlock.
func (s State) Locked(now time.Time) bool {
	return !s.LockedUntil.IsZero() && s.LockedUntil.After(now)
}

// Remaining returns how long the lock still holds, zero if unlocked.
func (s State) Remaining(now time.Time) time.Duration {
	if !s.Locked(now) {
		return 0
	}
	return s.LockedUntil.Sub(now)
}

// RemainingMinutes rounds the remaining lock up to the minute for
// caller-facing messages.
func (s State) RemainingMinutes(now time.Time) int {
	remaining := s.Remaining(now)
	if remaining <= 0 {
		return 0
	}
	return int((remaining + time.Minute - 1) / time.Minute)
}

// normalize treats an expired lock as a fresh unlocked state.
func (s State) normalize(now time.Time) State {
	if !s.LockedUntil.IsZero() && !s.LockedUntil.After(now) {
		return State{}
	}
	return s
}

// Fail applies one failed attempt. A failure right after lock expiry
// yields Attempts == 1, not a continuation of the old counter. Reaching
// MaxAttempts engages the lock.
func (p Policy) Fail(s State, now time.Time) State {
	s = s.normalize(now)
	next := State{Attempts: s.Attempts + 1}
	if next.Attempts >= p.MaxAttempts {
		next.LockedUntil = now.Add(p.LockDuration)
	}
	return next
}

// Succeed resets the state after a successful authentication.
func (p Policy) Succeed() State {
	return State{}
}

// Banned returns the state an administrative ban forces: counter at the
// threshold and the lock engaged for a full lock duration.
func (p Policy) Banned(now time.Time) State {
	return State{
		Attempts:    p.MaxAttempts,
		LockedUntil: now.Add(p.LockDuration),
	}
}
