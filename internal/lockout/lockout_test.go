package lockout

import (
	"testing"
	"time"
)

func TestFailIncrementsAttempts(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	state := State{}

	for i := 1; i < DefaultPolicy.MaxAttempts; i++ {
		state = DefaultPolicy.Fail(state, now)
		if state.Attempts != i {
			t.Fatalf("attempts = %d, want %d", state.Attempts, i)
		}
		if state.Locked(now) {
			t.Fatalf("locked after %d attempts, want unlocked", i)
		}
	}
}

func TestFinalAttemptLocks(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	state := State{}
	for i := 0; i < DefaultPolicy.MaxAttempts; i++ {
		state = DefaultPolicy.Fail(state, now)
	}

	if !state.Locked(now) {
		t.Fatalf("not locked after %d attempts", DefaultPolicy.MaxAttempts)
	}
	want := now.Add(DefaultPolicy.LockDuration)
	if !state.LockedUntil.Equal(want) {
		t.Fatalf("LockedUntil = %v, want %v", state.LockedUntil, want)
	}
}

func TestLockExpires(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	state := State{Attempts: 5, LockedUntil: now.Add(time.Hour)}

	if !state.Locked(now) {
		t.Fatal("expected locked")
	}
	after := now.Add(time.Hour + time.Second)
	if state.Locked(after) {
		t.Fatal("expected lock to have expired")
	}
}

func TestFailAfterExpiredLockStartsOver(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	state := State{Attempts: 5, LockedUntil: now.Add(-time.Minute)}

	state = DefaultPolicy.Fail(state, now)
	if state.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1 after expired lock", state.Attempts)
	}
	if state.Locked(now) {
		t.Fatal("expected unlocked after expired lock")
	}
}

func TestSucceedResets(t *testing.T) {
	t.Parallel()

	state := DefaultPolicy.Succeed()
	if state.Attempts != 0 || !state.LockedUntil.IsZero() {
		t.Fatalf("Succeed() = %+v, want zero state", state)
	}
}

func TestBanned(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	state := DefaultPolicy.Banned(now)

	if state.Attempts != DefaultPolicy.MaxAttempts {
		t.Fatalf("attempts = %d, want %d", state.Attempts, DefaultPolicy.MaxAttempts)
	}
	if !state.Locked(now) {
		t.Fatal("expected banned state to be locked")
	}
}

func TestRemainingMinutesRoundsUp(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	cases := []struct {
		remaining time.Duration
		want      int
	}{
		{30 * time.Second, 1},
		{time.Minute, 1},
		{61 * time.Second, 2},
		{59 * time.Minute, 59},
		{time.Hour, 60},
	}
	for _, tc := range cases {
		state := State{Attempts: 5, LockedUntil: now.Add(tc.remaining)}
		if got := state.RemainingMinutes(now); got != tc.want {
			t.Errorf("RemainingMinutes(%v) = %d, want %d", tc.remaining, got, tc.want)
		}
	}
}

func TestRemainingZeroWhenUnlocked(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	state := State{Attempts: 2}
	if got := state.Remaining(now); got != 0 {
		t.Fatalf("Remaining = %v, want 0", got)
	}
}
