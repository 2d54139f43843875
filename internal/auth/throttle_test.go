package auth

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestLockoutMinutes(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{1, 1}, {4, 1}, {5, 1},
		{6, 1}, {7, 2}, {8, 3}, {9, 5}, {10, 8}, {11, 13}, {12, 21},
	}

	for _, tt := range tests {
		if got := lockoutMinutes(tt.n); got != tt.want {
			t.Errorf("lockoutMinutes(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}

	prev := 0
	for n := 1; n <= 30; n++ {
		got := lockoutMinutes(n)
		if got < prev {
			t.Fatalf("lockoutMinutes(%d) = %d decreased from %d", n, got, prev)
		}
		prev = got
	}
}

func TestThrottle_LocksAfterMaxAttempts(t *testing.T) {
	clock := newFakeClock()
	th := NewThrottle(WithThrottleClock(clock.Now))

	for i := 1; i < DefaultMaxAttempts; i++ {
		failures, lock := th.RecordFailure("bob")
		if failures != i || lock != 0 {
			t.Fatalf("failure %d: got (%d, %v), want (%d, 0)", i, failures, lock, i)
		}
		if _, locked := th.CheckLocked("bob"); locked {
			t.Fatalf("locked after %d failures", i)
		}
	}

	failures, lock := th.RecordFailure("bob")
	if failures != 5 || lock != time.Minute {
		t.Fatalf("5th failure: got (%d, %v), want (5, 1m)", failures, lock)
	}

	remaining, locked := th.CheckLocked("bob")
	if !locked {
		t.Fatal("expected lock after 5th failure")
	}
	if remaining != time.Minute {
		t.Errorf("remaining = %v, want 1m", remaining)
	}
}

func TestThrottle_CheckLockedDoesNotCount(t *testing.T) {
	clock := newFakeClock()
	th := NewThrottle(WithThrottleClock(clock.Now))

	for range 5 {
		th.RecordFailure("bob")
	}
	for range 10 {
		th.CheckLocked("bob")
	}

	rec, ok := th.Lookup("bob")
	if !ok || rec.Failures != 5 {
		t.Errorf("Failures = %d, want 5", rec.Failures)
	}
}

func TestThrottle_EscalatesAfterLockExpires(t *testing.T) {
	clock := newFakeClock()
	th := NewThrottle(WithThrottleClock(clock.Now))

	for range 5 {
		th.RecordFailure("bob")
	}

	wantLocks := []time.Duration{1 * time.Minute, 2 * time.Minute, 3 * time.Minute, 5 * time.Minute}
	current := time.Minute
	for i, want := range wantLocks {
		clock.Advance(current + time.Second)
		if _, locked := th.CheckLocked("bob"); locked {
			t.Fatalf("step %d: still locked after window", i)
		}

		failures, lock := th.RecordFailure("bob")
		if lock != want {
			t.Errorf("failure %d: lock = %v, want %v", failures, lock, want)
		}
		current = lock
	}
}

func TestThrottle_SuccessClearsRecord(t *testing.T) {
	clock := newFakeClock()
	th := NewThrottle(WithThrottleClock(clock.Now))

	for range 3 {
		th.RecordFailure("bob")
	}
	th.RecordSuccess("bob")

	if _, ok := th.Lookup("bob"); ok {
		t.Fatal("record should be deleted after success")
	}

	failures, _ := th.RecordFailure("bob")
	if failures != 1 {
		t.Errorf("failures after success = %d, want 1", failures)
	}
}

func TestThrottle_KeyIsCaseInsensitive(t *testing.T) {
	th := NewThrottle(WithThrottleClock(newFakeClock().Now))

	th.RecordFailure("Bob")
	failures, _ := th.RecordFailure("BOB")
	if failures != 2 {
		t.Errorf("failures = %d, want 2 for case variants of one identity", failures)
	}
	if th.Len() != 1 {
		t.Errorf("Len() = %d, want 1", th.Len())
	}
}

func TestThrottle_IdentitiesAreIndependent(t *testing.T) {
	th := NewThrottle(WithThrottleClock(newFakeClock().Now))

	for range 5 {
		th.RecordFailure("bob")
	}
	if _, locked := th.CheckLocked("alice"); locked {
		t.Error("alice should not be locked by bob's failures")
	}
}

func TestThrottle_WithMaxAttempts(t *testing.T) {
	th := NewThrottle(WithThrottleClock(newFakeClock().Now), WithMaxAttempts(2))

	th.RecordFailure("bob")
	_, lock := th.RecordFailure("bob")
	if lock != time.Minute {
		t.Errorf("lock = %v, want 1m at custom threshold", lock)
	}
	if th.MaxAttempts() != 2 {
		t.Errorf("MaxAttempts() = %d, want 2", th.MaxAttempts())
	}

	// Non-positive values keep the default.
	if got := NewThrottle(WithMaxAttempts(0)).MaxAttempts(); got != DefaultMaxAttempts {
		t.Errorf("MaxAttempts() = %d, want default %d", got, DefaultMaxAttempts)
	}
}

func TestThrottle_NewInstanceStartsEmpty(t *testing.T) {
	th := NewThrottle()
	th.RecordFailure("bob")

	// A restart means a fresh Throttle: nothing carries over.
	restarted := NewThrottle()
	if restarted.Len() != 0 {
		t.Errorf("Len() = %d, want 0", restarted.Len())
	}
}

func TestThrottle_ConcurrentFailures(t *testing.T) {
	th := NewThrottle(WithThrottleClock(newFakeClock().Now), WithMaxAttempts(1000))

	const workers = 50
	const perWorker = 20

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWorker {
				th.RecordFailure("bob")
				th.CheckLocked("bob")
			}
		}()
	}
	wg.Wait()

	rec, _ := th.Lookup("bob")
	if rec.Failures != workers*perWorker {
		t.Errorf("Failures = %d, want %d", rec.Failures, workers*perWorker)
	}
}

func TestThrottle_FailureWhileLockedIsNotCounted(t *testing.T) {
	clock := newFakeClock()
	th := NewThrottle(WithThrottleClock(clock.Now))

	for range 5 {
		th.RecordFailure("bob")
	}
	clock.Advance(20 * time.Second)

	failures, lock := th.RecordFailure("bob")
	if failures != 5 {
		t.Errorf("failures = %d, want 5", failures)
	}
	if lock != 40*time.Second {
		t.Errorf("lock = %v, want remaining 40s", lock)
	}
}

func TestThrottle_SweepsIdleRecordsOverLimit(t *testing.T) {
	clock := newFakeClock()
	th := NewThrottle(
		WithThrottleClock(clock.Now),
		WithMaxRecords(3),
		WithRetention(30*time.Second),
	)

	th.RecordFailure("idle")
	for range 5 {
		th.RecordFailure("locked")
	}
	clock.Advance(45 * time.Second)
	th.RecordFailure("recent")

	if got := th.Len(); got != 3 {
		t.Fatalf("Len() = %d before sweep, want 3", got)
	}

	th.RecordFailure("newcomer")

	if _, ok := th.Lookup("idle"); ok {
		t.Error("idle record survived the sweep")
	}
	rec, ok := th.Lookup("locked")
	if !ok || rec.Failures != 5 {
		t.Errorf("locked record = (%+v, %v), want 5 failures kept", rec, ok)
	}
	if _, ok := th.Lookup("recent"); !ok {
		t.Error("record inside the retention window was swept")
	}
	if got := th.Len(); got != 3 {
		t.Errorf("Len() = %d after sweep, want 3", got)
	}
}

func TestThrottle_SprayStaysBounded(t *testing.T) {
	clock := newFakeClock()
	th := NewThrottle(
		WithThrottleClock(clock.Now),
		WithMaxRecords(100),
		WithRetention(time.Minute),
	)

	for i := range 1000 {
		th.RecordFailure(fmt.Sprintf("spray-%d", i))
		clock.Advance(10 * time.Second)
	}

	// Records younger than the retention window are the most that survive.
	if got := th.Len(); got > 100 {
		t.Errorf("Len() = %d, want at most 100", got)
	}
}
