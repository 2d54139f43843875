package auth

import (
	"strings"
	"sync"
	"time"
)

const (
	// DefaultMaxAttempts is the failure count at which an identity is locked.
	DefaultMaxAttempts = 5

	// DefaultMaxRecords is the record count above which idle records are swept.
	DefaultMaxRecords = 10000

	// DefaultRetention is how long an unlocked record survives without a new failure
	// once the store is over DefaultMaxRecords.
	DefaultRetention = 24 * time.Hour
)

// Attempt is a snapshot of the failure record kept for one identity.
type Attempt struct {
	Failures      int
	LastAttemptAt time.Time
	LockedUntil   time.Time
}

// Throttle tracks failed logins per identity and locks an identity out on a
// Fibonacci schedule once it reaches MaxAttempts failures.
//
// Records are created on the first failure and deleted on success. An
// expired lock does not reset the count: the next failure locks again for
// longer. State is held in memory only. Once the store holds more than
// MaxRecords identities, records that are not locked and have seen no
// failure within the retention window are swept.
//
// Throttle is safe for concurrent use. Each method is a single critical
// section, so concurrent failures for the same identity never lose an
// increment.
type Throttle struct {
	mu          sync.Mutex
	records     map[string]*Attempt
	maxAttempts int
	maxRecords  int
	retention   time.Duration
	now         func() time.Time
}

// ThrottleOption configures a Throttle.
type ThrottleOption func(*Throttle)

// WithMaxAttempts sets the failure count that triggers a lockout.
func WithMaxAttempts(n int) ThrottleOption {
	return func(t *Throttle) {
		if n > 0 {
			t.maxAttempts = n
		}
	}
}

// WithMaxRecords sets the record count above which idle records are swept.
func WithMaxRecords(n int) ThrottleOption {
	return func(t *Throttle) {
		if n > 0 {
			t.maxRecords = n
		}
	}
}

// WithRetention sets how long an unlocked record is kept after its last failure
// when the store is over its record limit.
func WithRetention(d time.Duration) ThrottleOption {
	return func(t *Throttle) {
		if d > 0 {
			t.retention = d
		}
	}
}

// WithThrottleClock replaces the wall clock, for tests.
func WithThrottleClock(now func() time.Time) ThrottleOption {
	return func(t *Throttle) { t.now = now }
}

// NewThrottle creates an empty throttle.
func NewThrottle(opts ...ThrottleOption) *Throttle {
	t := &Throttle{
		records:     make(map[string]*Attempt),
		maxAttempts: DefaultMaxAttempts,
		maxRecords:  DefaultMaxRecords,
		retention:   DefaultRetention,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// MaxAttempts returns the configured lockout threshold.
func (t *Throttle) MaxAttempts() int {
	return t.maxAttempts
}

// CheckLocked reports whether identity is inside a lockout window and, if so,
// how long is left. It never modifies the record.
func (t *Throttle) CheckLocked(identity string) (remaining time.Duration, locked bool) {
	key := throttleKey(identity)

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[key]
	if !ok {
		return 0, false
	}
	now := t.now()
	if !now.Before(rec.LockedUntil) {
		return 0, false
	}
	return rec.LockedUntil.Sub(now), true
}

// RecordFailure counts one failed attempt and returns the new failure count.
// When the count reaches the threshold the identity is locked and lock holds
// the lock duration; otherwise lock is zero. A failure that arrives while the
// identity is already locked (a request that raced the lock) is not counted
// and reports the time left on the current lock.
func (t *Throttle) RecordFailure(identity string) (failures int, lock time.Duration) {
	key := throttleKey(identity)

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	rec, ok := t.records[key]
	if !ok {
		if len(t.records) >= t.maxRecords {
			t.sweepLocked(now)
		}
		rec = &Attempt{}
		t.records[key] = rec
	}
	if now.Before(rec.LockedUntil) {
		return rec.Failures, rec.LockedUntil.Sub(now)
	}

	rec.Failures++
	rec.LastAttemptAt = now
	if rec.Failures >= t.maxAttempts {
		lock = time.Duration(lockoutMinutes(rec.Failures)) * time.Minute
		rec.LockedUntil = now.Add(lock)
	}
	return rec.Failures, lock
}

// RecordSuccess deletes any record for identity.
func (t *Throttle) RecordSuccess(identity string) {
	t.Forget(identity)
}

// Forget deletes any record for identity. Used after a password reset.
func (t *Throttle) Forget(identity string) {
	key := throttleKey(identity)

	t.mu.Lock()
	delete(t.records, key)
	t.mu.Unlock()
}

// Lookup returns a copy of the record for identity.
func (t *Throttle) Lookup(identity string) (Attempt, bool) {
	key := throttleKey(identity)

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[key]
	if !ok {
		return Attempt{}, false
	}
	return *rec, true
}

// Len returns the number of identities with a failure record.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// sweepLocked drops records that are unlocked and idle past the retention
// window. Callers hold t.mu.
func (t *Throttle) sweepLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	for key, rec := range t.records {
		if now.Before(rec.LockedUntil) {
			continue
		}
		if rec.LastAttemptAt.Before(cutoff) {
			delete(t.records, key)
		}
	}
}

func throttleKey(identity string) string {
	return strings.ToLower(identity)
}

// lockoutMinutes returns the lock length for the n-th consecutive failure:
// 1 minute up to the 5th failure, then the (n-4)-th Fibonacci number
// (6th: 1, 7th: 2, 8th: 3, 9th: 5, ...).
func lockoutMinutes(n int) int {
	if n <= 5 { //nolint:mnd // schedule offset
		return 1
	}
	a, b := 1, 1
	for i := 2; i < n-4; i++ {
		a, b = b, a+b
	}
	return b
}
