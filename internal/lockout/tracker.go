// Package lockout tracks failed login attempts per identity key and
// decides when an identity is temporarily locked out.
//
// An identity key combines the lowercase account email with a coarse IP
// bucket, so credential stuffing against one account from many networks
// and spraying across many accounts from one network are both dampened.
// State is keyed by identity key alone and is never joined to a user
// record: the counter exists even when the account lookup fails, which
// keeps unknown and known accounts indistinguishable to an attacker.
package lockout

import (
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

const shardCount = 32

// Policy holds the fixed-window lockout thresholds.
type Policy struct {
	Threshold int           // failures within Window that trigger a lock
	Window    time.Duration // fixed counting window
	Duration  time.Duration // how long a lock lasts once set
}

// DefaultPolicy returns the production defaults: 5 failures within
// 15 minutes lock the key for 15 minutes.
func DefaultPolicy() Policy {
	return Policy{
		Threshold: 5,
		Window:    15 * time.Minute,
		Duration:  15 * time.Minute,
	}
}

type entry struct {
	failures    int
	windowStart time.Time
	lockedUntil time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Tracker counts failed attempts per identity key. Each key maps to one
// of a fixed set of shards; the shard mutex makes increment-then-compare
// a single critical section per key while unrelated keys proceed on
// other shards.
type Tracker struct {
	policy Policy
	shards [shardCount]*shard
	now    func() time.Time
}

// NewTracker creates a Tracker with the given policy.
func NewTracker(policy Policy) *Tracker {
	t := &Tracker{
		policy: policy,
		now:    time.Now,
	}
	for i := range t.shards {
		t.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return t
}

// SetClock replaces the tracker's time source. Test use only.
func (t *Tracker) SetClock(now func() time.Time) {
	t.now = now
}

// IdentityKey derives the attempt-counting key from an email and client
// IP bucket. The email is normalized so "User@X.com" and "user@x.com"
// share a counter.
func IdentityKey(email, ipBucket string) string {
	return strings.ToLower(strings.TrimSpace(email)) + "|" + ipBucket
}

// IsLocked reports whether the key is currently locked. Unknown keys are
// never locked.
func (t *Tracker) IsLocked(key string) bool {
	locked, _ := t.LockedUntil(key)
	return locked
}

// LockedUntil reports the lock state and, when locked, the expiry time.
func (t *Tracker) LockedUntil(key string) (bool, time.Time) {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false, time.Time{}
	}
	now := t.now()
	if now.Before(e.lockedUntil) {
		return true, e.lockedUntil
	}
	return false, time.Time{}
}

// RecordAttempt records the outcome of a login attempt for the key. A
// success clears the counter immediately. A failure increments it; when
// the counter reaches the threshold within the window the key is locked
// for the policy duration. Returns true when this call set the lock, so
// the caller can raise the lock event exactly once.
func (t *Tracker) RecordAttempt(key string, success bool) bool {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if success {
		delete(s.entries, key)
		return false
	}

	now := t.now()
	e, ok := s.entries[key]
	if !ok {
		e = &entry{windowStart: now}
		s.entries[key] = e
	} else if now.Sub(e.windowStart) > t.policy.Window && !now.Before(e.lockedUntil) {
		// Window elapsed and no active lock: start a fresh window.
		e.failures = 0
		e.windowStart = now
	}

	e.failures++

	if e.failures >= t.policy.Threshold && !now.Before(e.lockedUntil) {
		if e.failures == t.policy.Threshold {
			e.lockedUntil = now.Add(t.policy.Duration)
			return true
		}
		// Past-threshold failures during an expired lock re-arm a fresh
		// window rather than extending the old lock.
		e.failures = 1
		e.windowStart = now
	}

	return false
}

// Remaining reports how many more failures the key can absorb before it
// locks. Unknown keys report the full threshold.
func (t *Tracker) Remaining(key string) int {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return t.policy.Threshold
	}
	now := t.now()
	if now.Before(e.lockedUntil) {
		return 0
	}
	if now.Sub(e.windowStart) > t.policy.Window {
		return t.policy.Threshold
	}
	remaining := t.policy.Threshold - e.failures
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Purge drops entries whose window and lock have both expired. Called
// periodically by the background cleanup manager to bound memory.
func (t *Tracker) Purge() int {
	now := t.now()
	removed := 0
	for _, s := range t.shards {
		s.mu.Lock()
		for key, e := range s.entries {
			if now.Sub(e.windowStart) > t.policy.Window && !now.Before(e.lockedUntil) {
				delete(s.entries, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

func (t *Tracker) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return t.shards[h.Sum32()%shardCount]
}
