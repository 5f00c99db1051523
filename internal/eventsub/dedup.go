package eventsub

import (
	"time"

	"github.com/user/twitch-sentry/internal/clock"
)

// sweepInterval is the number of accesses between opportunistic full sweeps.
const sweepInterval = 256

// TTLSet is a set of string keys whose entries expire a fixed duration
// after insertion. Expired entries are evicted lazily on access, plus a
// full sweep every sweepInterval accesses so memory stays bounded under
// bursty inserts.
//
// The set is owned by a single goroutine and is not safe for concurrent
// use.
type TTLSet struct {
	ttl     time.Duration
	clock   clock.Clock
	entries map[string]time.Time
	ops     int
}

// NewTTLSet returns an empty set with the given entry lifetime.
func NewTTLSet(ttl time.Duration, clk clock.Clock) *TTLSet {
	return &TTLSet{
		ttl:     ttl,
		clock:   clk,
		entries: make(map[string]time.Time),
	}
}

// Add inserts key and reports true if it was absent. Re-adding a live key
// reports false and does not extend its lifetime.
func (s *TTLSet) Add(key string) bool {
	now := s.clock.Now()
	s.maintain(now)
	if inserted, ok := s.entries[key]; ok && now.Sub(inserted) <= s.ttl {
		return false
	}
	s.entries[key] = now
	return true
}

// Contains reports whether an unexpired entry for key exists.
func (s *TTLSet) Contains(key string) bool {
	now := s.clock.Now()
	s.maintain(now)
	inserted, ok := s.entries[key]
	return ok && now.Sub(inserted) <= s.ttl
}

// Len returns the number of unexpired entries.
func (s *TTLSet) Len() int {
	now := s.clock.Now()
	s.sweep(now)
	return len(s.entries)
}

func (s *TTLSet) maintain(now time.Time) {
	s.ops++
	if s.ops >= sweepInterval {
		s.ops = 0
		s.sweep(now)
	}
}

func (s *TTLSet) sweep(now time.Time) {
	for key, inserted := range s.entries {
		if now.Sub(inserted) > s.ttl {
			delete(s.entries, key)
		}
	}
}
