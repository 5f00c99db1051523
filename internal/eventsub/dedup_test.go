package eventsub

import (
	"fmt"
	"testing"
	"time"

	"github.com/user/twitch-sentry/internal/clock"
)

func TestTTLSetAdd(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	s := NewTTLSet(10*time.Minute, clk)

	if !s.Add("a") {
		t.Error("first Add should report true")
	}
	if s.Add("a") {
		t.Error("second Add should report false")
	}
	if !s.Contains("a") {
		t.Error("Contains should see a live entry")
	}
	if s.Contains("b") {
		t.Error("Contains should not see an absent key")
	}
}

func TestTTLSetExpiry(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	s := NewTTLSet(10*time.Minute, clk)

	s.Add("a")
	clk.Advance(10 * time.Minute)
	if !s.Contains("a") {
		t.Error("entry at exactly ttl should still be visible")
	}

	clk.Advance(time.Second)
	if s.Contains("a") {
		t.Error("expired entry still visible")
	}
	if !s.Add("a") {
		t.Error("expired key should be addable again")
	}
}

func TestTTLSetReAddDoesNotExtend(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	s := NewTTLSet(10*time.Minute, clk)

	s.Add("a")
	clk.Advance(9 * time.Minute)
	if s.Add("a") {
		t.Error("re-adding a live key should report false")
	}
	clk.Advance(2 * time.Minute)
	if s.Contains("a") {
		t.Error("the original insertion time governs expiry")
	}
}

func TestTTLSetMemoryBounded(t *testing.T) {
	clk := clock.NewFake(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	s := NewTTLSet(time.Minute, clk)

	for i := 0; i < 10*sweepInterval; i++ {
		s.Add(fmt.Sprintf("burst-%d", i))
	}
	clk.Advance(2 * time.Minute)

	// Keep accessing until a sweep has certainly run.
	for i := 0; i < sweepInterval+1; i++ {
		s.Contains("probe")
	}
	if n := s.Len(); n != 0 {
		t.Errorf("expected all entries swept, %d remain", n)
	}
}
