package state

import (
	"testing"
	"time"
)

func TestMarkLiveDetectsFreshTransitions(t *testing.T) {
	tr := NewTracker()

	ch := LiveChannel{UserID: "1", UserLogin: "someone", StartedAt: time.Now()}
	if !tr.MarkLive(ch) {
		t.Error("first MarkLive should report fresh")
	}
	if tr.MarkLive(ch) {
		t.Error("repeated MarkLive should not report fresh")
	}
	if !tr.IsLive("1") {
		t.Error("channel should be live")
	}

	last, wasLive := tr.MarkOffline("1")
	if !wasLive || last.UserLogin != "someone" {
		t.Errorf("MarkOffline returned %+v, %v", last, wasLive)
	}
	if tr.IsLive("1") {
		t.Error("channel should be offline")
	}
	if _, wasLive := tr.MarkOffline("1"); wasLive {
		t.Error("second MarkOffline should report not live")
	}
}

func TestUpdateCategory(t *testing.T) {
	tr := NewTracker()
	tr.MarkLive(LiveChannel{UserID: "1", CategoryID: "g1", CategoryName: "Old Game"})

	previous, changed := tr.UpdateCategory("1", "g2", "New Game", "title")
	if !changed || previous != "Old Game" {
		t.Errorf("expected change from Old Game, got %q changed=%v", previous, changed)
	}

	// Same category again is not a change.
	if _, changed := tr.UpdateCategory("1", "g2", "New Game", "title"); changed {
		t.Error("unchanged category reported as change")
	}

	// Updates on offline channels are ignored.
	if _, changed := tr.UpdateCategory("2", "g3", "Other", ""); changed {
		t.Error("offline channel reported a category change")
	}
}

func TestSessionTransitionsFireCallbacks(t *testing.T) {
	tr := NewTracker()

	var fired int
	tr.OnChange(func() { fired++ })

	if !tr.SetSession(SessionConnected, "sess-1") {
		t.Error("transition should report a change")
	}
	if tr.SetSession(SessionConnected, "sess-1") {
		t.Error("no-op transition should not report a change")
	}
	if fired != 1 {
		t.Errorf("expected 1 callback, got %d", fired)
	}

	status, id := tr.Session()
	if status != SessionConnected || id != "sess-1" {
		t.Errorf("unexpected session %v %q", status, id)
	}

	tr.Reset()
	if status, _ := tr.Session(); status != SessionDisconnected {
		t.Error("Reset should disconnect")
	}
	if len(tr.Live()) != 0 {
		t.Error("Reset should clear the live set")
	}
}
