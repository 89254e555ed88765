package presence

import (
	"testing"
	"time"

	"github.com/eldtechnologies/sketchsync/internal/models"
)

func TestApplyUpsertsAndStampsLastSeen(t *testing.T) {
	tr := NewTracker()

	before := time.Now().UnixMilli()
	if !tr.Apply("c1", &models.AwarenessState{User: "ada"}) {
		t.Fatal("first apply reported no change")
	}
	got := tr.Snapshot()["c1"]
	if got.User != "ada" {
		t.Fatalf("entry = %+v", got)
	}
	if got.LastSeen < before {
		t.Fatalf("LastSeen not stamped: %d < %d", got.LastSeen, before)
	}

	tr.Apply("c1", &models.AwarenessState{User: "ada", IsDrawing: true})
	if !tr.Snapshot()["c1"].IsDrawing {
		t.Fatal("upsert did not replace state")
	}
	if tr.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", tr.Len())
	}
}

func TestNilStateRemoves(t *testing.T) {
	tr := NewTracker()
	tr.Apply("c1", &models.AwarenessState{User: "ada"})

	if !tr.Apply("c1", nil) {
		t.Fatal("removal reported no change")
	}
	if tr.Apply("c1", nil) {
		t.Fatal("removing an absent entry reported a change")
	}
	if tr.Len() != 0 {
		t.Fatal("entry survived removal")
	}
}

func TestRemove(t *testing.T) {
	tr := NewTracker()
	tr.Apply("c1", &models.AwarenessState{})
	if !tr.Remove("c1") {
		t.Fatal("expected removal")
	}
	if tr.Remove("c1") {
		t.Fatal("double removal reported a change")
	}
}

func TestPruneDropsOnlyStaleEntries(t *testing.T) {
	tr := NewTracker()
	now := time.Now()
	tr.now = func() time.Time { return now.Add(-2 * time.Minute) }
	tr.Apply("stale", &models.AwarenessState{User: "ghost"})
	tr.now = func() time.Time { return now }
	tr.Apply("fresh", &models.AwarenessState{User: "here"})

	removed := tr.Prune(time.Minute)
	if len(removed) != 1 || removed[0] != "stale" {
		t.Fatalf("removed = %v", removed)
	}
	if _, ok := tr.Snapshot()["fresh"]; !ok {
		t.Fatal("fresh entry pruned")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	tr := NewTracker()
	tr.Apply("c1", &models.AwarenessState{User: "ada"})

	snap := tr.Snapshot()
	delete(snap, "c1")
	if tr.Len() != 1 {
		t.Fatal("mutating a snapshot mutated the tracker")
	}
}

func TestEmptyClientIDIgnored(t *testing.T) {
	tr := NewTracker()
	if tr.Apply("", &models.AwarenessState{}) {
		t.Fatal("empty client id accepted")
	}
}
