package document

import (
	"reflect"
	"sort"
	"testing"

	"github.com/eldtechnologies/sketchsync/internal/models"
)

func opDelta(id, actor string, seq uint64, ts int64) Delta {
	return Delta{Ops: []models.DrawingOperation{{
		ID: id, Type: models.OpDraw, Actor: actor, Seq: seq, Timestamp: ts, X: 1, Y: 2,
	}}}
}

func sortedOpIDs(d *Document) []string {
	snap := d.Snapshot()
	ids := make([]string, 0, len(snap.Operations))
	for _, op := range snap.Operations {
		ids = append(ids, op.ID)
	}
	sort.Strings(ids)
	return ids
}

func TestApplyRemoteIdempotent(t *testing.T) {
	d := New("r1")
	delta := opDelta("op-1", "a", 1, 100)

	d.ApplyRemote(delta)
	d.ApplyRemote(delta)
	d.ApplyRemote(delta)

	if got := len(d.Snapshot().Operations); got != 1 {
		t.Fatalf("expected 1 op after duplicate applies, got %d", got)
	}
}

func TestConvergenceAnyOrder(t *testing.T) {
	deltas := []Delta{
		opDelta("op-1", "a", 1, 100),
		opDelta("op-2", "a", 2, 150),
		opDelta("op-3", "b", 1, 120),
		{Objects: []models.CanvasObject{{ID: "obj-1", Type: models.ObjectShape, Actor: "a", Timestamp: 200, X: 5}}},
		{Objects: []models.CanvasObject{{ID: "obj-1", Type: models.ObjectShape, Actor: "b", Timestamp: 300, X: 9}}},
		{Background: &models.Background{DataURL: "data:1", Actor: "a", Timestamp: 250}},
		{Background: &models.Background{DataURL: "data:2", Actor: "b", Timestamp: 260}},
	}

	r1 := New("r1")
	r2 := New("r2")
	for _, d := range deltas {
		r1.ApplyRemote(d)
	}
	for i := len(deltas) - 1; i >= 0; i-- {
		r2.ApplyRemote(deltas[i])
	}

	if !reflect.DeepEqual(sortedOpIDs(r1), sortedOpIDs(r2)) {
		t.Fatal("drawing logs diverged")
	}
	s1, s2 := r1.Snapshot(), r2.Snapshot()
	if !reflect.DeepEqual(s1.Objects, s2.Objects) {
		t.Fatalf("object tables diverged: %+v vs %+v", s1.Objects, s2.Objects)
	}
	if s1.Background == nil || s2.Background == nil || *s1.Background != *s2.Background {
		t.Fatalf("backgrounds diverged: %+v vs %+v", s1.Background, s2.Background)
	}
	if s1.Background.DataURL != "data:2" {
		t.Fatalf("expected later background to win, got %q", s1.Background.DataURL)
	}
	if s1.Objects["obj-1"].X != 9 {
		t.Fatalf("expected later object write to win, got %+v", s1.Objects["obj-1"])
	}
}

func TestObjectLWWTiebreakOnActor(t *testing.T) {
	a := models.CanvasObject{ID: "o", Actor: "alpha", Timestamp: 100, Text: "from alpha"}
	b := models.CanvasObject{ID: "o", Actor: "beta", Timestamp: 100, Text: "from beta"}

	r1 := New("r1")
	r1.ApplyRemote(Delta{Objects: []models.CanvasObject{a}})
	r1.ApplyRemote(Delta{Objects: []models.CanvasObject{b}})

	r2 := New("r2")
	r2.ApplyRemote(Delta{Objects: []models.CanvasObject{b}})
	r2.ApplyRemote(Delta{Objects: []models.CanvasObject{a}})

	o1 := r1.Snapshot().Objects["o"]
	o2 := r2.Snapshot().Objects["o"]
	if o1.Text != o2.Text {
		t.Fatalf("tiebreak not deterministic: %q vs %q", o1.Text, o2.Text)
	}
	if o1.Text != "from beta" {
		t.Fatalf("expected higher actor to win tie, got %q", o1.Text)
	}
}

func TestRemoveObjectTombstoneBeatsConcurrentUpdate(t *testing.T) {
	d := New("editor")
	delta := d.PutObject(models.CanvasObject{Type: models.ObjectText, Text: "hello"})
	id := delta.Objects[0].ID

	tomb := d.RemoveObject(id)
	if !tomb.Objects[0].Deleted {
		t.Fatal("expected tombstone delta")
	}

	// An update stamped before the tombstone must lose on any replica.
	stale := delta.Objects[0]
	stale.Text = "stale edit"
	peer := New("peer")
	peer.ApplyRemote(tomb)
	peer.ApplyRemote(Delta{Objects: []models.CanvasObject{stale}})

	if got := peer.Snapshot().Objects[id]; !got.Deleted {
		t.Fatalf("stale update resurrected deleted object: %+v", got)
	}
}

func TestStateVectorAndDeltaSince(t *testing.T) {
	d := New("author")
	d.AppendOperation(models.DrawingOperation{Type: models.OpDraw, X: 1})
	d.AppendOperation(models.DrawingOperation{Type: models.OpDraw, X: 2})
	d.ApplyRemote(opDelta("remote-1", "other", 1, 50))

	sv := d.StateVector()
	if sv["author"] != 2 || sv["other"] != 1 {
		t.Fatalf("unexpected state vector: %v", sv)
	}

	// A peer holding everything from "author" only needs "other".
	missing := d.DeltaSince(map[string]uint64{"author": 2})
	if len(missing.Ops) != 1 || missing.Ops[0].ID != "remote-1" {
		t.Fatalf("expected only the remote op, got %+v", missing.Ops)
	}

	// A peer holding everything gets no ops.
	if got := d.DeltaSince(sv); len(got.Ops) != 0 {
		t.Fatalf("expected empty op delta, got %d ops", len(got.Ops))
	}
}

func TestLocalWriteAlwaysWinsLocally(t *testing.T) {
	d := New("slow-clock")
	first := d.PutObject(models.CanvasObject{Type: models.ObjectShape, X: 1})
	id := first.Objects[0].ID

	// Even if the wall clock stands still, the re-put must supersede.
	second := d.PutObject(models.CanvasObject{ID: id, Type: models.ObjectShape, X: 2})
	if got := d.Snapshot().Objects[id].X; got != 2 {
		t.Fatalf("local update lost: x = %v", got)
	}
	if !(Stamp{second.Objects[0].Timestamp, second.Objects[0].Actor}).After(
		Stamp{first.Objects[0].Timestamp, first.Objects[0].Actor}) {
		t.Fatal("second write not stamped after first")
	}
}

func TestSubscribeReportsChangedKeys(t *testing.T) {
	d := New("r1")
	var changes []Change
	d.Subscribe(func(c Change) { changes = append(changes, c) })

	d.AppendOperation(models.DrawingOperation{Type: models.OpDraw})
	d.ApplyRemote(Delta{Background: &models.Background{DataURL: "x", Actor: "a", Timestamp: 1}})

	if len(changes) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(changes))
	}
	if changes[0].Origin != OriginLocal || len(changes[0].OpIDs) != 1 {
		t.Fatalf("unexpected local change: %+v", changes[0])
	}
	if changes[1].Origin != OriginRemote || !changes[1].Background {
		t.Fatalf("unexpected remote change: %+v", changes[1])
	}

	// A duplicate delta must not notify.
	d.ApplyRemote(Delta{Background: &models.Background{DataURL: "x", Actor: "a", Timestamp: 1}})
	if len(changes) != 2 {
		t.Fatal("duplicate apply produced a notification")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	d := New("author")
	d.AppendOperation(models.DrawingOperation{Type: models.OpDraw, X: 3, Y: 4})
	d.PutObject(models.CanvasObject{Type: models.ObjectImage, DataURL: "data:img"})
	d.SetBackground("data:bg", 0, 0, 1)

	data, err := d.Export()
	if err != nil {
		t.Fatal(err)
	}

	restored := New("author")
	if err := restored.Import(data); err != nil {
		t.Fatal(err)
	}

	s1, s2 := d.Snapshot(), restored.Snapshot()
	if len(s1.Operations) != len(s2.Operations) || !reflect.DeepEqual(s1.Objects, s2.Objects) {
		t.Fatal("import did not restore state")
	}
	if *s1.Background != *s2.Background {
		t.Fatal("import did not restore background")
	}

	// New local ops must not collide with imported sequence numbers.
	delta := restored.AppendOperation(models.DrawingOperation{Type: models.OpDraw})
	if delta.Ops[0].Seq != 2 {
		t.Fatalf("sequence counter not re-seeded: got seq %d, want 2", delta.Ops[0].Seq)
	}
}
