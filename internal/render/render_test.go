package render

import (
	"reflect"
	"testing"

	"github.com/eldtechnologies/sketchsync/internal/models"
)

func strokeOp(id, strokeID string, ts int64, state models.StrokeState, x, y float64) models.DrawingOperation {
	return models.DrawingOperation{
		ID: id, Type: models.OpDraw, StrokeID: strokeID, StrokeState: state,
		Timestamp: ts, X: x, Y: y, Color: "#000", BrushSize: 2,
	}
}

func TestStrokeGroupingAnyArrivalOrder(t *testing.T) {
	ops := []models.DrawingOperation{
		strokeOp("1", "s", 1, models.StrokeStart, 0, 0),
		strokeOp("2", "s", 2, models.StrokeMove, 5, 5),
		strokeOp("3", "s", 3, models.StrokeEnd, 10, 10),
	}
	want := []models.Point{{X: 0, Y: 0}, {X: 5, Y: 5}, {X: 10, Y: 10}}

	orders := [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}, {0, 2, 1}}
	for _, order := range orders {
		shuffled := make([]models.DrawingOperation, 0, 3)
		for _, i := range order {
			shuffled = append(shuffled, ops[i])
		}
		plan := Reconcile(models.DocumentState{Operations: shuffled})

		if len(plan.Items) != 1 || plan.Items[0].Path == nil {
			t.Fatalf("order %v: expected exactly one path, got %+v", order, plan.Items)
		}
		if got := plan.Items[0].Path.Points; !reflect.DeepEqual(got, want) {
			t.Fatalf("order %v: path points = %v, want %v", order, got, want)
		}
	}
}

func TestMiddlePointsConcatenateInOrder(t *testing.T) {
	op1 := strokeOp("1", "s", 1, models.StrokeStart, 0, 0)
	op1.MiddlePoints = []models.Point{{X: 1, Y: 1}, {X: 2, Y: 2}}
	op2 := strokeOp("2", "s", 2, models.StrokeEnd, 3, 3)

	plan := Reconcile(models.DocumentState{Operations: []models.DrawingOperation{op2, op1}})
	want := []models.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}}
	if got := plan.Items[0].Path.Points; !reflect.DeepEqual(got, want) {
		t.Fatalf("points = %v, want %v", got, want)
	}
}

func TestOpsWithoutStrokeIDAreSingletons(t *testing.T) {
	plan := Reconcile(models.DocumentState{Operations: []models.DrawingOperation{
		strokeOp("1", "", 1, "", 0, 0),
		strokeOp("2", "", 2, "", 5, 5),
	}})
	if len(plan.Items) != 2 {
		t.Fatalf("expected 2 singleton paths, got %d", len(plan.Items))
	}
}

func TestClearVoidsEverythingAtOrBefore(t *testing.T) {
	state := models.DocumentState{
		Operations: []models.DrawingOperation{
			strokeOp("1", "s1", 10, models.StrokeStart, 0, 0),
			{ID: "2", Type: models.OpClear, Actor: "a", Timestamp: 20},
			strokeOp("3", "s2", 30, models.StrokeStart, 7, 7),
		},
		Objects: map[string]models.CanvasObject{
			"old": {ID: "old", Type: models.ObjectShape, Actor: "a", Timestamp: 15},
			"new": {ID: "new", Type: models.ObjectShape, Actor: "a", Timestamp: 25},
		},
		Background: &models.Background{DataURL: "data:bg", Actor: "a", Timestamp: 5},
	}

	plan := Reconcile(state)

	if len(plan.Items) != 1 || plan.Items[0].Path == nil || plan.Items[0].Path.Points[0].X != 7 {
		t.Fatalf("expected only the post-clear stroke, got %+v", plan.Items)
	}
	if len(plan.Objects) != 1 || plan.Objects[0].ID != "new" {
		t.Fatalf("expected only the post-clear object, got %+v", plan.Objects)
	}
	if plan.Background == nil || plan.Background.DataURL != "data:bg" {
		t.Fatal("clear must never void the background")
	}
}

func TestClearMonotonicAcrossCalls(t *testing.T) {
	state := models.DocumentState{
		Operations: []models.DrawingOperation{
			strokeOp("1", "s", 10, models.StrokeStart, 0, 0),
			{ID: "2", Type: models.OpClear, Actor: "a", Timestamp: 20},
		},
	}
	for i := 0; i < 3; i++ {
		if plan := Reconcile(state); len(plan.Items) != 0 {
			t.Fatalf("call %d: cleared op resurfaced: %+v", i, plan.Items)
		}
	}
}

func TestLastClearWins(t *testing.T) {
	// Two clears, delivered out of order: only the later one counts,
	// scanning the full log rather than any batch boundary.
	state := models.DocumentState{
		Operations: []models.DrawingOperation{
			{ID: "c2", Type: models.OpClear, Actor: "a", Timestamp: 40},
			strokeOp("1", "s", 10, models.StrokeStart, 1, 1),
			{ID: "c1", Type: models.OpClear, Actor: "a", Timestamp: 20},
			strokeOp("2", "s2", 30, models.StrokeStart, 2, 2),
			strokeOp("3", "s3", 50, models.StrokeStart, 3, 3),
		},
	}
	plan := Reconcile(state)
	if len(plan.Items) != 1 || plan.Items[0].Path.Points[0].X != 3 {
		t.Fatalf("expected only the op after the last clear, got %+v", plan.Items)
	}
}

func TestDeterminism(t *testing.T) {
	state := models.DocumentState{
		Operations: []models.DrawingOperation{
			strokeOp("b", "s", 10, models.StrokeStart, 1, 1),
			{ID: "a", Type: models.OpShape, Tool: "rect", Timestamp: 10, X: 2, Y: 2},
			{ID: "c", Type: models.OpText, Text: "hi", Timestamp: 12, X: 3, Y: 3},
		},
		Objects: map[string]models.CanvasObject{
			"o2": {ID: "o2", Type: models.ObjectText, Actor: "b", Timestamp: 20},
			"o1": {ID: "o1", Type: models.ObjectImage, Actor: "a", Timestamp: 20},
		},
	}
	first := Reconcile(state)
	for i := 0; i < 5; i++ {
		if !reflect.DeepEqual(Reconcile(state), first) {
			t.Fatal("reconcile is not deterministic")
		}
	}

	// Same-timestamp entries order by id.
	if first.Items[0].Shape == nil || first.Items[0].Shape.ID != "a" {
		t.Fatalf("expected shape 'a' first, got %+v", first.Items[0])
	}
	if first.Objects[0].ID != "o1" {
		t.Fatalf("expected object 'o1' first, got %+v", first.Objects)
	}
}

func TestTombstonesNeverRender(t *testing.T) {
	plan := Reconcile(models.DocumentState{
		Objects: map[string]models.CanvasObject{
			"gone": {ID: "gone", Type: models.ObjectShape, Actor: "a", Timestamp: 10, Deleted: true},
			"here": {ID: "here", Type: models.ObjectShape, Actor: "a", Timestamp: 10},
		},
	})
	if len(plan.Objects) != 1 || plan.Objects[0].ID != "here" {
		t.Fatalf("tombstone rendered: %+v", plan.Objects)
	}
}

func TestEraseBecomesErasePath(t *testing.T) {
	op := strokeOp("1", "e", 1, models.StrokeStart, 4, 4)
	op.Type = models.OpErase
	plan := Reconcile(models.DocumentState{Operations: []models.DrawingOperation{op}})
	if len(plan.Items) != 1 || !plan.Items[0].Path.Erase {
		t.Fatalf("expected erase path, got %+v", plan.Items)
	}
}
