// Package render turns a replicated document snapshot into a canonical
// render plan. Reconcile is a pure function: identical snapshots produce
// identical plans regardless of how the underlying deltas arrived.
package render

import (
	"sort"

	"github.com/eldtechnologies/sketchsync/internal/models"
)

// Path is one continuous freehand stroke, reassembled from the chain of
// point operations that share a stroke id.
type Path struct {
	ID        string         `json:"id"`
	Tool      string         `json:"tool,omitempty"`
	Color     string         `json:"color,omitempty"`
	BrushSize float64        `json:"brush_size,omitempty"`
	Erase     bool           `json:"erase,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Points    []models.Point `json:"points"`
}

// Item is one drawable primitive from the drawing log, in log order.
// Exactly one field is set.
type Item struct {
	Path  *Path                    `json:"path,omitempty"`
	Shape *models.DrawingOperation `json:"shape,omitempty"`
}

// Plan is the ordered scene handed to the external renderer: background
// first, then log primitives, then live objects (later stamps on top).
// The renderer consumes the plan; it never mutates the document.
type Plan struct {
	Background *models.Background    `json:"background,omitempty"`
	Items      []Item                `json:"items"`
	Objects    []models.CanvasObject `json:"objects"`
}

// Reconcile computes the render plan for a document snapshot.
//
// The canonical clear rule scans the full log: operations are ordered by
// (timestamp, id), the last clear voids every log entry at or before its
// position and every object whose LWW stamp is not after the clear's.
// The background register survives any clear.
func Reconcile(state models.DocumentState) Plan {
	ops := make([]models.DrawingOperation, len(state.Operations))
	copy(ops, state.Operations)
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Timestamp != ops[j].Timestamp {
			return ops[i].Timestamp < ops[j].Timestamp
		}
		return ops[i].ID < ops[j].ID
	})

	lastClear := -1
	for i, op := range ops {
		if op.Type == models.OpClear {
			lastClear = i
		}
	}

	var clearTS int64 = -1
	var clearActor string
	if lastClear >= 0 {
		clearTS = ops[lastClear].Timestamp
		clearActor = ops[lastClear].Actor
		ops = ops[lastClear+1:]
	}

	plan := Plan{
		Background: state.Background,
		Items:      make([]Item, 0, len(ops)),
	}

	// Group surviving draw/erase operations into continuous paths. A
	// path is anchored at the log position of its earliest operation;
	// operations without a stroke id are singleton paths.
	paths := make(map[string]*Path)
	for _, op := range ops {
		switch op.Type {
		case models.OpDraw, models.OpErase:
			key := op.StrokeID
			if key == "" {
				key = op.ID
			}
			p, ok := paths[key]
			if !ok {
				p = &Path{
					ID:        key,
					Tool:      op.Tool,
					Color:     op.Color,
					BrushSize: op.BrushSize,
					Erase:     op.Type == models.OpErase,
					UserID:    op.UserID,
				}
				paths[key] = p
				plan.Items = append(plan.Items, Item{Path: p})
			}
			p.Points = append(p.Points, models.Point{X: op.X, Y: op.Y})
			p.Points = append(p.Points, op.MiddlePoints...)
		case models.OpShape, models.OpText:
			shape := op
			plan.Items = append(plan.Items, Item{Shape: &shape})
		}
	}

	clearStamp := stamp{ts: clearTS, actor: clearActor}
	objects := make([]models.CanvasObject, 0, len(state.Objects))
	for _, obj := range state.Objects {
		if obj.Deleted {
			continue
		}
		if lastClear >= 0 && !(stamp{ts: obj.Timestamp, actor: obj.Actor}).after(clearStamp) {
			continue
		}
		objects = append(objects, obj)
	}
	sort.Slice(objects, func(i, j int) bool {
		if objects[i].Timestamp != objects[j].Timestamp {
			return objects[i].Timestamp < objects[j].Timestamp
		}
		return objects[i].ID < objects[j].ID
	})
	plan.Objects = objects

	return plan
}

type stamp struct {
	ts    int64
	actor string
}

func (s stamp) after(other stamp) bool {
	if s.ts != other.ts {
		return s.ts > other.ts
	}
	return s.actor > other.actor
}
