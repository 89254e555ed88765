package document

import "github.com/eldtechnologies/sketchsync/internal/models"

// Stamp orders concurrent writes to the same register. Timestamps win
// first; the actor id breaks ties so replicas that saw the same pair of
// writes in different orders still pick the same winner.
type Stamp struct {
	Timestamp int64
	Actor     string
}

// After reports whether s supersedes other under last-write-wins.
func (s Stamp) After(other Stamp) bool {
	if s.Timestamp != other.Timestamp {
		return s.Timestamp > other.Timestamp
	}
	return s.Actor > other.Actor
}

func objectStamp(o models.CanvasObject) Stamp {
	return Stamp{Timestamp: o.Timestamp, Actor: o.Actor}
}

func backgroundStamp(b *models.Background) Stamp {
	if b == nil {
		return Stamp{}
	}
	return Stamp{Timestamp: b.Timestamp, Actor: b.Actor}
}

// mergeObject applies the LWW rule for one object-table slot. It returns
// the winning record and whether the incoming record replaced the held one.
func mergeObject(held *models.CanvasObject, incoming models.CanvasObject) (models.CanvasObject, bool) {
	if held == nil {
		return incoming, true
	}
	if objectStamp(incoming).After(objectStamp(*held)) {
		return incoming, true
	}
	return *held, false
}

// mergeBackground applies the LWW rule to the background register.
func mergeBackground(held, incoming *models.Background) (*models.Background, bool) {
	if incoming == nil {
		return held, false
	}
	if held == nil || backgroundStamp(incoming).After(backgroundStamp(held)) {
		return incoming, true
	}
	return held, false
}
