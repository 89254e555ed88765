// Package document implements the convergent per-room canvas document:
// an append-only drawing log merged by id set-union, an object table and
// background register merged last-write-wins, and state-vector deltas
// for catching up late joiners.
package document

import (
	"crypto/rand"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/eldtechnologies/sketchsync/internal/models"
)

// Origin tells a subscriber whether a change was made by this replica
// or merged in from a peer.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Change lists the keys touched by one apply, so observers can do
// incremental work instead of re-reading the whole document.
type Change struct {
	Origin     Origin
	OpIDs      []string
	ObjectIDs  []string
	Background bool
}

// Delta is the unit of replication: the operations, object records and
// background value one replica has that another may lack. Applying a
// delta twice is safe; the log is id-keyed and the registers are LWW.
type Delta struct {
	Ops        []models.DrawingOperation `json:"ops,omitempty"`
	Objects    []models.CanvasObject     `json:"objects,omitempty"`
	Background *models.Background        `json:"background,omitempty"`
}

// Empty reports whether the delta carries nothing.
func (d Delta) Empty() bool {
	return len(d.Ops) == 0 && len(d.Objects) == 0 && d.Background == nil
}

// Document is one replica of a room's shared canvas state. All methods
// are safe for concurrent use; none of them block.
type Document struct {
	mu      sync.RWMutex
	actor   string
	seq     uint64
	ops     map[string]models.DrawingOperation
	vector  map[string]uint64 // max seq seen per actor
	objects map[string]models.CanvasObject
	bg      *models.Background
	subs    []func(Change)
	now     func() time.Time
}

// New creates an empty replica identified by actor. The actor id must be
// unique per replica within a room; it seeds operation sequence numbers.
func New(actor string) *Document {
	return &Document{
		actor:   actor,
		ops:     make(map[string]models.DrawingOperation),
		vector:  make(map[string]uint64),
		objects: make(map[string]models.CanvasObject),
		now:     time.Now,
	}
}

// Actor returns this replica's actor id.
func (d *Document) Actor() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.actor
}

// NewID returns a fresh ULID for an operation or object.
func NewID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// Subscribe registers a callback fired after every locally-visible
// change, local or remote in origin.
func (d *Document) Subscribe(fn func(Change)) {
	d.mu.Lock()
	d.subs = append(d.subs, fn)
	d.mu.Unlock()
}

func (d *Document) notify(c Change) {
	d.mu.RLock()
	subs := make([]func(Change), len(d.subs))
	copy(subs, d.subs)
	d.mu.RUnlock()
	for _, fn := range subs {
		fn(c)
	}
}

// stampLocked fills in replication metadata for a locally-created op.
// Caller holds d.mu.
func (d *Document) stampOpLocked(op *models.DrawingOperation) {
	if op.ID == "" {
		op.ID = NewID()
	}
	if op.Timestamp == 0 {
		op.Timestamp = d.now().UnixMilli()
	}
	d.seq++
	op.Actor = d.actor
	op.Seq = d.seq
	if d.seq > d.vector[d.actor] {
		d.vector[d.actor] = d.seq
	}
}

// AppendOperation inserts a locally-authored drawing operation and
// returns the delta to broadcast. It never rejects.
func (d *Document) AppendOperation(op models.DrawingOperation) Delta {
	d.mu.Lock()
	d.stampOpLocked(&op)
	d.ops[op.ID] = op
	d.mu.Unlock()

	d.notify(Change{Origin: OriginLocal, OpIDs: []string{op.ID}})
	return Delta{Ops: []models.DrawingOperation{op}}
}

// Clear appends a clear operation to the log. Entries at or before it no
// longer contribute to the rendered scene; the log itself and the object
// table are left intact so merging stays order-independent, and readers
// filter against the last clear.
func (d *Document) Clear(userID string) Delta {
	return d.AppendOperation(models.DrawingOperation{
		Type:   models.OpClear,
		UserID: userID,
	})
}

// PutObject upserts a locally-authored canvas object (create or whole-
// record update) and returns the delta to broadcast.
func (d *Document) PutObject(obj models.CanvasObject) Delta {
	d.mu.Lock()
	if obj.ID == "" {
		obj.ID = NewID()
	}
	obj.Actor = d.actor
	obj.Timestamp = d.now().UnixMilli()
	if held, ok := d.objects[obj.ID]; ok && !objectStamp(obj).After(objectStamp(held)) {
		// Local writes must always win locally: bump past the held stamp.
		obj.Timestamp = held.Timestamp + 1
	}
	d.objects[obj.ID] = obj
	d.mu.Unlock()

	d.notify(Change{Origin: OriginLocal, ObjectIDs: []string{obj.ID}})
	return Delta{Objects: []models.CanvasObject{obj}}
}

// RemoveObject deletes an object by writing a tombstone into its slot.
func (d *Document) RemoveObject(id string) Delta {
	d.mu.Lock()
	tomb := models.CanvasObject{ID: id, Actor: d.actor, Timestamp: d.now().UnixMilli(), Deleted: true}
	if held, ok := d.objects[id]; ok {
		tomb.Type = held.Type
		if !objectStamp(tomb).After(objectStamp(held)) {
			tomb.Timestamp = held.Timestamp + 1
		}
	}
	d.objects[id] = tomb
	d.mu.Unlock()

	d.notify(Change{Origin: OriginLocal, ObjectIDs: []string{id}})
	return Delta{Objects: []models.CanvasObject{tomb}}
}

// SetBackground atomically replaces the background register.
func (d *Document) SetBackground(dataURL string, x, y, scale float64) Delta {
	d.mu.Lock()
	bg := &models.Background{
		DataURL:   dataURL,
		X:         x,
		Y:         y,
		Scale:     scale,
		Actor:     d.actor,
		Timestamp: d.now().UnixMilli(),
	}
	if d.bg != nil && !backgroundStamp(bg).After(backgroundStamp(d.bg)) {
		bg.Timestamp = d.bg.Timestamp + 1
	}
	d.bg = bg
	d.mu.Unlock()

	d.notify(Change{Origin: OriginLocal, Background: true})
	return Delta{Background: bg}
}

// ApplyRemote merges a delta received from a peer. Re-applying a delta,
// or applying deltas in any order, converges: log entries union by id,
// the object table and background resolve by stamp.
func (d *Document) ApplyRemote(delta Delta) {
	var change Change
	change.Origin = OriginRemote

	d.mu.Lock()
	for _, op := range delta.Ops {
		if op.ID == "" {
			continue
		}
		if _, seen := d.ops[op.ID]; seen {
			continue
		}
		d.ops[op.ID] = op
		if op.Seq > d.vector[op.Actor] {
			d.vector[op.Actor] = op.Seq
		}
		change.OpIDs = append(change.OpIDs, op.ID)
	}
	for _, obj := range delta.Objects {
		if obj.ID == "" {
			continue
		}
		var held *models.CanvasObject
		if h, ok := d.objects[obj.ID]; ok {
			held = &h
		}
		merged, replaced := mergeObject(held, obj)
		if replaced {
			d.objects[obj.ID] = merged
			change.ObjectIDs = append(change.ObjectIDs, obj.ID)
		}
	}
	if merged, replaced := mergeBackground(d.bg, delta.Background); replaced {
		d.bg = merged
		change.Background = true
	}
	d.mu.Unlock()

	if len(change.OpIDs) > 0 || len(change.ObjectIDs) > 0 || change.Background {
		d.notify(change)
	}
}

// StateVector describes what this replica already holds: the highest
// operation sequence number seen per actor.
func (d *Document) StateVector() map[string]uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sv := make(map[string]uint64, len(d.vector))
	for actor, seq := range d.vector {
		sv[actor] = seq
	}
	return sv
}

// DeltaSince computes the minimal catch-up delta for a peer that already
// holds the state described by sv. The object table and background are
// always included whole; both are LWW so resending them is free.
func (d *Document) DeltaSince(sv map[string]uint64) Delta {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var delta Delta
	for _, op := range d.ops {
		if op.Seq > sv[op.Actor] {
			delta.Ops = append(delta.Ops, op)
		}
	}
	if len(d.objects) > 0 {
		delta.Objects = make([]models.CanvasObject, 0, len(d.objects))
		for _, obj := range d.objects {
			delta.Objects = append(delta.Objects, obj)
		}
	}
	delta.Background = d.bg
	return delta
}

// Snapshot returns the full current state for bootstrapping a replica.
func (d *Document) Snapshot() models.DocumentState {
	d.mu.RLock()
	defer d.mu.RUnlock()

	state := models.DocumentState{
		Operations: make([]models.DrawingOperation, 0, len(d.ops)),
		Objects:    make(map[string]models.CanvasObject, len(d.objects)),
	}
	for _, op := range d.ops {
		state.Operations = append(state.Operations, op)
	}
	for id, obj := range d.objects {
		state.Objects[id] = obj
	}
	if d.bg != nil {
		bg := *d.bg
		state.Background = &bg
	}
	return state
}

// Export serializes the full document state. Awareness is ephemeral and
// never part of an export.
func (d *Document) Export() ([]byte, error) {
	return json.Marshal(d.Snapshot())
}

// Import fully replaces the current state with a previously exported
// one, then re-seeds the local sequence counter so new local operations
// sort after everything imported.
func (d *Document) Import(data []byte) error {
	var state models.DocumentState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}

	d.mu.Lock()
	d.ops = make(map[string]models.DrawingOperation, len(state.Operations))
	d.vector = make(map[string]uint64)
	for _, op := range state.Operations {
		d.ops[op.ID] = op
		if op.Seq > d.vector[op.Actor] {
			d.vector[op.Actor] = op.Seq
		}
	}
	d.objects = make(map[string]models.CanvasObject, len(state.Objects))
	for id, obj := range state.Objects {
		d.objects[id] = obj
	}
	d.bg = state.Background
	if d.vector[d.actor] > d.seq {
		d.seq = d.vector[d.actor]
	}
	d.mu.Unlock()

	d.notify(Change{Origin: OriginRemote, Background: state.Background != nil})
	return nil
}
