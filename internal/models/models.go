package models

// OpType identifies what a drawing operation does to the canvas.
type OpType string

const (
	OpDraw  OpType = "draw"
	OpErase OpType = "erase"
	OpClear OpType = "clear"
	OpShape OpType = "shape"
	OpText  OpType = "text"
)

// StrokeState marks an operation's place inside a continuous stroke.
type StrokeState string

const (
	StrokeStart StrokeState = "start"
	StrokeMove  StrokeState = "move"
	StrokeEnd   StrokeState = "end"
)

// Point is a canvas coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned selection rectangle.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DrawingOperation is one immutable entry in a room's drawing log.
// Operations are created once by the authoring client and replicated
// verbatim; they are never updated in place. Actor and Seq are assigned
// by the replica that created the operation and drive state-vector sync.
type DrawingOperation struct {
	ID    string `json:"id"` // ULID
	Type  OpType `json:"type"`
	Tool  string `json:"tool,omitempty"`
	Actor string `json:"actor"`
	Seq   uint64 `json:"seq"`

	X      float64  `json:"x"`
	Y      float64  `json:"y"`
	X2     *float64 `json:"x2,omitempty"`
	Y2     *float64 `json:"y2,omitempty"`
	Width  float64  `json:"width,omitempty"`
	Height float64  `json:"height,omitempty"`
	Radius float64  `json:"radius,omitempty"`

	// MiddlePoints carries the sub-sampled points captured between two
	// input events so a fast hand motion is not one message per pixel.
	MiddlePoints []Point `json:"middle_points,omitempty"`

	Color     string  `json:"color,omitempty"`
	BrushSize float64 `json:"brush_size,omitempty"`
	FontSize  float64 `json:"font_size,omitempty"`
	Text      string  `json:"text,omitempty"`

	StrokeID    string      `json:"stroke_id,omitempty"`
	StrokeState StrokeState `json:"stroke_state,omitempty"`

	UserID    string `json:"user_id,omitempty"`
	Timestamp int64  `json:"ts"` // Unix ms
}

// ObjectType identifies the kind of a placed canvas object.
type ObjectType string

const (
	ObjectShape ObjectType = "shape"
	ObjectText  ObjectType = "text"
	ObjectImage ObjectType = "image"
)

// CanvasObject is a placed shape, text block, or image. Unlike drawing
// operations it is mutable: updates replace the whole record under a
// last-write-wins rule keyed by (Timestamp, Actor). A Deleted object is
// a tombstone kept so a delete concurrent with an update resolves by
// the same rule.
type CanvasObject struct {
	ID    string     `json:"id"` // ULID
	Type  ObjectType `json:"type"`
	Actor string     `json:"actor"`

	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
	Radius float64 `json:"radius,omitempty"`

	Color    string  `json:"color,omitempty"`
	FontSize float64 `json:"font_size,omitempty"`
	Text     string  `json:"text,omitempty"`
	DataURL  string  `json:"data_url,omitempty"`
	Scale    float64 `json:"scale,omitempty"`

	UserID    string `json:"user_id,omitempty"`
	Timestamp int64  `json:"ts"` // Unix ms, LWW stamp
	Deleted   bool   `json:"deleted,omitempty"`
}

// Background is the single per-room background image register. It is
// replaced atomically as a whole and is untouched by clear operations.
type Background struct {
	DataURL   string  `json:"data_url"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Scale     float64 `json:"scale"`
	Actor     string  `json:"actor"`
	Timestamp int64   `json:"ts"` // Unix ms, LWW stamp
}

// AwarenessState is the ephemeral presence of one client: never part of
// the replicated document, never persisted, never exported.
type AwarenessState struct {
	User      string `json:"user,omitempty"`
	Cursor    *Point `json:"cursor,omitempty"`
	Selection *Rect  `json:"selection,omitempty"`
	IsDrawing bool   `json:"is_drawing,omitempty"`
	LastSeen  int64  `json:"last_seen"` // Unix ms
}

// DocumentState is a full snapshot of a room's replicated document,
// used to bootstrap late joiners and for export/import.
type DocumentState struct {
	Operations []DrawingOperation      `json:"operations"`
	Objects    map[string]CanvasObject `json:"objects"`
	Background *Background             `json:"background,omitempty"`
}
