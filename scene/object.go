package scene

import (
	"slices"

	"github.com/google/uuid"
)

// Kind discriminates the drawable variants.
type Kind string

const (
	KindRect     Kind = "rect"
	KindEllipse  Kind = "ellipse"
	KindTriangle Kind = "triangle"
	KindLine     Kind = "line"
	KindPath     Kind = "path"
	KindText     Kind = "text"
	KindFrame    Kind = "frame"
)

// Valid reports whether k names a known variant.
func (k Kind) Valid() bool {
	switch k {
	case KindRect, KindEllipse, KindTriangle, KindLine, KindPath, KindText, KindFrame:
		return true
	}
	return false
}

// Style carries paint attributes.
type Style struct {
	Fill        string  `json:"fill,omitempty"`
	Stroke      string  `json:"stroke,omitempty"`
	StrokeWidth float64 `json:"strokeWidth,omitempty"`
}

var (
	ShapeStyle = Style{Fill: "rgba(59, 130, 246, 0.3)", Stroke: "#3b82f6", StrokeWidth: 2}
	FrameStyle = Style{Fill: "transparent", Stroke: "#3b82f6", StrokeWidth: 2}
	BrushStyle = Style{Stroke: "#ffffff", StrokeWidth: 2}
	TextStyle  = Style{Fill: "#ffffff"}
)

const DefaultFontSize = 20

// Object is one drawable entity. Left/Top/Width/Height are the stored
// bounds for every kind; lines and paths keep them in sync with Points and
// ellipses with Radius.
type Object struct {
	ID       string  `json:"id"`
	Kind     Kind    `json:"type"`
	Left     float64 `json:"left"`
	Top      float64 `json:"top"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Radius   float64 `json:"radius,omitempty"`
	Points   []Point `json:"points,omitempty"`
	Text     string  `json:"text,omitempty"`
	FontSize float64 `json:"fontSize,omitempty"`
	Style    Style   `json:"style"`
	// Locked blocks movement while a frame is being drawn over the object.
	// It is interaction state and never serialized.
	Locked bool `json:"-"`
	// Inert objects ignore pointer events (frames after creation).
	Inert bool `json:"inert,omitempty"`
}

// NewObject returns an object of the given kind with a fresh id.
func NewObject(kind Kind) Object {
	return Object{ID: uuid.NewString(), Kind: kind}
}

// Bounds returns the object's axis-aligned bounding box.
func (o Object) Bounds() Rect {
	return Rect{Left: o.Left, Top: o.Top, Width: o.Width, Height: o.Height}
}

// SetBounds moves and resizes the object to r.
func (o *Object) SetBounds(r Rect) {
	o.Left, o.Top, o.Width, o.Height = r.Left, r.Top, r.Width, r.Height
}

// Translate shifts the object, including its points, by (dx, dy).
func (o *Object) Translate(dx, dy float64) {
	o.Left += dx
	o.Top += dy
	for i := range o.Points {
		o.Points[i].X += dx
		o.Points[i].Y += dy
	}
}

// Clone returns a deep copy.
func (o Object) Clone() Object {
	o.Points = slices.Clone(o.Points)
	return o
}
