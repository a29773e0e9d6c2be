package scene

import "math"

const (
	ZoomStep     = 0.1
	MinZoom      = 0.1
	MaxZoom      = 3.0
	MinWheelZoom = 0.01
	MaxWheelZoom = 20.0
)

// Viewport maps client coordinates onto the scene. Pan is expressed in
// scene units.
type Viewport struct {
	Zoom float64 `json:"zoom"`
	Pan  Point   `json:"pan"`
}

func NewViewport() Viewport {
	return Viewport{Zoom: 1}
}

func (v *Viewport) ZoomIn() {
	v.Zoom = clamp(round2(v.Zoom+ZoomStep), MinZoom, MaxZoom)
}

func (v *Viewport) ZoomOut() {
	v.Zoom = clamp(round2(v.Zoom-ZoomStep), MinZoom, MaxZoom)
}

func (v *Viewport) ResetZoom() { v.Zoom = 1 }

func (v *Viewport) ResetPan() { v.Pan = Point{} }

// Wheel applies a scroll-wheel zoom step.
func (v *Viewport) Wheel(deltaY float64) {
	v.Zoom = clamp(v.Zoom/(1+deltaY/500), MinWheelZoom, MaxWheelZoom)
}

// PanBy moves the viewport by a client-space delta.
func (v *Viewport) PanBy(dx, dy float64) {
	z := v.zoom()
	v.Pan.X += dx / z
	v.Pan.Y += dy / z
}

// ToScene converts a client point into scene coordinates.
func (v Viewport) ToScene(p Point) Point {
	z := v.zoom()
	return Point{X: p.X/z - v.Pan.X, Y: p.Y/z - v.Pan.Y}
}

func (v Viewport) zoom() float64 {
	if v.Zoom <= 0 {
		return 1
	}
	return v.Zoom
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// round2 keeps repeated 0.1 steps from drifting.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
