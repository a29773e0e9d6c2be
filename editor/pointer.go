package editor

import (
	"slices"
	"strings"
	"unicode/utf8"

	"compass/scene"
)

type Button int

const (
	ButtonPrimary Button = iota
	ButtonMiddle
	ButtonSecondary
)

// PointerEvent carries a pointer position in client coordinates.
type PointerEvent struct {
	Point  scene.Point
	Button Button
	Shift  bool
}

type gestureKind int

const (
	gestureNone gestureKind = iota
	gesturePan
	gestureDrag
	gesturePath
	gestureErase
	gestureShape
)

type gesture struct {
	kind   gestureKind
	last   scene.Point
	anchor scene.Point
	tool   Tool
	id     string
	erased int
	moved  bool
	locked []string
}

var shapeKinds = map[Tool]scene.Kind{
	ToolRect:     scene.KindRect,
	ToolEllipse:  scene.KindEllipse,
	ToolTriangle: scene.KindTriangle,
	ToolLine:     scene.KindLine,
	ToolFrame:    scene.KindFrame,
}

// PointerDown starts a gesture according to the active tool. A middle
// button or shift+primary press pans regardless of tool.
func (e *Editor) PointerDown(ev PointerEvent) {
	defer e.runDeferred()
	if e.g.kind != gestureNone {
		return
	}
	if e.store.GetState().EditingText != "" {
		e.FinishTextEdit()
	}

	tool := e.store.GetState().Tool
	if ev.Button == ButtonMiddle || (ev.Button == ButtonPrimary && ev.Shift) || tool == ToolHand {
		e.g = gesture{kind: gesturePan, last: ev.Point}
		return
	}
	if ev.Button != ButtonPrimary {
		return
	}

	p := e.scene.Viewport.ToScene(ev.Point)
	switch tool {
	case ToolSelect:
		e.beginDrag(p)
	case ToolDraw:
		e.beginPath(p)
	case ToolErase:
		e.store.Dispatch(SetDrawing(true))
		e.g = gesture{kind: gestureErase}
	case ToolText:
		e.beginText(p)
	default:
		if _, ok := shapeKinds[tool]; ok {
			e.beginShape(tool, p)
		}
	}
}

func (e *Editor) PointerMove(ev PointerEvent) {
	defer e.runDeferred()
	p := e.scene.Viewport.ToScene(ev.Point)
	switch e.g.kind {
	case gesturePan:
		e.scene.Viewport.PanBy(ev.Point.X-e.g.last.X, ev.Point.Y-e.g.last.Y)
		e.g.last = ev.Point
		e.viewportChanged()
	case gestureDrag:
		e.dragTo(p)
	case gesturePath:
		_ = e.scene.Modify(e.g.id, func(o *scene.Object) {
			o.Points = append(o.Points, p)
			o.SetBounds(scene.BoundsOf(o.Points))
		})
	case gestureErase:
		e.eraseAt(p)
	case gestureShape:
		e.resizeShape(p)
	}
}

// PointerUp completes the gesture. Every gesture that changed the scene
// records exactly one history entry.
func (e *Editor) PointerUp(ev PointerEvent) {
	defer e.runDeferred()
	g := e.g
	e.g = gesture{}

	switch g.kind {
	case gestureDrag:
		e.silent--
		if g.moved {
			e.record()
		}
	case gesturePath:
		e.store.Dispatch(SetDrawing(false))
		e.record()
	case gestureErase:
		e.store.Dispatch(SetDrawing(false))
		e.log.WithField("removed", g.erased).Debug("Erase gesture finished")
		e.record()
	case gestureShape:
		e.finishShape(g)
	}
}

func (e *Editor) beginDrag(p scene.Point) {
	hit, ok := e.scene.HitTest(p)
	if !ok {
		e.scene.ClearSelection()
		return
	}
	if !slices.Contains(e.scene.Selection(), hit.ID) {
		e.scene.Select(hit.ID)
	}
	e.silent++
	e.g = gesture{kind: gestureDrag, last: p}
}

func (e *Editor) dragTo(p scene.Point) {
	dx, dy := p.X-e.g.last.X, p.Y-e.g.last.Y
	e.g.last = p
	for _, id := range e.scene.Selection() {
		if err := e.scene.Move(id, dx, dy); err == nil {
			e.g.moved = true
		}
	}
}

func (e *Editor) beginPath(p scene.Point) {
	o := scene.NewObject(scene.KindPath)
	o.Style = scene.BrushStyle
	o.Points = []scene.Point{p}
	o.SetBounds(scene.BoundsOf(o.Points))

	e.store.Dispatch(SetDrawing(true))
	e.g = gesture{kind: gesturePath, id: e.scene.Add(o)}
}

func (e *Editor) eraseAt(p scene.Point) {
	for _, o := range e.scene.Objects() {
		if o.Bounds().Expand(e.eraseRadius).Contains(p) && e.scene.Remove(o.ID) {
			e.g.erased++
		}
	}
}

func (e *Editor) beginShape(tool Tool, p scene.Point) {
	o := scene.NewObject(shapeKinds[tool])
	o.Style = scene.ShapeStyle
	switch o.Kind {
	case scene.KindFrame:
		o.Style = scene.FrameStyle
	case scene.KindLine:
		o.Style = scene.Style{Stroke: scene.ShapeStyle.Stroke, StrokeWidth: scene.ShapeStyle.StrokeWidth}
		o.Points = []scene.Point{p, p}
	}
	o.SetBounds(scene.Rect{Left: p.X, Top: p.Y})

	e.store.Dispatch(SetDrawing(true))
	id := e.scene.Add(o)
	e.g = gesture{kind: gestureShape, anchor: p, tool: tool, id: id}
	if tool == ToolFrame {
		e.lockUnderFrame()
	}
}

func (e *Editor) resizeShape(p scene.Point) {
	a := e.g.anchor
	_ = e.scene.Modify(e.g.id, func(o *scene.Object) {
		switch o.Kind {
		case scene.KindLine:
			o.Points[1] = p
			o.SetBounds(scene.BoundsOf(o.Points))
		case scene.KindEllipse:
			r := scene.Distance(a, p) / 2
			o.Radius = r
			o.SetBounds(scene.Rect{
				Left:   a.X + (p.X-a.X)/2 - r,
				Top:    a.Y + (p.Y-a.Y)/2 - r,
				Width:  2 * r,
				Height: 2 * r,
			})
		default:
			o.SetBounds(scene.RectFromCorners(a, p))
		}
	})
	if e.g.tool == ToolFrame {
		e.lockUnderFrame()
	}
}

// lockUnderFrame locks every object the frame under construction nests or
// intersects.
func (e *Editor) lockUnderFrame() {
	frame, ok := e.scene.Get(e.g.id)
	if !ok {
		return
	}
	fb := frame.Bounds()
	for _, o := range e.scene.Objects() {
		if o.ID == frame.ID || o.Locked {
			continue
		}
		if scene.Nested(o.Bounds(), fb) || scene.Intersects(o.Bounds(), fb) {
			e.scene.SetLocked(o.ID, true)
			e.g.locked = append(e.g.locked, o.ID)
		}
	}
}

func (e *Editor) finishShape(g gesture) {
	if g.tool == ToolFrame {
		e.silently(func() {
			_ = e.scene.Modify(g.id, func(o *scene.Object) { o.Inert = true })
		})
		locked := g.locked
		e.later(func() {
			for _, id := range locked {
				e.scene.SetLocked(id, false)
			}
		})
	}
	e.store.Dispatch(SetDrawing(false))
	e.record()
	e.store.Dispatch(SelectTool(ToolSelect))
}

func (e *Editor) beginText(p scene.Point) {
	o := scene.NewObject(scene.KindText)
	o.Style = scene.TextStyle
	o.FontSize = scene.DefaultFontSize
	o.SetBounds(scene.Rect{Left: p.X, Top: p.Y, Height: textHeight("", o.FontSize)})

	var id string
	e.silently(func() { id = e.scene.Add(o) })
	e.store.Dispatch(SetEditingText(id))
}

// SetText replaces the content of the text object being edited.
func (e *Editor) SetText(text string) bool {
	id := e.store.GetState().EditingText
	if id == "" {
		return false
	}
	var err error
	e.silently(func() {
		err = e.scene.Modify(id, func(o *scene.Object) {
			o.Text = text
			o.Width = textWidth(text, o.FontSize)
			o.Height = textHeight(text, o.FontSize)
		})
	})
	return err == nil
}

// FinishTextEdit leaves inline editing. Blank text is discarded without a
// history entry; anything else records one. The tool returns to Select.
func (e *Editor) FinishTextEdit() bool {
	id := e.store.GetState().EditingText
	if id == "" {
		return false
	}
	e.store.Dispatch(SetEditingText(""))
	defer e.store.Dispatch(SelectTool(ToolSelect))

	o, ok := e.scene.Get(id)
	if !ok {
		return false
	}
	if strings.TrimSpace(o.Text) == "" {
		e.silently(func() { e.scene.Remove(id) })
		return false
	}
	e.record()
	return true
}

func textWidth(text string, size float64) float64 {
	longest := 0
	for _, line := range strings.Split(text, "\n") {
		longest = max(longest, utf8.RuneCountInString(line))
	}
	return float64(longest) * size * 0.6
}

func textHeight(text string, size float64) float64 {
	return float64(strings.Count(text, "\n")+1) * size * 1.16
}
