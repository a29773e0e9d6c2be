// Package editor turns pointer and keyboard input into scene mutations and
// keeps the history stack in step with them.
package editor

import (
	"compass/history"
	"compass/scene"

	"github.com/sirupsen/logrus"
)

const DefaultEraseRadius = 20

// Editor is the tool state machine. Like the scene it drives, it expects
// to be called from a single event loop.
type Editor struct {
	scene   *scene.Scene
	history *history.History
	store   *Store
	log     logrus.FieldLogger

	eraseRadius float64

	// restoring and silent suppress auto-save while the editor itself
	// mutates the scene.
	restoring bool
	silent    int

	deferred []func()
	viewport []func(scene.Viewport)
	changed  []func()

	g gesture
}

type Option func(*Editor)

func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Editor) { e.log = log }
}

func WithEraseRadius(r float64) Option {
	return func(e *Editor) { e.eraseRadius = r }
}

// New wires the editor onto the scene's mutation events.
func New(sc *scene.Scene, h *history.History, store *Store, opts ...Option) *Editor {
	e := &Editor{
		scene:       sc,
		history:     h,
		store:       store,
		log:         logrus.StandardLogger(),
		eraseRadius: DefaultEraseRadius,
	}
	for _, opt := range opts {
		opt(e)
	}
	sc.OnObjectAdded(e.autoSave)
	sc.OnObjectModified(e.autoSave)
	sc.OnObjectRemoved(e.autoSave)
	return e
}

func (e *Editor) Scene() *scene.Scene       { return e.scene }
func (e *Editor) History() *history.History { return e.history }
func (e *Editor) Store() *Store             { return e.store }

func (e *Editor) EraseRadius() float64 { return e.eraseRadius }

// OnViewportChange registers fn to run after zoom or pan changes.
func (e *Editor) OnViewportChange(fn func(scene.Viewport)) {
	e.viewport = append(e.viewport, fn)
}

// OnChange registers fn to run after the scene settles into a new history
// state: a recorded mutation, or an undo or redo that has been applied.
func (e *Editor) OnChange(fn func()) {
	e.changed = append(e.changed, fn)
}

func (e *Editor) notifyChanged() {
	for _, fn := range e.changed {
		fn()
	}
}

func (e *Editor) autoSave(scene.Object) {
	if e.restoring || e.silent > 0 || e.store.GetState().Drawing {
		return
	}
	e.record()
}

func (e *Editor) record() {
	data, err := e.scene.Content().Encode()
	if err != nil {
		e.log.WithError(err).Error("Failed to encode scene for history")
		return
	}
	e.history.Record(string(data))
	e.notifyChanged()
}

// silently runs fn with auto-save suppressed.
func (e *Editor) silently(fn func()) {
	e.silent++
	defer func() { e.silent-- }()
	fn()
}

// later queues fn to run once the current input event has been handled.
func (e *Editor) later(fn func()) {
	e.deferred = append(e.deferred, fn)
}

func (e *Editor) runDeferred() {
	for len(e.deferred) > 0 {
		fn := e.deferred[0]
		e.deferred = e.deferred[1:]
		fn()
	}
}

// EnsureBaseline records the current scene if history is empty, so the
// first mutation can be undone.
func (e *Editor) EnsureBaseline() {
	if e.history.Len() == 0 {
		e.record()
	}
}

// Undo steps history back and applies the restored snapshot.
func (e *Editor) Undo() bool {
	if !e.history.Undo() {
		return false
	}
	if e.Restore() {
		e.notifyChanged()
	}
	return true
}

func (e *Editor) Redo() bool {
	if !e.history.Redo() {
		return false
	}
	if e.Restore() {
		e.notifyChanged()
	}
	return true
}

// Restore applies a pending history entry to the scene. A malformed entry
// is logged and skipped.
func (e *Editor) Restore() bool {
	entry, ok := e.history.TakeRestore()
	if !ok {
		return false
	}
	snap, err := scene.Decode([]byte(entry))
	if err != nil {
		e.log.WithError(err).WithField("history_index", e.history.Index()).Warn("Skipping malformed history entry")
		return false
	}
	e.restoring = true
	defer func() { e.restoring = false }()
	e.scene.Load(snap.Elements)
	return true
}

// LoadSnapshot replaces the scene with snap without recording history and
// adopts its viewport when present.
func (e *Editor) LoadSnapshot(snap scene.Snapshot) {
	e.restoring = true
	e.scene.Load(snap.Elements)
	e.restoring = false
	if snap.Zoom > 0 {
		e.scene.Viewport.Zoom = snap.Zoom
	}
	if snap.Pan != nil {
		e.scene.Viewport.Pan = *snap.Pan
	}
}

// SetTool switches the active tool, finishing any inline text edit.
func (e *Editor) SetTool(t Tool) {
	if e.store.GetState().EditingText != "" {
		e.FinishTextEdit()
	}
	if t != ToolSelect {
		e.scene.ClearSelection()
	}
	e.store.Dispatch(SelectTool(t))
}

// DeleteSelection removes every selected object and records one entry.
func (e *Editor) DeleteSelection() bool {
	ids := e.scene.Selection()
	removed := 0
	e.silently(func() {
		for _, id := range ids {
			if e.scene.Remove(id) {
				removed++
			}
		}
	})
	if removed == 0 {
		return false
	}
	e.record()
	return true
}

func (e *Editor) ZoomIn()    { e.scene.Viewport.ZoomIn(); e.viewportChanged() }
func (e *Editor) ZoomOut()   { e.scene.Viewport.ZoomOut(); e.viewportChanged() }
func (e *Editor) ResetZoom() { e.scene.Viewport.ResetZoom(); e.viewportChanged() }
func (e *Editor) ResetPan()  { e.scene.Viewport.ResetPan(); e.viewportChanged() }

// Wheel zooms by a scroll-wheel delta.
func (e *Editor) Wheel(deltaY float64) {
	e.scene.Viewport.Wheel(deltaY)
	e.viewportChanged()
}

func (e *Editor) viewportChanged() {
	v := e.scene.Viewport
	for _, fn := range e.viewport {
		fn(v)
	}
}
