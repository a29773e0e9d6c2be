// Package scene holds the in-memory drawing model: ordered objects, the
// viewport, and an explicit mutation event contract.
package scene

import (
	"errors"
	"slices"
)

var (
	ErrNotFound = errors.New("object not found")
	ErrLocked   = errors.New("object is locked")
)

// Listener receives a copy of the object an event refers to.
type Listener func(Object)

// Scene is the live set of objects in z-order (insertion order) plus the
// viewport. It is not safe for concurrent use; all mutation happens on the
// caller's event loop.
type Scene struct {
	Viewport Viewport

	objects   []*Object
	selection []string

	added    []Listener
	modified []Listener
	removed  []Listener
}

func New() *Scene {
	return &Scene{Viewport: NewViewport()}
}

// OnObjectAdded registers fn. Listeners run in registration order.
func (s *Scene) OnObjectAdded(fn Listener)    { s.added = append(s.added, fn) }
func (s *Scene) OnObjectModified(fn Listener) { s.modified = append(s.modified, fn) }
func (s *Scene) OnObjectRemoved(fn Listener)  { s.removed = append(s.removed, fn) }

func emit(listeners []Listener, o *Object) {
	c := o.Clone()
	for _, fn := range slices.Clone(listeners) {
		fn(c)
	}
}

// Add appends o on top of the z-order and returns its id. A missing id is
// generated.
func (s *Scene) Add(o Object) string {
	if o.ID == "" {
		o.ID = NewObject(o.Kind).ID
	}
	obj := o.Clone()
	s.objects = append(s.objects, &obj)
	emit(s.added, &obj)
	return obj.ID
}

// Remove deletes the object with the given id.
func (s *Scene) Remove(id string) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	obj := s.objects[i]
	s.objects = slices.Delete(s.objects, i, i+1)
	s.deselect(id)
	emit(s.removed, obj)
	return true
}

// Modify applies fn to the object and emits a modified event. The id is
// preserved even if fn changes it.
func (s *Scene) Modify(id string, fn func(*Object)) error {
	obj := s.find(id)
	if obj == nil {
		return ErrNotFound
	}
	fn(obj)
	obj.ID = id
	emit(s.modified, obj)
	return nil
}

// Move translates an object as a user drag would. Locked objects refuse.
func (s *Scene) Move(id string, dx, dy float64) error {
	obj := s.find(id)
	if obj == nil {
		return ErrNotFound
	}
	if obj.Locked {
		return ErrLocked
	}
	obj.Translate(dx, dy)
	emit(s.modified, obj)
	return nil
}

// SetLocked toggles movement locking without emitting an event; locking is
// interaction state, not a scene mutation.
func (s *Scene) SetLocked(id string, locked bool) bool {
	obj := s.find(id)
	if obj == nil {
		return false
	}
	obj.Locked = locked
	return true
}

// Get returns a copy of the object.
func (s *Scene) Get(id string) (Object, bool) {
	obj := s.find(id)
	if obj == nil {
		return Object{}, false
	}
	return obj.Clone(), true
}

// Objects returns copies of all objects in z-order.
func (s *Scene) Objects() []Object {
	out := make([]Object, len(s.objects))
	for i, o := range s.objects {
		out[i] = o.Clone()
	}
	return out
}

func (s *Scene) Len() int { return len(s.objects) }

// HitTest returns the topmost interactive object whose bounds contain p.
func (s *Scene) HitTest(p Point) (Object, bool) {
	for i := len(s.objects) - 1; i >= 0; i-- {
		o := s.objects[i]
		if !o.Inert && o.Bounds().Contains(p) {
			return o.Clone(), true
		}
	}
	return Object{}, false
}

// Select replaces the selection with the given ids, ignoring unknown ones.
func (s *Scene) Select(ids ...string) {
	s.selection = s.selection[:0]
	for _, id := range ids {
		if s.find(id) != nil && !slices.Contains(s.selection, id) {
			s.selection = append(s.selection, id)
		}
	}
}

func (s *Scene) Selection() []string { return slices.Clone(s.selection) }

func (s *Scene) ClearSelection() { s.selection = nil }

// Load fully replaces the live objects with elements, emitting removed
// events for the old set and added events for the new one.
func (s *Scene) Load(elements []Object) {
	old := s.objects
	s.objects = nil
	s.selection = nil
	for _, o := range old {
		emit(s.removed, o)
	}
	for _, o := range elements {
		s.Add(o)
	}
}

// Content returns the elements-only snapshot recorded into history.
func (s *Scene) Content() Snapshot {
	return Snapshot{Elements: s.Objects()}
}

// Snapshot returns the elements together with the viewport.
func (s *Scene) Snapshot() Snapshot {
	pan := s.Viewport.Pan
	return Snapshot{Elements: s.Objects(), Zoom: s.Viewport.Zoom, Pan: &pan}
}

func (s *Scene) find(id string) *Object {
	if i := s.indexOf(id); i >= 0 {
		return s.objects[i]
	}
	return nil
}

func (s *Scene) indexOf(id string) int {
	return slices.IndexFunc(s.objects, func(o *Object) bool { return o.ID == id })
}

func (s *Scene) deselect(id string) {
	s.selection = slices.DeleteFunc(s.selection, func(sel string) bool { return sel == id })
}
