package editor

import "sync"

// Tool is the active input mode.
type Tool string

const (
	ToolSelect   Tool = "select"
	ToolDraw     Tool = "draw"
	ToolErase    Tool = "erase"
	ToolHand     Tool = "hand"
	ToolText     Tool = "text"
	ToolLine     Tool = "line"
	ToolRect     Tool = "rectangle"
	ToolEllipse  Tool = "circle"
	ToolTriangle Tool = "triangle"
	ToolFrame    Tool = "frame"
)

// State is the application state shared between the surface and the tool
// machine.
type State struct {
	Tool Tool
	// Drawing is set while a multi-step mutation is in flight.
	Drawing bool
	// EditingText holds the id of the text object being edited inline.
	EditingText string
}

// Action derives the next state from the current one.
type Action func(State) State

func SelectTool(t Tool) Action {
	return func(s State) State { s.Tool = t; return s }
}

func SetDrawing(on bool) Action {
	return func(s State) State { s.Drawing = on; return s }
}

func SetEditingText(id string) Action {
	return func(s State) State { s.EditingText = id; return s }
}

type subscriber struct {
	fn func(State)
}

// Store owns the application state. Subscribers are notified in
// registration order after every dispatch that changes the state.
type Store struct {
	mu    sync.RWMutex
	state State
	subs  []*subscriber
}

func NewStore() *Store {
	return &Store{state: State{Tool: ToolSelect}}
}

func (s *Store) GetState() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn func(State)) func() {
	sub := &subscriber{fn: fn}
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, x := range s.subs {
			if x == sub {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) Dispatch(a Action) {
	s.mu.Lock()
	prev := s.state
	s.state = a(prev)
	next := s.state
	subs := append([]*subscriber(nil), s.subs...)
	s.mu.Unlock()

	if next == prev {
		return
	}
	for _, sub := range subs {
		sub.fn(next)
	}
}
