// Package history is a linear undo/redo stack of serialized scene
// snapshots. Entries are strings and therefore immutable once recorded.
package history

// History holds the recorded entries and the current position. The index
// is -1 when empty and otherwise points at a valid entry.
type History struct {
	entries        []string
	index          int
	restorePending bool
	listeners      []func()
}

func New() *History {
	return &History{index: -1}
}

// OnChange registers fn to run after every Record, Undo and Redo that
// changes the stack.
func (h *History) OnChange(fn func()) {
	h.listeners = append(h.listeners, fn)
}

// Record discards any entries after the current index and appends entry.
func (h *History) Record(entry string) {
	h.entries = append(h.entries[:h.index+1], entry)
	h.index = len(h.entries) - 1
	h.restorePending = false
	h.changed()
}

// Undo steps back one entry and marks a restore pending.
func (h *History) Undo() bool {
	if !h.CanUndo() {
		return false
	}
	h.index--
	h.restorePending = true
	h.changed()
	return true
}

// Redo steps forward one entry and marks a restore pending.
func (h *History) Redo() bool {
	if !h.CanRedo() {
		return false
	}
	h.index++
	h.restorePending = true
	h.changed()
	return true
}

func (h *History) CanUndo() bool { return h.index > 0 }
func (h *History) CanRedo() bool { return h.index < len(h.entries)-1 }
func (h *History) Index() int    { return h.index }
func (h *History) Len() int      { return len(h.entries) }

// Current returns the entry at the current index.
func (h *History) Current() (string, bool) {
	if h.index < 0 {
		return "", false
	}
	return h.entries[h.index], true
}

// Entries returns a copy of the recorded sequence.
func (h *History) Entries() []string {
	return append([]string(nil), h.entries...)
}

// Seed replaces the stack with previously persisted entries. The index is
// clamped into range and a restore is marked pending if any entry exists.
func (h *History) Seed(entries []string, index int) {
	h.entries = append([]string(nil), entries...)
	switch {
	case len(h.entries) == 0:
		h.index = -1
	case index < 0:
		h.index = 0
	case index >= len(h.entries):
		h.index = len(h.entries) - 1
	default:
		h.index = index
	}
	h.restorePending = h.index >= 0
}

func (h *History) RestorePending() bool { return h.restorePending }

// TakeRestore returns the current entry if a restore is pending and clears
// the flag.
func (h *History) TakeRestore() (string, bool) {
	if !h.restorePending {
		return "", false
	}
	h.restorePending = false
	return h.Current()
}

func (h *History) changed() {
	for _, fn := range h.listeners {
		fn()
	}
}
