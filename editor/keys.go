package editor

import "strings"

// KeyEvent is a key press. Mod is the platform modifier (Ctrl or Cmd).
type KeyEvent struct {
	Key   string
	Mod   bool
	Shift bool
}

var shortcuts = map[string]Tool{
	"v": ToolSelect,
	"r": ToolRect,
	"c": ToolEllipse,
	"t": ToolTriangle,
	"l": ToolLine,
	"p": ToolDraw,
	"b": ToolDraw,
	"e": ToolErase,
	"f": ToolFrame,
	"x": ToolText,
	"h": ToolHand,
}

// KeyDown handles global shortcuts and reports whether the key was
// consumed. Keys are ignored while a text object is being edited.
func (e *Editor) KeyDown(k KeyEvent) bool {
	defer e.runDeferred()
	if e.store.GetState().EditingText != "" {
		return false
	}

	key := strings.ToLower(k.Key)
	if k.Mod {
		switch {
		case key == "z" && k.Shift, key == "y":
			e.Redo()
			return true
		case key == "z":
			e.Undo()
			return true
		}
		return false
	}

	switch key {
	case "delete", "backspace":
		e.DeleteSelection()
		return true
	}
	if t, ok := shortcuts[key]; ok {
		e.SetTool(t)
		return true
	}
	return false
}
