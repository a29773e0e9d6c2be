package editor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreNotifiesOnChange(t *testing.T) {
	s := NewStore()
	var got []State
	unsubscribe := s.Subscribe(func(st State) { got = append(got, st) })

	s.Dispatch(SelectTool(ToolRect))
	s.Dispatch(SelectTool(ToolRect))
	s.Dispatch(SetDrawing(true))

	assert.Len(t, got, 2)
	assert.Equal(t, State{Tool: ToolRect, Drawing: true}, s.GetState())

	unsubscribe()
	s.Dispatch(SetDrawing(false))
	assert.Len(t, got, 2)
}
