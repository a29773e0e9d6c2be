package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorUnwrapsToSentinel(t *testing.T) {
	err := fmt.Errorf("load canvas: %w", NotFound("project", "p1"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrForbidden))

	var appErr *AppError
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, "project not found with id p1", appErr.Message)
}

func TestUnavailableKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Unavailable("cache unavailable", cause)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "cache unavailable", err.Error())
}

func TestVisibility(t *testing.T) {
	assert.True(t, VisibilityUnlisted.Valid())
	assert.False(t, Visibility("secret").Valid())
}
