package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"compass/core"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		message string
	}{
		{core.ValidationFailed("name", "name is required"), http.StatusBadRequest, "name is required"},
		{core.Unauthorized("authentication required"), http.StatusUnauthorized, "authentication required"},
		{core.Forbidden("no access"), http.StatusForbidden, "no access"},
		{core.NotFound("project", "p1"), http.StatusNotFound, "project not found with id p1"},
		{fmt.Errorf("wrapped: %w", core.NotFound("canvas", "p2")), http.StatusNotFound, "canvas not found with id p2"},
		{core.Unavailable("failed to save canvas", errors.New("redis down")), http.StatusServiceUnavailable, "failed to save canvas"},
		{errors.New("sql: connection reset"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			WriteError(rr, req, tt.err, logrus.StandardLogger())

			assert.Equal(t, tt.status, rr.Code)
			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.False(t, body.Success)
			assert.Equal(t, tt.message, body.Error)
		})
	}
}

func TestWriteErrorDoesNotLeakCause(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, httptest.NewRequest(http.MethodGet, "/", nil),
		core.Unavailable("failed to load canvas", errors.New("dial tcp 10.0.0.3:6379")), logrus.StandardLogger())
	assert.NotContains(t, rr.Body.String(), "10.0.0.3")
}
