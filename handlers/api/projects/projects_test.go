package projects

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"compass/core"
	"compass/handlers/auth"
	"compass/middleware"
	"compass/service"
	"compass/stores/memory"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withUser(req *http.Request, userID string) *http.Request {
	claims := &auth.AppClaims{}
	claims.Subject = userID
	return req.WithContext(middleware.WithClaims(req.Context(), claims))
}

func TestCreateAndList(t *testing.T) {
	svc := service.NewProjectService(memory.NewStore())

	body := []byte(`{"name":"Moodboard","visibility":"public"}`)
	rr := httptest.NewRecorder()
	HandleCreateProject(svc)(rr, withUser(httptest.NewRequest(http.MethodPost, "/api/projects", bytes.NewReader(body)), "owner"))
	require.Equal(t, http.StatusCreated, rr.Code)

	var created core.Project
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "Moodboard", created.Name)
	assert.Equal(t, core.VisibilityPublic, created.Visibility)
	assert.Equal(t, "owner", created.UserID)

	rr = httptest.NewRecorder()
	HandleListProjects(svc)(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/projects", nil), "owner"))
	require.Equal(t, http.StatusOK, rr.Code)
	var list []core.Project
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rr = httptest.NewRecorder()
	HandleListProjects(svc)(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/projects", nil), "other"))
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestCreateValidation(t *testing.T) {
	svc := service.NewProjectService(memory.NewStore())
	for _, body := range []string{`{`, `{"name":""}`, `{"name":"x","visibility":"hidden"}`} {
		rr := httptest.NewRecorder()
		HandleCreateProject(svc)(rr, withUser(httptest.NewRequest(http.MethodPost, "/api/projects", bytes.NewReader([]byte(body))), "owner"))
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
}

func TestGetProject(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.CreateProject(context.Background(), &core.Project{ID: "p1", UserID: "owner", Name: "Board"}))
	svc := service.NewProjectService(store)

	get := func(id, user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/projects/"+id, nil)
		rctx := chi.NewRouteContext()
		rctx.URLParams.Add("projectId", id)
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
		rr := httptest.NewRecorder()
		HandleGetProject(svc)(rr, withUser(req, user))
		return rr
	}

	assert.Equal(t, http.StatusOK, get("p1", "owner").Code)
	assert.Equal(t, http.StatusForbidden, get("p1", "other").Code)
	assert.Equal(t, http.StatusNotFound, get("p2", "other").Code)
}

func TestProjectsRequireClaims(t *testing.T) {
	svc := service.NewProjectService(memory.NewStore())
	rr := httptest.NewRecorder()
	HandleListProjects(svc)(rr, httptest.NewRequest(http.MethodGet, "/api/projects", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
