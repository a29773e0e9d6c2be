package projects

import (
	"compass/core"
	"compass/handlers/api/response"
	"compass/middleware"
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type Service interface {
	Create(ctx context.Context, userID, name string, visibility core.Visibility) (*core.Project, error)
	List(ctx context.Context, userID string) ([]*core.Project, error)
	Get(ctx context.Context, userID, projectID string) (*core.Project, error)
}

type CreateRequest struct {
	Name       string          `json:"name"`
	Visibility core.Visibility `json:"visibility"`
}

func HandleCreateProject(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			response.Fail(w, r, http.StatusUnauthorized, "User claims not found")
			return
		}

		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Fail(w, r, http.StatusBadRequest, "Invalid JSON in request body")
			return
		}
		defer r.Body.Close()

		project, err := svc.Create(r.Context(), userID, req.Name, req.Visibility)
		if err != nil {
			response.WriteError(w, r, err, logrus.WithField("user_id", userID))
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, project)
	}
}

func HandleListProjects(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			response.Fail(w, r, http.StatusUnauthorized, "User claims not found")
			return
		}

		projects, err := svc.List(r.Context(), userID)
		if err != nil {
			response.WriteError(w, r, err, logrus.WithField("user_id", userID))
			return
		}
		if projects == nil {
			projects = []*core.Project{}
		}
		render.JSON(w, r, projects)
	}
}

func HandleGetProject(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserIDFromContext(r.Context())
		if !ok {
			response.Fail(w, r, http.StatusUnauthorized, "User claims not found")
			return
		}
		projectID := chi.URLParam(r, "projectId")
		if projectID == "" {
			response.Fail(w, r, http.StatusBadRequest, "Project ID is required")
			return
		}

		project, err := svc.Get(r.Context(), userID, projectID)
		if err != nil {
			response.WriteError(w, r, err, logrus.WithFields(logrus.Fields{"user_id": userID, "project_id": projectID}))
			return
		}
		render.JSON(w, r, project)
	}
}
