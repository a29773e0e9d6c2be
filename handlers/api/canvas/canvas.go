package canvas

import (
	"compass/handlers/api/response"
	"compass/middleware"
	"compass/service"
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

// MaxBodyBytes bounds the size of a saved canvas.
const MaxBodyBytes = 16 << 20

type Service interface {
	Save(ctx context.Context, userID, projectID, state string, timestamp int64) (int64, error)
	Load(ctx context.Context, userID, projectID string) (service.LoadResult, error)
}

type (
	SaveRequest struct {
		CanvasState string `json:"canvasState"`
		Timestamp   int64  `json:"timestamp,omitempty"`
	}

	SaveResponse struct {
		Success   bool   `json:"success"`
		Message   string `json:"message"`
		Timestamp int64  `json:"timestamp"`
	}

	LoadResponse struct {
		Success     bool           `json:"success"`
		CanvasState *string        `json:"canvasState"`
		Source      service.Source `json:"source"`
	}
)

func HandleGetCanvas(svc Service) http.HandlerFunc {
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

		log := logrus.WithFields(logrus.Fields{"project_id": projectID, "user_id": userID, "op": "get_canvas"})
		res, err := svc.Load(r.Context(), userID, projectID)
		if err != nil {
			response.WriteError(w, r, err, log)
			return
		}

		render.JSON(w, r, LoadResponse{Success: true, CanvasState: res.CanvasState, Source: res.Source})
	}
}

func HandleSaveCanvas(svc Service) http.HandlerFunc {
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

		var req SaveRequest
		body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
		defer body.Close()
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			response.Fail(w, r, http.StatusBadRequest, "Invalid JSON in request body")
			return
		}

		log := logrus.WithFields(logrus.Fields{"project_id": projectID, "user_id": userID, "op": "save_canvas"})
		ts, err := svc.Save(r.Context(), userID, projectID, req.CanvasState, req.Timestamp)
		if err != nil {
			response.WriteError(w, r, err, log)
			return
		}

		render.JSON(w, r, SaveResponse{Success: true, Message: "Canvas saved successfully", Timestamp: ts})
	}
}
