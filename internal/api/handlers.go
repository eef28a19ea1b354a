package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/scrollreel/internal/capture"
	"github.com/shehryarbajwa/scrollreel/internal/storage"
	"github.com/shehryarbajwa/scrollreel/pkg/models"
)

const maxBodyBytes = 1 << 20

// CaptureService is what the handlers need from the capture manager
type CaptureService interface {
	Generate(ctx context.Context, req models.CaptureRequest) (*capture.Artifact, error)
	GetCapture(id string) (*models.Capture, error)
	ListCaptures(state models.CaptureState) []*models.Capture
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	captures CaptureService
	logger   *zap.Logger
	// development exposes error cause chains to clients
	development bool
}

func NewHandler(captures CaptureService, logger *zap.Logger, development bool) *Handler {
	return &Handler{
		captures:    captures,
		logger:      logger.Named("api"),
		development: development,
	}
}

// GenerateBackground handles POST /api/generate-background
func (h *Handler) GenerateBackground(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateRequest

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	h.logger.Info("received request to generate background video",
		zap.String("url", req.URL),
		zap.String("scroll_speed", req.ScrollSpeed),
		zap.String("resolution", req.Resolution),
		zap.String("scroll_direction", req.ScrollDirection),
		zap.Strings("hide_elements", req.HideElements))

	captureReq, err := req.Validate()
	if err != nil {
		h.logger.Info("rejected generate request", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
		return
	}

	artifact, err := h.captures.Generate(r.Context(), captureReq)
	if err != nil {
		h.writeCaptureError(w, err)
		return
	}

	h.logger.Info("video generated and uploaded", zap.String("video_url", artifact.Reference.URL))
	writeJSON(w, http.StatusOK, models.GenerateResponse{
		VideoURL:  artifact.Reference.URL,
		CaptureID: artifact.CaptureID,
	})
}

// ListCaptures handles GET /api/captures
func (h *Handler) ListCaptures(w http.ResponseWriter, r *http.Request) {
	state := models.CaptureState(r.URL.Query().Get("state"))

	captures := h.captures.ListCaptures(state)
	if captures == nil {
		captures = []*models.Capture{}
	}
	writeJSON(w, http.StatusOK, captures)
}

// GetCapture handles GET /api/captures/{id}
func (h *Handler) GetCapture(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	c, err := h.captures.GetCapture(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Capture not found"})
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GetDebugURL handles GET /api/captures/{id}/debug
func (h *Handler) GetDebugURL(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	c, err := h.captures.GetCapture(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Capture not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"debuggerUrl": fmt.Sprintf("ws://%s/api/captures/%s/ws", r.Host, c.ID),
		"captureId":   c.ID,
		"state":       string(c.State),
	})
}

func (h *Handler) writeCaptureError(w http.ResponseWriter, err error) {
	status, title := http.StatusInternalServerError, "Failed to generate video"

	var uploadErr *storage.UploadError
	switch {
	case errors.Is(err, capture.ErrBusy):
		status, title = http.StatusServiceUnavailable, "Too many captures in progress"
	case errors.As(err, &uploadErr):
		status, title = http.StatusBadGateway, "Failed to upload video"
	}

	h.logger.Error("error generating video", zap.Int("status", status), zap.Error(err))

	resp := models.ErrorResponse{Error: title, Message: err.Error()}
	if h.development {
		resp.Detail = causeChain(err)
	}
	writeJSON(w, status, resp)
}

// causeChain lists err and every error it wraps
func causeChain(err error) []string {
	var chain []string
	for err != nil {
		chain = append(chain, fmt.Sprintf("%T: %v", err, err))
		err = errors.Unwrap(err)
	}
	return chain
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
