package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shehryarbajwa/scrollreel/internal/browser"
	"github.com/shehryarbajwa/scrollreel/internal/statestore"
	"github.com/shehryarbajwa/scrollreel/pkg/models"
)

// StateHandler serves the storage states archived for captures
type StateHandler struct {
	states *statestore.Store
}

func NewStateHandler(states *statestore.Store) *StateHandler {
	return &StateHandler{states: states}
}

type stateResponse struct {
	*statestore.Entry
	State browser.StorageState `json:"state"`
}

// GetState handles GET /api/captures/{id}/state
func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	entry, err := h.states.Get(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Storage state not found"})
		return
	}
	state, err := h.states.Load(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to read storage state", Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, stateResponse{Entry: entry, State: state})
}

// DeleteState handles DELETE /api/captures/{id}/state
func (h *StateHandler) DeleteState(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.states.Delete(id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, statestore.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, models.ErrorResponse{Error: err.Error()})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
