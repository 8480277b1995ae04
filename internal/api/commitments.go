package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/erazemk/rezervator/internal/engine"
	"github.com/erazemk/rezervator/internal/inventory"
	"github.com/erazemk/rezervator/internal/model"
)

// CommitmentsHandler handles commitment endpoints.
type CommitmentsHandler struct {
	Engine *engine.Engine
	Log    *zap.Logger
}

// List handles GET /api/commitments?item_id=&active_on=.
func (h *CommitmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := inventory.CommitmentFilter{ItemID: q.Get("item_id")}
	if q.Get("active_on") != "" {
		day, err := parseDate(q, "active_on")
		if err != nil {
			writeError(w, h.Log, err)
			return
		}
		filter.ActiveOn = day
	}

	commitments, err := h.Engine.ListCommitments(r.Context(), filter)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, commitments)
}

// Create handles POST /api/commitments.
func (h *CommitmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var spec model.CommitmentSpec
	if err := decodeJSON(r, &spec); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.Engine.CreateCommitment(r.Context(), spec)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusCreated, c)
}

// Get handles GET /api/commitments/{id}.
func (h *CommitmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.Engine.GetCommitment(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, c)
}

// Update handles PUT /api/commitments/{id}.
func (h *CommitmentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var spec model.CommitmentSpec
	if err := decodeJSON(r, &spec); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.Engine.UpdateCommitment(r.Context(), r.PathValue("id"), spec)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, c)
}

// Delete handles DELETE /api/commitments/{id}.
func (h *CommitmentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.DeleteCommitment(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHistory handles GET /api/commitments/{id}/history.
func (h *CommitmentsHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Engine.History(r.Context(), model.TableCommitments, r.PathValue("id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, entries)
}
