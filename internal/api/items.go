package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/erazemk/rezervator/internal/engine"
	"github.com/erazemk/rezervator/internal/model"
)

// ItemsHandler handles item CRUD endpoints.
type ItemsHandler struct {
	Engine *engine.Engine
	Log    *zap.Logger
}

// List handles GET /api/items.
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.Engine.ListItems(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}

// Create handles POST /api/items.
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var spec model.ItemSpec
	if err := decodeJSON(r, &spec); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.Engine.CreateItem(r.Context(), spec)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusCreated, item)
}

// Get handles GET /api/items/{id}.
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	item, err := h.Engine.GetItem(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Update handles PUT /api/items/{id}.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var spec model.ItemSpec
	if err := decodeJSON(r, &spec); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := h.Engine.UpdateItem(r.Context(), r.PathValue("id"), spec)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, item)
}

// Delete handles DELETE /api/items/{id}.
func (h *ItemsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.DeleteItem(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetHistory handles GET /api/items/{id}/history.
func (h *ItemsHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Engine.History(r.Context(), model.TableItems, r.PathValue("id"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, entries)
}
