package api

import (
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/erazemk/rezervator/internal/dates"
	"github.com/erazemk/rezervator/internal/engine"
	"github.com/erazemk/rezervator/internal/model"
)

// AvailabilityHandler answers capacity queries.
type AvailabilityHandler struct {
	Engine *engine.Engine
	Log    *zap.Logger
}

// Item handles GET /api/items/{id}/availability?date=&city=&region=.
func (h *AvailabilityHandler) Item(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	day, err := parseDate(q, "date")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	filter, err := parseLocation(q)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	p, err := h.Engine.CheckAvailability(r.Context(), r.PathValue("id"), day, filter)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// Period handles GET /api/items/{id}/availability/period?start=&end=&exclude=.
func (h *AvailabilityHandler) Period(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := parseDate(q, "start")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	end, err := parseDate(q, "end")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	p, err := h.Engine.CheckAvailabilityOverPeriod(r.Context(), r.PathValue("id"), start, end, q.Get("exclude"))
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// All handles GET /api/availability?date=&city=&region=.
func (h *AvailabilityHandler) All(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	day, err := parseDate(q, "date")
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	filter, err := parseLocation(q)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}

	points, err := h.Engine.CheckAvailabilityAllItems(r.Context(), day, filter)
	if err != nil {
		writeError(w, h.Log, err)
		return
	}
	jsonResponse(w, http.StatusOK, points)
}

// parseDate reads a required YYYY-MM-DD query parameter.
func parseDate(q url.Values, key string) (dates.Date, error) {
	raw := q.Get(key)
	if raw == "" {
		return dates.Date{}, model.Invalid(key, "is required")
	}
	d, err := dates.Parse(raw)
	if err != nil {
		return dates.Date{}, model.Invalid(key, "must be a date in YYYY-MM-DD form")
	}
	return d, nil
}

// parseLocation reads the optional city and region filter. Both or neither
// must be given.
func parseLocation(q url.Values) (*model.Location, error) {
	loc := model.Location{City: q.Get("city"), Region: q.Get("region")}.Normalize()
	switch {
	case loc.IsZero():
		return nil, nil
	case loc.City == "":
		return nil, model.Invalid("city", "is required with region")
	case loc.Region == "":
		return nil, model.Invalid("region", "is required with city")
	}
	return &loc, nil
}
