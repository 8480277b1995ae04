package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/erazemk/rezervator/internal/model"
)

// retryAfterSeconds is suggested to clients once the backend quota is exhausted.
const retryAfterSeconds = "90"

// errorBody is the JSON shape of every error response. Remedy tells the client
// whether to fix the request, retry later or check the configuration.
type errorBody struct {
	Error        string `json:"error"`
	Remedy       string `json:"remedy"`
	Field        string `json:"field,omitempty"`
	Requested    *int   `json:"requested,omitempty"`
	MinAvailable *int   `json:"min_available,omitempty"`
}

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		// An encode error means the client went away.
		_ = json.NewEncoder(w).Encode(data)
	}
}

// jsonError writes a JSON error response for a request the handler rejected
// itself.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, errorBody{Error: message, Remedy: model.RemedyFixInput.String()})
}

// writeError maps an engine error to a status code and JSON body.
func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var (
		validation  *model.ValidationError
		duplicate   *model.DuplicateError
		capacity    *model.InsufficientCapacityError
		future      *model.HasFutureCommitmentsError
		unavailable *model.BackendUnavailableError
	)
	remedy := model.RemedyFor(err)
	body := errorBody{Error: err.Error(), Remedy: remedy.String()}

	status := http.StatusInternalServerError
	switch {
	case model.IsNotFound(err):
		status = http.StatusNotFound
	case errors.As(err, &validation):
		status = http.StatusBadRequest
		body.Field = validation.Field
	case errors.As(err, &duplicate):
		status = http.StatusConflict
		body.Field = duplicate.Field
	case errors.As(err, &capacity):
		status = http.StatusConflict
		body.Requested = &capacity.Requested
		body.MinAvailable = &capacity.MinAvailable
	case errors.As(err, &future):
		status = http.StatusConflict
	case remedy == model.RemedyRetryLater:
		status = http.StatusTooManyRequests
		w.Header().Set("Retry-After", retryAfterSeconds)
		body.Error = "rate limit exceeded, retry in 1-2 minutes"
	case remedy == model.RemedyCheckConfig:
		status = http.StatusServiceUnavailable
		if errors.As(err, &unavailable) {
			log.Error("backend unavailable", zap.String("backend", unavailable.Backend), zap.Error(err))
		} else {
			log.Error("backend misconfigured", zap.Error(err))
		}
	default:
		log.Error("request failed", zap.Error(err))
		body.Error = "internal error"
	}
	jsonResponse(w, status, body)
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
