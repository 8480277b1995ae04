package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/erazemk/rezervator/internal/audit"
	"github.com/erazemk/rezervator/internal/auth"
	"github.com/erazemk/rezervator/internal/dates"
	"github.com/erazemk/rezervator/internal/db"
	"github.com/erazemk/rezervator/internal/engine"
	"github.com/erazemk/rezervator/internal/inventory"
	"github.com/erazemk/rezervator/internal/metrics"
	"github.com/erazemk/rezervator/internal/model"
	"github.com/erazemk/rezervator/internal/store"
)

const testJWTSecret = "test-secret"

var today = dates.MustParse("2024-06-01")

type testServer struct {
	*httptest.Server
	recorder *audit.Recorder
}

func setupTestServer(t *testing.T, wrap ...func(store.Backend) store.Backend) *testServer {
	t.Helper()
	var backend store.Backend = store.NewSQLite(db.NewTestDB(t))
	for _, w := range wrap {
		backend = w(backend)
	}
	log := zaptest.NewLogger(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	clock := dates.NewFixedClock(today.Time().Add(10 * time.Hour))

	rec := audit.New(backend, audit.Options{Clock: clock, Logger: log, Metrics: m})
	t.Cleanup(func() { _ = rec.Close(context.Background()) })
	repo := inventory.New(backend, inventory.Options{Auditor: rec, Clock: clock, Logger: log, Metrics: m})

	router := NewRouter(Config{
		Engine:      engine.New(repo, rec),
		Logger:      log,
		Metrics:     m,
		Gatherer:    reg,
		JWTSecret:   testJWTSecret,
		CORSOrigins: []string{"https://app.example.com"},
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testServer{Server: server, recorder: rec}
}

// do sends a JSON request and decodes the JSON response into out, if given.
func (s *testServer) do(t *testing.T, method, path string, body, out any, headers ...string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, r)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func itemBody(name string, total int) map[string]any {
	return map[string]any{
		"name": name, "category": "generator", "total_quantity": total,
		"city": "Torino", "region_code": "TO",
	}
}

func commitmentBody(itemID string, from, to string, qty int) map[string]any {
	return map[string]any{
		"item_id": itemID, "quantity": qty, "start_date": from, "end_date": to,
		"city": "Torino", "region_code": "TO",
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := setupTestServer(t)

	var health map[string]string
	resp := s.do(t, http.MethodGet, "/healthz", nil, &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health["status"])

	resp, err := http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "rezervator_http_requests_total")
}

func TestItemLifecycle(t *testing.T) {
	s := setupTestServer(t)

	var item model.Item
	resp := s.do(t, http.MethodPost, "/api/items", itemBody("Generator", 5), &item)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, item.ID)

	var got model.Item
	resp = s.do(t, http.MethodGet, "/api/items/"+item.ID, nil, &got)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Generator", got.Name)

	var updated model.Item
	resp = s.do(t, http.MethodPut, "/api/items/"+item.ID, itemBody("Generator", 7), &updated)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 7, updated.TotalQuantity)

	var items []model.Item
	s.do(t, http.MethodGet, "/api/items?category=GENERATOR", nil, &items)
	assert.Len(t, items, 1)
	s.do(t, http.MethodGet, "/api/items?category=tent", nil, &items)
	assert.Empty(t, items)

	resp = s.do(t, http.MethodDelete, "/api/items/"+item.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	var errBody errorBody
	resp = s.do(t, http.MethodGet, "/api/items/"+item.ID, nil, &errBody)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "fix_input", errBody.Remedy)
}

func TestValidationErrors(t *testing.T) {
	s := setupTestServer(t)

	var errBody errorBody
	resp := s.do(t, http.MethodPost, "/api/items", itemBody("", 5), &errBody)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "name", errBody.Field)

	resp = s.do(t, http.MethodPost, "/api/items", map[string]any{"nme": "typo"}, &errBody)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid request body", errBody.Error)

	s.do(t, http.MethodPost, "/api/items", itemBody("Generator", 5), nil)
	resp = s.do(t, http.MethodPost, "/api/items", itemBody("generator", 5), &errBody)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "name", errBody.Field)

	resp = s.do(t, http.MethodGet, "/api/availability?date=01/06/2024", nil, &errBody)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "date", errBody.Field)

	resp = s.do(t, http.MethodGet, "/api/availability?date=2024-06-01&city=Torino", nil, &errBody)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "region", errBody.Field)
}

func TestReservationFlow(t *testing.T) {
	s := setupTestServer(t)

	var item model.Item
	s.do(t, http.MethodPost, "/api/items", itemBody("Generator", 5), &item)

	var a model.Commitment
	resp := s.do(t, http.MethodPost, "/api/commitments", commitmentBody(item.ID, "2024-06-01", "2024-06-05", 3), &a)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Generator", a.ItemName)

	var errBody errorBody
	resp = s.do(t, http.MethodPost, "/api/commitments", commitmentBody(item.ID, "2024-06-03", "2024-06-07", 3), &errBody)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	require.NotNil(t, errBody.MinAvailable)
	assert.Equal(t, 2, *errBody.MinAvailable)
	assert.Equal(t, 3, *errBody.Requested)

	var peak struct {
		PeakCommitted int `json:"peak_committed"`
		MinAvailable  int `json:"min_available"`
	}
	resp = s.do(t, http.MethodGet, "/api/items/"+item.ID+"/availability/period?start=2024-06-03&end=2024-06-07", nil, &peak)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, peak.MinAvailable)

	s.do(t, http.MethodGet, "/api/items/"+item.ID+"/availability/period?start=2024-06-03&end=2024-06-07&exclude="+a.ID, nil, &peak)
	assert.Equal(t, 5, peak.MinAvailable)

	var point struct {
		Committed int `json:"committed"`
		Available int `json:"available"`
	}
	s.do(t, http.MethodGet, "/api/items/"+item.ID+"/availability?date=2024-06-02&city=torino&region=to", nil, &point)
	assert.Equal(t, 3, point.Committed)
	assert.Equal(t, 2, point.Available)

	var all []map[string]any
	s.do(t, http.MethodGet, "/api/availability?date=2024-06-02", nil, &all)
	require.Len(t, all, 1)
	assert.Equal(t, float64(2), all[0]["available"])

	var listed []model.Commitment
	s.do(t, http.MethodGet, "/api/commitments?item_id="+item.ID+"&active_on=2024-06-05", nil, &listed)
	assert.Len(t, listed, 1)
	s.do(t, http.MethodGet, "/api/commitments?active_on=2024-06-06", nil, &listed)
	assert.Empty(t, listed)

	var updated model.Commitment
	resp = s.do(t, http.MethodPut, "/api/commitments/"+a.ID, commitmentBody(item.ID, "2024-06-01", "2024-06-05", 5), &updated)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, updated.Quantity)

	// The item still has a commitment ending after today.
	resp = s.do(t, http.MethodDelete, "/api/items/"+item.ID, nil, &errBody)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = s.do(t, http.MethodDelete, "/api/commitments/"+a.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = s.do(t, http.MethodDelete, "/api/commitments/"+a.ID, nil, &errBody)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestActorResolution(t *testing.T) {
	s := setupTestServer(t)

	token, err := auth.GenerateToken(testJWTSecret, "7", "ana", time.Hour)
	require.NoError(t, err)

	var item model.Item
	s.do(t, http.MethodPost, "/api/items", itemBody("Generator", 5), &item, "Authorization", "Bearer "+token)
	s.do(t, http.MethodPut, "/api/items/"+item.ID, itemBody("Generator", 6), nil, ActorHeader, "front-desk")
	s.do(t, http.MethodPut, "/api/items/"+item.ID, itemBody("Generator", 7), nil)
	require.NoError(t, s.recorder.Flush(context.Background()))

	var history []model.AuditEntry
	resp := s.do(t, http.MethodGet, "/api/items/"+item.ID+"/history", nil, &history)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, history, 3)
	assert.Equal(t, audit.AnonymousActor, history[0].Actor)
	assert.Equal(t, "front-desk", history[1].Actor)
	assert.Equal(t, "ana", history[2].Actor)

	resp = s.do(t, http.MethodGet, "/api/items", nil, nil, "Authorization", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var commitments []model.AuditEntry
	resp = s.do(t, http.MethodGet, "/api/commitments/99/history", nil, &commitments)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, commitments)
}

func TestCORS(t *testing.T) {
	s := setupTestServer(t)

	req, _ := http.NewRequest(http.MethodOptions, s.URL+"/api/items", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestNoCORSWithoutOrigins(t *testing.T) {
	router := NewRouter(Config{Logger: zaptest.NewLogger(t)})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	req, _ := http.NewRequest(http.MethodGet, server.URL+"/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

// failingBackend makes every item listing fail with err.
type failingBackend struct {
	store.Backend
	err error
}

func (f failingBackend) ListItems(context.Context) ([]model.Item, error) { return nil, f.err }

func TestBackendErrorsMapToRemedies(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		remedy string
	}{
		{"rate limited", &model.RateLimitError{Attempts: 5, Err: errors.New("quota exceeded")}, http.StatusTooManyRequests, "retry_later"},
		{"unreachable", model.Unavailable("sheets", "check sheets.base_url", errors.New("dial tcp: refused")), http.StatusServiceUnavailable, "check_configuration"},
		{"misconfigured", &model.ConfigError{Key: "postgres.host"}, http.StatusServiceUnavailable, "check_configuration"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "none"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestServer(t, func(b store.Backend) store.Backend { return failingBackend{b, tt.err} })

			var errBody errorBody
			resp := s.do(t, http.MethodGet, "/api/items", nil, &errBody)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.remedy, errBody.Remedy)
			if tt.status == http.StatusTooManyRequests {
				assert.Equal(t, retryAfterSeconds, resp.Header.Get("Retry-After"))
			}
		})
	}
}
