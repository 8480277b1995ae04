package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeService is an in-memory sheet service speaking the HTTPClient protocol.
type fakeService struct {
	mu     sync.Mutex
	sheets map[string][][]string
	// throttle makes the next n requests fail with 429.
	throttle atomic.Int32
	calls    atomic.Int32
	token    string
}

func newFakeService(t *testing.T) (*fakeService, *httptest.Server) {
	t.Helper()
	f := &fakeService{sheets: map[string][][]string{}, token: "secret"}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /sheets/{sheet}/rows", f.rows)
	mux.HandleFunc("POST /sheets/{sheet}/rows", f.appendRow)
	mux.HandleFunc("PUT /sheets/{sheet}/rows/{n}", f.updateRow)
	mux.HandleFunc("DELETE /sheets/{sheet}/rows/{n}", f.deleteRow)
	mux.HandleFunc("PUT /sheets/{sheet}", f.ensure)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+f.token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		if f.throttle.Load() > 0 {
			f.throttle.Add(-1)
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Quota exceeded for quota metric 'Requests'"})
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeService) sheet(w http.ResponseWriter, r *http.Request) ([][]string, bool) {
	rows, ok := f.sheets[r.PathValue("sheet")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no such sheet"})
	}
	return rows, ok
}

func (f *fakeService) index(w http.ResponseWriter, r *http.Request, rows [][]string) (int, bool) {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 0 || n >= len(rows) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad row"})
		return 0, false
	}
	return n, true
}

func (f *fakeService) rows(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rows, ok := f.sheet(w, r); ok {
		writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
	}
}

func (f *fakeService) appendRow(w http.ResponseWriter, r *http.Request) {
	var req rowRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.mu.Lock()
	defer f.mu.Unlock()
	if rows, ok := f.sheet(w, r); ok {
		f.sheets[r.PathValue("sheet")] = append(rows, req.Values)
		writeJSON(w, http.StatusOK, map[string]string{})
	}
}

func (f *fakeService) updateRow(w http.ResponseWriter, r *http.Request) {
	var req rowRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.mu.Lock()
	defer f.mu.Unlock()
	rows, ok := f.sheet(w, r)
	if !ok {
		return
	}
	if n, ok := f.index(w, r, rows); ok {
		rows[n] = req.Values
		writeJSON(w, http.StatusOK, map[string]string{})
	}
}

func (f *fakeService) deleteRow(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows, ok := f.sheet(w, r)
	if !ok {
		return
	}
	if n, ok := f.index(w, r, rows); ok {
		f.sheets[r.PathValue("sheet")] = append(rows[:n:n], rows[n+1:]...)
		w.WriteHeader(http.StatusNoContent)
	}
}

func (f *fakeService) ensure(w http.ResponseWriter, r *http.Request) {
	var req sheetRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	f.mu.Lock()
	defer f.mu.Unlock()
	name := r.PathValue("sheet")
	if _, ok := f.sheets[name]; !ok {
		f.sheets[name] = [][]string{req.Header}
	}
	writeJSON(w, http.StatusOK, map[string]string{})
}

// countingClient counts Rows calls of the wrapped client.
type countingClient struct {
	Client
	reads atomic.Int32
}

func (c *countingClient) Rows(ctx context.Context, sheet string) ([][]string, error) {
	c.reads.Add(1)
	return c.Client.Rows(ctx, sheet)
}
