package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/mysqlgo/mysqlgo/internal/metrics"
	"github.com/mysqlgo/mysqlgo/internal/pool"
)

func newTestServer() (*Server, *mux.Router) {
	p := pool.New(pool.Config{
		Host: "127.0.0.1",
		Port: 3306,
		Min:  2,
		Max:  20,
	})
	m := metrics.New()

	s := NewServer("testpool", p, m)

	r := mux.NewRouter()
	r.HandleFunc("/stats", s.statsHandler).Methods("GET")
	r.HandleFunc("/status", s.statusHandler).Methods("GET")
	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.HandleFunc("/", s.dashboardHandler).Methods("GET")
	return s, r
}

func TestStatsHandler(t *testing.T) {
	_, mr := newTestServer()

	req := httptest.NewRequest("GET", "/stats", nil)
	rr := httptest.NewRecorder()
	mr.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var resp statsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Pool != "testpool" {
		t.Errorf("expected pool name testpool, got %q", resp.Pool)
	}
	if resp.Stats.Min != 2 || resp.Stats.Max != 20 {
		t.Errorf("unexpected pool bounds: %+v", resp.Stats)
	}
	if resp.Stats.Closed {
		t.Errorf("expected fresh pool to be open")
	}
}

func TestStatusHandler(t *testing.T) {
	_, mr := newTestServer()

	req := httptest.NewRequest("GET", "/status", nil)
	rr := httptest.NewRecorder()
	mr.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["pool"] != "testpool" {
		t.Errorf("expected pool field testpool, got %v", body["pool"])
	}
	if _, ok := body["go_version"]; !ok {
		t.Errorf("expected go_version field in status response")
	}
}

func TestHealthHandlerHealthyUntilClosed(t *testing.T) {
	s, mr := newTestServer()

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	mr.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 before close, got %d", rr.Code)
	}

	s.pool.Close()

	req = httptest.NewRequest("GET", "/health", nil)
	rr = httptest.NewRecorder()
	mr.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 after close, got %d", rr.Code)
	}
}

func TestDashboardHandlerServesHTML(t *testing.T) {
	_, mr := newTestServer()

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	mr.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	ct := rr.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected text/html content type, got %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "mysqlgo") {
		t.Errorf("expected dashboard body to mention mysqlgo")
	}
}
