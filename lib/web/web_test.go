package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-i2p/netpool/lib/core"
	apperrors "github.com/go-i2p/netpool/lib/errors"
	"github.com/go-i2p/netpool/lib/pool"
	"github.com/go-i2p/netpool/lib/resilience"
)

type staticSource struct {
	stats core.Stats
}

func (s *staticSource) Stats() core.Stats { return s.stats }

func newTestServer(t *testing.T, st core.Stats) *Server {
	t.Helper()
	s, err := New(Config{ListenAddr: "127.0.0.1:0", Source: &staticSource{stats: st}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestNewRequiresSource(t *testing.T) {
	if _, err := New(Config{ListenAddr: "127.0.0.1:0"}); err == nil {
		t.Error("New without a stats source should fail")
	}
}

func TestWriteJSON(t *testing.T) {
	s := &Server{}

	w := httptest.NewRecorder()
	s.writeJSON(w, http.StatusAccepted, map[string]string{"message": "hello"})

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["message"] != "hello" {
		t.Errorf("message = %q, want hello", resp["message"])
	}
}

func TestHandleAPIStats(t *testing.T) {
	s := newTestServer(t, core.Stats{
		Name:   "probe",
		Mode:   core.PoolModeFixed,
		Target: "127.0.0.1:9000",
		Uptime: 90 * time.Second,
		Pool: pool.Stats{
			MaxSize:      4,
			NumOpen:      2,
			NumIdle:      1,
			NumInUse:     1,
			AcquireCount: 7,
			ReleaseCount: 6,
		},
		Breaker: &resilience.Stats{State: resilience.StateHalfOpen, Failures: 3},
	})

	w := serve(s, http.MethodGet, "/api/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp StatsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Name != "probe" || resp.Target != "127.0.0.1:9000" {
		t.Errorf("unexpected identity: %+v", resp)
	}
	if resp.Uptime != "1m30s" {
		t.Errorf("uptime = %q, want 1m30s", resp.Uptime)
	}
	if resp.Pool.Open != 2 || resp.Pool.InUse != 1 || resp.Pool.Acquires != 7 || resp.Pool.Releases != 6 {
		t.Errorf("unexpected pool stats: %+v", resp.Pool)
	}
	if resp.Breaker == nil || resp.Breaker.State != "half-open" || resp.Breaker.Failures != 3 {
		t.Errorf("unexpected breaker info: %+v", resp.Breaker)
	}
}

func TestHandleAPIStatsWithoutBreaker(t *testing.T) {
	s := newTestServer(t, core.Stats{Mode: core.PoolModeNone})

	w := serve(s, http.MethodGet, "/api/stats")
	if strings.Contains(w.Body.String(), `"breaker"`) {
		t.Errorf("breaker should be omitted when disabled: %s", w.Body.String())
	}
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name       string
		stats      core.Stats
		wantStatus int
		wantReason string
		wantCode   apperrors.Code
	}{
		{"ready", core.Stats{}, http.StatusOK, "", ""},
		{"breaker closed", core.Stats{Breaker: &resilience.Stats{State: resilience.StateClosed}}, http.StatusOK, "", ""},
		{"client closed", core.Stats{Closed: true}, http.StatusServiceUnavailable, "client_closed", apperrors.CodeClosed},
		{"circuit open", core.Stats{Breaker: &resilience.Stats{State: resilience.StateOpen}}, http.StatusServiceUnavailable, "circuit_open", apperrors.CodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.stats)
			w := serve(s, http.MethodGet, "/readyz")
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp struct {
				Status string `json:"status"`
				Reason string `json:"reason"`
				Error  *struct {
					Code    apperrors.Code `json:"code"`
					Message string         `json:"message"`
				} `json:"error"`
			}
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", resp.Reason, tt.wantReason)
			}
			if tt.wantCode == "" {
				if resp.Error != nil {
					t.Errorf("unexpected error body: %+v", resp.Error)
				}
				return
			}
			if resp.Error == nil || resp.Error.Code != tt.wantCode || resp.Error.Message == "" {
				t.Errorf("error = %+v, want code %q", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestLivenessAndHeaders(t *testing.T) {
	s := newTestServer(t, core.Stats{})

	w := serve(s, http.MethodGet, "/healthz")
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, core.Stats{})

	w := serve(s, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "netpool_") {
		t.Error("metrics output should contain netpool metrics")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, core.Stats{})

	w := serve(s, http.MethodPost, "/api/stats")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestServerStartStop(t *testing.T) {
	s := newTestServer(t, core.Stats{Name: "live"})

	if s.Addr() != "" {
		t.Error("Addr should be empty before Start")
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(); err == nil {
		t.Error("second Start should fail")
	}

	resp, err := http.Get("http://" + s.Addr() + "/api/stats")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `"live"`) {
		t.Errorf("unexpected body: %s", body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Errorf("second Stop should be a no-op, got %v", err)
	}
}
