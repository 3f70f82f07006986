package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-i2p/netpool/lib/core"
	apperrors "github.com/go-i2p/netpool/lib/errors"
	"github.com/go-i2p/netpool/lib/resilience"
)

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Name        string       `json:"name"`
	Mode        string       `json:"mode"`
	Target      string       `json:"target"`
	Uptime      string       `json:"uptime"`
	Closed      bool         `json:"closed"`
	Pool        PoolStats    `json:"pool"`
	Breaker     *BreakerInfo `json:"breaker,omitempty"`
	GeneratedAt string       `json:"generated_at"`
}

// PoolStats mirrors pool.Stats with JSON names.
type PoolStats struct {
	MaxSize          int    `json:"max_size"`
	Open             int    `json:"open"`
	Idle             int    `json:"idle"`
	InUse            int    `json:"in_use"`
	Acquires         uint64 `json:"acquires"`
	AcquireSuccess   uint64 `json:"acquire_success"`
	AcquireFailed    uint64 `json:"acquire_failed"`
	Releases         uint64 `json:"releases"`
	HealthCheckFails uint64 `json:"health_check_fails"`
}

// BreakerInfo summarizes the connect circuit breaker.
type BreakerInfo struct {
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// handleAPIStats returns the client statistics.
func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	st := s.source.Stats()

	resp := StatsResponse{
		Name:   st.Name,
		Mode:   st.Mode,
		Target: st.Target,
		Uptime: st.Uptime.Round(time.Second).String(),
		Closed: st.Closed,
		Pool: PoolStats{
			MaxSize:          st.Pool.MaxSize,
			Open:             st.Pool.NumOpen,
			Idle:             st.Pool.NumIdle,
			InUse:            st.Pool.NumInUse,
			Acquires:         st.Pool.AcquireCount,
			AcquireSuccess:   st.Pool.AcquireSuccess,
			AcquireFailed:    st.Pool.AcquireFailed,
			Releases:         st.Pool.ReleaseCount,
			HealthCheckFails: st.Pool.HealthCheckFails,
		},
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if st.Breaker != nil {
		resp.Breaker = &BreakerInfo{
			State:    st.Breaker.State.String(),
			Failures: st.Breaker.Failures,
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// handleLiveness reports that the server is responding.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "alive",
	})
}

// ReadinessResponse is the body of GET /readyz.
type ReadinessResponse struct {
	Status string           `json:"status"`
	Reason string           `json:"reason,omitempty"`
	Error  *apperrors.Error `json:"error,omitempty"`
}

// handleReadiness reports whether the client can serve requests: it is
// not closed and its breaker is not open.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	st := s.source.Stats()

	var (
		reason string
		cause  error
	)
	switch {
	case st.Closed:
		reason, cause = "client_closed", core.ErrClientClosed
	case st.Breaker != nil && st.Breaker.State == resilience.StateOpen:
		reason, cause = "circuit_open", resilience.ErrCircuitOpen
	}

	if cause != nil {
		s.writeJSON(w, http.StatusServiceUnavailable, ReadinessResponse{
			Status: "not_ready",
			Reason: reason,
			Error:  apperrors.Classify(cause),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, ReadinessResponse{Status: "ready"})
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Debug("failed to encode response")
	}
}
