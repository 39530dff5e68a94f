package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/SebastienMelki/timebuffer/internal/store"
)

// recordRequest is the body of POST /v1/timestamps. An empty body records
// the server's current time.
type recordRequest struct {
	Timestamps []string `json:"timestamps"`
}

type recordResponse struct {
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
}

type listResponse struct {
	Count      int         `json:"count"`
	Timestamps []time.Time `json:"timestamps"`
}

type healthResponse struct {
	Status        string `json:"status"`
	Store         string `json:"store"`
	Broker        string `json:"broker,omitempty"`
	QueueSize     int    `json:"queue_size"`
	QueueCapacity int    `json:"queue_capacity"`
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	timestamps, err := s.parseRecord(r)
	if err != nil {
		status := http.StatusBadRequest
		if isBodyTooLarge(err) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, r, status, codeBadRequest, err.Error())
		return
	}

	var resp recordResponse
	for _, ts := range timestamps {
		if s.deps.Buffer.Offer(ts) {
			resp.Accepted++
		} else {
			resp.Dropped++
		}
	}

	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) parseRecord(r *http.Request) ([]time.Time, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(body) == 0 {
		return []time.Time{s.now()}, nil
	}

	var req recordRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if len(req.Timestamps) == 0 {
		return []time.Time{s.now()}, nil
	}
	if s.cfg.MaxTimestamps > 0 && len(req.Timestamps) > s.cfg.MaxTimestamps {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyTimestamps, len(req.Timestamps), s.cfg.MaxTimestamps)
	}

	out := make([]time.Time, 0, len(req.Timestamps))
	for i, raw := range req.Timestamps {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: index %d", ErrInvalidTimestamp, i)
		}
		out = append(out, ts)
	}
	return out, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	timestamps, err := s.deps.Reader.FindAll(r.Context())
	if err != nil {
		s.logger.Error("failed to list timestamps",
			"error", err,
			"request_id", requestIDFrom(r.Context()),
		)
		if store.IsConnectionError(err) {
			writeError(w, r, http.StatusServiceUnavailable, codeStoreUnavailable, "store is unavailable")
			return
		}
		writeError(w, r, http.StatusInternalServerError, codeInternal, "failed to read timestamps")
		return
	}

	writeJSON(w, http.StatusOK, listResponse{
		Count:      len(timestamps),
		Timestamps: timestamps,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Store:         "available",
		QueueSize:     s.deps.Buffer.Size(),
		QueueCapacity: s.deps.Buffer.Capacity(),
	}
	status := http.StatusOK
	if !s.deps.Availability.IsAvailable() {
		resp.Status = "degraded"
		resp.Store = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if s.deps.Broker != nil {
		resp.Broker = "connected"
		if err := s.deps.Broker.HealthCheck(r.Context()); err != nil {
			s.logger.Warn("broker health check failed", "error", err)
			resp.Status = "degraded"
			resp.Broker = "disconnected"
			status = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // the client may have gone away
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: requestIDFrom(r.Context()),
	})
}

// isBodyTooLarge reports whether err came from the body size limit.
func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
