package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/sheetload/internal/core"
	"github.com/JonMunkholm/sheetload/internal/trigger"
)

// handleTrigger runs the pipeline for one posted notification.
// An empty body is a no-op.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	ctx := requestContext(r)

	n, err := trigger.DecodeNotification(http.MaxBytesReader(w, r.Body, maxNotificationBytes))
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	report := s.deps.Handler.Handle(ctx, n)
	status := triggerStatus(report)
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, r, status, report)
}

// handleSweep runs one inbox sweep synchronously.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sweeper == nil {
		respondError(w, r, errors.New("sweep is not configured"), http.StatusNotFound)
		return
	}
	sum, err := s.deps.Sweeper.Sweep(requestContext(r))
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, sum)
}

type healthResponse struct {
	Status   string              `json:"status"`
	Profiles int                 `json:"profiles"`
	Limiter  *core.LimiterStatus `json:"limiter,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Profiles: len(s.deps.Registry.All())}
	if s.deps.Limiter != nil {
		st := s.deps.Limiter.Status()
		resp.Limiter = &st
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.deps.Registry.All())
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Registry.Get(chi.URLParam(r, "name"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrProfileNotFound) {
			status = http.StatusNotFound
		}
		respondError(w, r, err, status)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runs == nil {
		respondError(w, r, errors.New("run log is not enabled"), http.StatusNotFound)
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	runs, err := s.deps.Runs.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, http.StatusOK, runs)
}

// parseLimit reads ?limit=; absent means the run log default.
func parseLimit(r *http.Request) (int, error) {
	val := r.URL.Query().Get("limit")
	if val == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid limit %q", val)
	}
	return n, nil
}
