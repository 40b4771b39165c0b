package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/depotfs/depot/internal/model"
)

// jobResponse is the JSON shape for awaited job outcomes.
type jobResponse struct {
	Job      string `json:"job"`
	Finished bool   `json:"finished"`
	Value    any    `json:"value,omitempty"`
	Error    string `json:"error,omitempty"`
}

// handleAwaitJob blocks on a previously submitted job. The deadline comes
// from timeout_ms; absent means the process default, 0 means a bare peek.
func (s *Server) handleAwaitJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	j, ok := s.facade.LookupJob(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	timeout := s.facade.DefaultTimeout()
	if v := r.URL.Query().Get("timeout_ms"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid timeout_ms")
			return
		}
		timeout = time.Duration(ms) * time.Millisecond
	}

	o, err := j.Await(timeout)
	switch {
	case err == nil:
		resp := jobResponse{Job: name, Finished: true, Value: o.Value}
		if o.Err != nil {
			resp.Error = o.Err.Error()
		}
		s.writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, model.ErrTimedOut):
		s.writeJSON(w, http.StatusAccepted, jobResponse{Job: name, Finished: false})
	case errors.Is(err, model.ErrJobGone):
		s.writeError(w, http.StatusGone, "job was shut down")
	default:
		s.logger.Error("await job", "job", name, "error", err)
		s.writeError(w, http.StatusInternalServerError, "await failed")
	}
}

// handleShutdownJob destroys a job unconditionally.
func (s *Server) handleShutdownJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	j, ok := s.facade.LookupJob(name)
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	j.Shutdown()
	w.WriteHeader(http.StatusNoContent)
}
