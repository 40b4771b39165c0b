package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/depotfs/depot/internal/backend"
	"github.com/depotfs/depot/internal/job"
	"github.com/depotfs/depot/internal/model"
)

// maxStoreBody caps how much file data a single store request may carry.
const maxStoreBody = 256 << 20 // 256 MB

// parseOptions reads the recognized option set from query parameters.
func parseOptions(r *http.Request) model.Options {
	q := r.URL.Query()
	opts := model.Options{
		Key:       q.Get("key"),
		Overwrite: q.Get("overwrite"),
		Scope:     q.Get("scope"),
	}
	if v := q.Get("hashes"); v != "" {
		opts.Hashes = strings.Split(v, ",")
	}
	if v := q.Get("timeout_ms"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			opts.Timeout = time.Duration(ms) * time.Millisecond
		}
	}
	return opts
}

func (s *Server) backendConfig(r *http.Request) model.BackendConfig {
	return model.BackendConfig{Tag: chi.URLParam(r, "backend")}
}

func (s *Server) handleStore(w http.ResponseWriter, r *http.Request) {
	cfg := s.backendConfig(r)
	opts := parseOptions(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxStoreBody)
	src, cleanup, err := spoolBody(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read request body failed")
		return
	}

	if r.URL.Query().Get("async") == "1" {
		j, err := s.facade.StoreAsync(cfg, src, opts)
		if err != nil {
			cleanup()
			s.submitError(w, err)
			return
		}
		s.cleanupWhenDone(j, cleanup)
		s.writeJSON(w, http.StatusAccepted, map[string]string{"job": j.Name()})
		return
	}

	defer cleanup()
	info, err := s.facade.Store(cfg, src, opts)
	if err != nil {
		s.operationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, info)
}

// spoolBody streams the request body to a temp file so an upload never sits
// in memory; the worker streams it back out of the file.
func spoolBody(r *http.Request) (model.Source, func(), error) {
	f, err := os.CreateTemp("", "depot-upload-*")
	if err != nil {
		return model.Source{}, nil, err
	}
	cleanup := func() { os.Remove(f.Name()) }
	if _, err := io.Copy(f, r.Body); err != nil {
		f.Close()
		cleanup()
		return model.Source{}, nil, err
	}
	if err := f.Close(); err != nil {
		cleanup()
		return model.Source{}, nil, err
	}
	// Without a filename a derived key falls back to a generated id, never
	// the spool file's name.
	name := r.URL.Query().Get("filename")
	if name == "" {
		name = model.NewID()
	}
	return model.Source{Path: f.Name(), Name: name}, cleanup, nil
}

// cleanupWhenDone removes the spooled upload once the job delivers any
// outcome, completion or abandonment alike.
func (s *Server) cleanupWhenDone(j *job.Job, cleanup func()) {
	ch := make(chan job.Outcome, 1)
	if err := j.Subscribe(ch); err != nil {
		cleanup()
		return
	}
	go func() {
		<-ch
		cleanup()
	}()
}

func (s *Server) handleGetInfo(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		s.writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	info, err := s.facade.GetInfo(s.backendConfig(r), key, parseOptions(r))
	if err != nil {
		s.operationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleGetURL(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		s.writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	u, err := s.facade.GetURL(s.backendConfig(r), key, parseOptions(r))
	if err != nil {
		s.operationError(w, err)
		return
	}
	if u == "" {
		s.writeJSON(w, http.StatusOK, map[string]string{"url": "", "status": "unavailable"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"url": u})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	keys, err := s.facade.ListFiles(s.backendConfig(r), parseOptions(r))
	if err != nil {
		s.operationError(w, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"files": keys})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		s.writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	if err := s.facade.Delete(s.backendConfig(r), key, parseOptions(r)); err != nil {
		s.operationError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteMany(w http.ResponseWriter, r *http.Request) {
	cfg := s.backendConfig(r)
	opts := parseOptions(r)

	switch {
	case opts.Scope != "":
		if err := s.facade.DeleteScope(cfg, opts); err != nil {
			s.operationError(w, err)
			return
		}
	case r.URL.Query().Get("all") == "1":
		if err := s.facade.DeleteAll(cfg, opts); err != nil {
			s.operationError(w, err)
			return
		}
	default:
		s.writeError(w, http.StatusBadRequest, "scope or all=1 is required")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	if err := s.facade.TestConnection(s.backendConfig(r), parseOptions(r)); err != nil {
		s.operationError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// submitError maps facade submission failures to HTTP statuses.
func (s *Server) submitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrUnregisteredBackend):
		s.writeError(w, http.StatusNotFound, "unknown backend")
	case errors.Is(err, model.ErrNameConflict):
		s.writeError(w, http.StatusConflict, "job name already in use")
	default:
		s.logger.Error("submit request", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to submit request")
	}
}

// operationError maps synchronous operation failures to HTTP statuses.
func (s *Server) operationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrUnregisteredBackend):
		s.writeError(w, http.StatusNotFound, "unknown backend")
	case errors.Is(err, model.ErrTimedOut):
		s.writeError(w, http.StatusGatewayTimeout, "request timed out")
	case errors.Is(err, backend.ErrKeyExists):
		s.writeError(w, http.StatusConflict, "key already exists")
	case errors.Is(err, os.ErrNotExist):
		s.writeError(w, http.StatusNotFound, "file not found")
	default:
		s.logger.Error("storage operation", "error", err)
		s.writeError(w, http.StatusBadGateway, err.Error())
	}
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
