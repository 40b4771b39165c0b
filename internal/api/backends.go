package api

import (
	"net/http"

	"github.com/depotfs/depot/internal/backend"
	"github.com/depotfs/depot/internal/pool"
)

// backendStatus pairs a configured backend with its pool's admission state.
type backendStatus struct {
	backend.Info
	Pool pool.Stats `json:"pool"`
}

func (s *Server) handleListBackends(w http.ResponseWriter, _ *http.Request) {
	stats := s.facade.PoolStats()
	infos := s.backends.List()
	out := make([]backendStatus, 0, len(infos))
	for _, info := range infos {
		out = append(out, backendStatus{Info: info, Pool: stats[info.Tag]})
	}
	s.writeJSON(w, http.StatusOK, out)
}
