package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"
)

// readyTimeout bounds the whole readiness probe.
const readyTimeout = 3 * time.Second

// CheckFunc reports whether a dependency is reachable.
type CheckFunc func(ctx context.Context) error

// WithCheck adds a dependency to /ready. Results also feed the
// dependency_up gauge when metrics are enabled.
func WithCheck(name string, fn CheckFunc) Option {
	return func(s *Server) {
		if s.checks == nil {
			s.checks = map[string]CheckFunc{}
		}
		s.checks[name] = fn
	}
}

type ReadyResponse struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks"`
}

// readyHandler returns 200 when every dependency answers and 503 otherwise.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := ReadyResponse{Ready: true, Checks: map[string]string{}}
	for _, name := range names {
		err := s.checks[name](ctx)
		if s.metrics != nil {
			s.metrics.SetDependencyUp(name, err == nil)
		}
		if err != nil {
			s.log.Warn("dependency not ready", zap.String("dependency", name), zap.Error(err))
			resp.Ready = false
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
