package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/render"

	"github.com/rafaeljc/decider/internal/decider"
	"github.com/rafaeljc/decider/internal/featureconfig"
)

// liveness responds with 200 OK if the HTTP server is running.
func (s *Server) liveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// readiness runs every checker in parallel and answers 200 only if all pass.
func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	statusMap := make(map[string]string, len(s.checkers))
	hasError := false

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, checker := range s.checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()

			err := c.Check(ctx)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				// WARN, not ERROR: the orchestrator retries.
				s.logger.Warn("health probe failed",
					slog.String("component", c.Name()),
					slog.String("error", err.Error()),
				)
				statusMap[c.Name()] = fmt.Sprintf("down: %v", err)
				hasError = true
			} else {
				statusMap[c.Name()] = "up"
			}
		}(checker)
	}

	wg.Wait()

	status := http.StatusOK
	if hasError {
		status = http.StatusServiceUnavailable
	}
	render.Status(r, status)
	render.JSON(w, r, map[string]any{"status": statusMap})
}

// featureInventory is the body served on FeaturesPath.
type featureInventory struct {
	Features []string               `json:"features"`
	Failures featureconfig.Failures `json:"failures"`
	Version  string                 `json:"pkg_version"`
}

// features lists what the Decider in service loaded and what it rejected.
func (s *Server) features(w http.ResponseWriter, r *http.Request) {
	d := s.current()
	if d == nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"error": "no feature document loaded"})
		return
	}

	inv := featureInventory{
		Features: d.Features(),
		Failures: featureconfig.Failures{},
		Version:  decider.Version,
	}
	if pe := d.LoadErrors(); pe != nil {
		inv.Failures = pe.Failures
	}
	render.JSON(w, r, inv)
}
