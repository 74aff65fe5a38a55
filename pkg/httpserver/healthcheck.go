package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/reviewhub/pkg/logger"
)

// Check is a named dependency probe, e.g. mongo.Probe(client, time.Second).
type Check struct {
	Name string
	Fn   func(context.Context) error
}

// Liveness answers 200 while the process can serve requests.
func Liveness() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ALIVE"))
	}
}

type readinessReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Readiness runs every check concurrently within timeout. It answers 200 when
// all pass and 503 with the failing names otherwise.
func Readiness(log *slog.Logger, timeout time.Duration, checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		report := readinessReport{Status: "ready", Checks: make(map[string]string, len(checks))}
		var mu sync.Mutex

		var g errgroup.Group
		for _, c := range checks {
			g.Go(func() error {
				err := c.Fn(ctx)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					report.Checks[c.Name] = "failed"
					log.ErrorContext(ctx, "readiness check failed", slog.String("check", c.Name), logger.Error(err))
					return err
				}
				report.Checks[c.Name] = "ok"
				return nil
			})
		}

		status := http.StatusOK
		if err := g.Wait(); err != nil {
			report.Status = "not_ready"
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	}
}
