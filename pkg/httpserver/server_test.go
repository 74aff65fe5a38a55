package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/reviewhub/pkg/httpserver"
)

func testConfig() httpserver.Config {
	return httpserver.Config{
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
	}
}

func TestRunAndShutdown(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := httpserver.New(testConfig(), http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), httpserver.WithListener(ln))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	resp, err := http.Get("http://" + ln.Addr().String())
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.Fail(t, "run did not return after cancel")
	}
}

func TestRunStartFailure(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig()
	cfg.Addr = ln.Addr().String()
	srv := httpserver.New(cfg, http.NotFoundHandler())

	err = srv.Run(context.Background())
	assert.ErrorIs(t, err, httpserver.ErrStart)
}

func TestNewPanicsWithoutHandler(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() { httpserver.New(testConfig(), nil) })
}

func TestLiveness(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	httpserver.Liveness()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ALIVE", rec.Body.String())
}

func TestReadiness(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	ok := httpserver.Check{Name: "mongo", Fn: func(context.Context) error { return nil }}
	down := httpserver.Check{Name: "redis", Fn: func(context.Context) error { return errors.New("connection refused") }}
	slow := httpserver.Check{Name: "postgres", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}

	tests := []struct {
		name   string
		checks []httpserver.Check
		status int
		report map[string]string
	}{
		{"all pass", []httpserver.Check{ok}, http.StatusOK, map[string]string{"mongo": "ok"}},
		{"one fails", []httpserver.Check{ok, down}, http.StatusServiceUnavailable, map[string]string{"mongo": "ok", "redis": "failed"}},
		{"timeout", []httpserver.Check{slow}, http.StatusServiceUnavailable, map[string]string{"postgres": "failed"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			httpserver.Readiness(log, 50*time.Millisecond, tt.checks...)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.status, rec.Code)
			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.report, body.Checks)
		})
	}
}
