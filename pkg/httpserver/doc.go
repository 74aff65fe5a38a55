// Package httpserver runs an http.Server tied to a context and provides
// liveness and readiness handlers.
//
//	srv := httpserver.New(cfg.HTTP, router, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx) })
//
// Run returns when ctx is cancelled and the graceful shutdown has finished.
// Start failures are wrapped with ErrStart and shutdown failures with
// ErrShutdown.
package httpserver
