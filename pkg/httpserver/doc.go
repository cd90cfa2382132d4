// Package httpserver runs the inbound ingestion surface: a net/http wrapper
// with graceful shutdown, env-driven timeouts, lifecycle hooks, and probe
// handlers. Shutdown waits for in-flight webhook deliveries so provider
// retries stay the only redelivery path.
//
//	srv := httpserver.NewFromConfig(cfg,
//	    httpserver.WithLogger(log),
//	    httpserver.WithStartHook(func(l *slog.Logger) { l.Info("listening") }),
//	)
//	if err := srv.Run(ctx, mux); err != nil {
//	    return err
//	}
//
// Run blocks until the context is cancelled or SIGINT/SIGTERM arrives, then
// drains with http.Server.Shutdown under the configured deadline.
package httpserver
