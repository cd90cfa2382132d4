package httpserver

import (
	"log/slog"
	"net/http"
	"time"
)

// Option configures the server. Options validate eagerly and panic on invalid
// input, so a miswired server fails at construction, not mid-traffic.
type Option func(*config)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	if addr == "" {
		panic("httpserver: WithAddr requires a non-empty address")
	}
	return func(c *config) { c.addr = addr }
}

// timeoutOption validates a duration and assigns it through set.
func timeoutOption(name string, d time.Duration, set func(*config, time.Duration)) Option {
	if d <= 0 {
		panic("httpserver: " + name + " requires a positive duration")
	}
	return func(c *config) { set(c, d) }
}

// WithReadTimeout bounds how long a client may take to send a request.
// Webhook payloads are small; a tight read timeout sheds slow-loris clients.
func WithReadTimeout(d time.Duration) Option {
	return timeoutOption("WithReadTimeout", d, func(c *config, v time.Duration) { c.readTimeout = v })
}

// WithWriteTimeout bounds how long a response write may take.
func WithWriteTimeout(d time.Duration) Option {
	return timeoutOption("WithWriteTimeout", d, func(c *config, v time.Duration) { c.writeTimeout = v })
}

// WithIdleTimeout bounds how long a keep-alive connection may sit idle
// between requests.
func WithIdleTimeout(d time.Duration) Option {
	return timeoutOption("WithIdleTimeout", d, func(c *config, v time.Duration) { c.idleTimeout = v })
}

// WithShutdownTimeout bounds the graceful-shutdown drain. Requests still in
// flight past the deadline are cut off; the provider redelivers them.
func WithShutdownTimeout(d time.Duration) Option {
	return timeoutOption("WithShutdownTimeout", d, func(c *config, v time.Duration) { c.shutdownTimeout = v })
}

// WithServer substitutes a caller-built http.Server. Its Handler and timeout
// fields may be overwritten; non-zero values the caller set win over the
// package defaults.
func WithServer(srv *http.Server) Option {
	if srv == nil {
		panic("httpserver: WithServer requires a non-nil server")
	}
	return func(c *config) { c.server = srv }
}

// WithLogger supplies the logger for lifecycle events. Nil discards them.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithStartHook registers a callback invoked once the listener is accepting.
func WithStartHook(h func(*slog.Logger)) Option {
	if h == nil {
		panic("httpserver: WithStartHook requires a non-nil hook")
	}
	return func(c *config) { c.startHooks = append(c.startHooks, h) }
}

// WithStopHook registers a callback invoked after shutdown completes.
func WithStopHook(h func(*slog.Logger)) Option {
	if h == nil {
		panic("httpserver: WithStopHook requires a non-nil hook")
	}
	return func(c *config) { c.stopHooks = append(c.stopHooks, h) }
}
