package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/processor"
	"github.com/dmitrymomot/billingkit/pkg/provider"
)

// defaultMaxBodySize bounds webhook payloads. Provider events are small;
// anything past 1 MiB is noise or abuse.
const defaultMaxBodySize = 1 << 20

// signatureHeaders maps provider route names to the header carrying the
// webhook signature. Extend via WithSignatureHeader.
var defaultSignatureHeaders = map[string]string{
	"paddle": "Paddle-Signature",
}

// Option configures the router.
type Option func(*router)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(rt *router) {
		if log != nil {
			rt.log = log
		}
	}
}

// WithReadyChecks adds readiness probes served on GET /readyz, e.g.
// pg.Healthcheck and redis.Healthcheck closures.
func WithReadyChecks(checks ...func(context.Context) error) Option {
	return func(rt *router) {
		rt.readyChecks = append(rt.readyChecks, checks...)
	}
}

// WithSignatureHeader overrides the signature header for a provider route.
func WithSignatureHeader(providerName, header string) Option {
	return func(rt *router) {
		rt.sigHeaders[providerName] = header
	}
}

// WithMaxBodySize bounds the accepted payload size in bytes.
func WithMaxBodySize(n int64) Option {
	return func(rt *router) {
		if n > 0 {
			rt.maxBodySize = n
		}
	}
}

type router struct {
	proc        *processor.Processor
	log         *slog.Logger
	readyChecks []func(context.Context) error
	sigHeaders  map[string]string
	maxBodySize int64
}

// New builds the inbound HTTP surface: webhook ingestion per provider plus
// liveness and readiness probes.
//
//	POST /webhooks/{provider}  ingest one provider event
//	GET  /healthz              liveness
//	GET  /readyz               readiness (runs the registered checks)
func New(proc *processor.Processor, opts ...Option) http.Handler {
	if proc == nil {
		panic("handler: processor is required")
	}
	rt := &router{
		proc:        proc,
		log:         slog.Default(),
		sigHeaders:  make(map[string]string),
		maxBodySize: defaultMaxBodySize,
	}
	for name, header := range defaultSignatureHeaders {
		rt.sigHeaders[name] = header
	}
	for _, opt := range opts {
		opt(rt)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/webhooks/{provider}", rt.ingest)
	r.Get("/healthz", rt.healthz)
	r.Get("/readyz", rt.readyz)

	return r
}

// ingest hands the raw payload to the processor and maps the outcome onto
// HTTP. Acknowledged outcomes (accepted, duplicate, malformed) answer 2xx
// so the provider stops redelivering; only infrastructure failures answer
// 5xx and invite a retry.
func (rt *router) ingest(w http.ResponseWriter, r *http.Request) {
	providerName := chi.URLParam(r, "provider")

	body, err := io.ReadAll(io.LimitReader(r.Body, rt.maxBodySize+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable body"})
		return
	}
	if int64(len(body)) > rt.maxBodySize {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "payload too large"})
		return
	}

	signature := ""
	if header, ok := rt.sigHeaders[providerName]; ok {
		signature = r.Header.Get(header)
	}

	status, err := rt.proc.Ingest(r.Context(), providerName, body, signature)
	switch {
	case errors.Is(err, processor.ErrUnknownProvider):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown provider"})
		return
	case errors.Is(err, provider.ErrSignatureInvalid):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid signature"})
		return
	case status == processor.StatusMalformed:
		// Stored and quarantined; redelivering the same payload will not
		// parse any better.
		writeJSON(w, http.StatusOK, ingestResponse{Status: string(status)})
		return
	case err != nil:
		rt.log.ErrorContext(r.Context(), "event ingestion failed",
			logger.Provider(providerName),
			logger.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "temporarily unavailable"})
		return
	case status == processor.StatusDuplicate:
		writeJSON(w, http.StatusOK, ingestResponse{Status: string(status)})
		return
	default:
		writeJSON(w, http.StatusAccepted, ingestResponse{Status: string(status)})
	}
}

func (rt *router) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ALIVE"))
}

func (rt *router) readyz(w http.ResponseWriter, r *http.Request) {
	for _, check := range rt.readyChecks {
		if err := check(r.Context()); err != nil {
			rt.log.ErrorContext(r.Context(), "readiness check failed", logger.Error(err))
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("NOT_READY"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

type ingestResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
