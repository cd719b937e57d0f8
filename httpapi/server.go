package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goliatone/go-ingress/core"
	"github.com/goliatone/go-ingress/inbound"
	"github.com/goliatone/go-ingress/ratelimit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const TracerName = "go-ingress"

// Router is satisfied by *inbound.Router.
type Router interface {
	Route(ctx context.Context, raw inbound.RawRequest) core.Response
}

type Server struct {
	Router         Router
	Limiter        *ratelimit.TenantLimiter
	MaxBodyBytes   int64
	DefaultTenant  string
	MetricsHandler http.Handler
	TracerProvider trace.TracerProvider
	Observer       core.Observer
	Now            func() time.Time
}

func NewServer(router Router, cfg core.HTTPConfig) *Server {
	return &Server{
		Router:       router,
		Limiter:      ratelimit.NewTenantLimiter(cfg.RateLimit),
		MaxBodyBytes: cfg.MaxBodyBytes,
	}
}

// Handler mounts the webhook, health and metrics routes.
func (s *Server) Handler() http.Handler {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.Recoverer)

	mux.Post("/webhooks", s.handleWebhook)
	mux.Post("/webhooks/{provider}", s.handleWebhook)
	mux.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	if s.MetricsHandler != nil {
		mux.Method(http.MethodGet, "/metrics", s.MetricsHandler)
	}
	return mux
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	hint := strings.TrimSpace(chi.URLParam(r, "provider"))
	ctx, span := s.tracer().Start(r.Context(), "webhook.ingest",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("ingress.provider_hint", hint),
		),
	)
	defer span.End()

	tenantID := s.tenantOf(r)
	span.SetAttributes(attribute.String("ingress.tenant", tenantID))
	if err := s.Limiter.Allow(tenantID); err != nil {
		var throttled ratelimit.ThrottledError
		if errors.As(err, &throttled) {
			w.Header().Set("Retry-After", strconv.Itoa(throttled.RetryAfterSeconds()))
		}
		span.SetAttributes(attribute.String("ingress.outcome", "throttled"))
		s.Observer.Counter(ctx, core.MetricPrefix+".http.throttled.total", 1, map[string]string{"tenant": tenantID})
		writeJSON(w, http.StatusTooManyRequests, core.Envelope{Success: false, Error: "rate limit exceeded"})
		return
	}

	body, err := s.readBody(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			span.SetAttributes(attribute.String("ingress.outcome", "too_large"))
			writeJSON(w, http.StatusRequestEntityTooLarge, core.Envelope{Success: false, Error: "request body too large"})
			return
		}
		span.RecordError(err)
		writeJSON(w, http.StatusBadRequest, core.Envelope{Success: false, Error: "unreadable request body"})
		return
	}

	raw := inbound.RawRequest{
		Method:       r.Method,
		Path:         r.URL.Path,
		Headers:      flattenHeaders(r.Header),
		Query:        flattenQuery(r),
		Body:         body,
		ProviderHint: hint,
		ReceivedAt:   s.now(),
	}
	resp := s.Router.Route(ctx, raw)

	span.SetAttributes(
		attribute.String("ingress.provider", inbound.MetadataString(resp, "provider_id")),
		attribute.String("ingress.action", inbound.MetadataString(resp, "action")),
		attribute.String("ingress.outcome", inbound.OutcomeOf(resp)),
		attribute.Int("http.response.status_code", statusOf(resp)),
	)
	if statusOf(resp) >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, inbound.OutcomeOf(resp))
	}
	WriteResponse(w, resp)
}

func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	limit := s.MaxBodyBytes
	if limit <= 0 {
		limit = core.DefaultMaxBodyBytes
	}
	return io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
}

// tenantOf mirrors the router's tenant resolution so rate limiting applies
// before the body is read.
func (s *Server) tenantOf(r *http.Request) string {
	if tenant := strings.TrimSpace(r.URL.Query().Get(inbound.TenantQueryParam)); tenant != "" {
		return tenant
	}
	if tenant := strings.TrimSpace(r.Header.Get(inbound.TenantHeader)); tenant != "" {
		return tenant
	}
	if tenant := strings.TrimSpace(s.DefaultTenant); tenant != "" {
		return tenant
	}
	return core.DefaultTenantID
}

func (s *Server) tracer() trace.Tracer {
	if s.TracerProvider != nil {
		return s.TracerProvider.Tracer(TracerName)
	}
	return otel.Tracer(TracerName)
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func flattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for key, values := range header {
		out[strings.ToLower(key)] = strings.Join(values, ", ")
	}
	return out
}

func flattenQuery(r *http.Request) map[string]string {
	values := r.URL.Query()
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for key := range values {
		out[key] = values.Get(key)
	}
	return out
}
