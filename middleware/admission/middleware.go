package admission

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "admission-gateway/middleware/admission"

type KeyFunc func(r *http.Request) string

type Options struct {
	// Service decide allow/deny. nil desliga a admissão (tudo passa, mas é medido).
	Service *application.AdmissionService
	// Recorder mede o downstream. nil usa um Recorder com SlogSink no Logger.
	Recorder *application.Recorder
	// Stats recebe todas as decisões, inclusive rejeições (best-effort).
	Stats domain.StatsStore

	KeyFn               KeyFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	AddRateLimitHeaders bool

	Logger *slog.Logger
}

// DefaultKeyFunc extrai a chave do cliente: header configurado, depois o primeiro
// IP do X-Forwarded-For (só se confiável), depois o host de RemoteAddr.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// primeiro IP do X-Forwarded-For = cliente original
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

type admissionStage struct {
	opts   Options
	tracer trace.Tracer
}

// Admission é o stage de admissão + registro de latência.
func Admission(opts Options) Stage {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.Recorder == nil {
		opts.Recorder = application.NewRecorder(infra.NewSlogSink(opts.Logger), nil)
	}
	return &admissionStage{opts: opts, tracer: otel.Tracer(tracerName)}
}

// Middleware é Admission no formato func(http.Handler) http.Handler.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	return AsMiddleware(Admission(opts))
}

func (s *admissionStage) Name() string { return "admission" }

func (s *admissionStage) Invoke(w http.ResponseWriter, r *http.Request, next http.Handler) {
	key := domain.Key(s.opts.KeyFn(r))

	dec := domain.Decision{Allowed: true}
	if s.opts.Service != nil {
		dec = s.opts.Service.Decide(r.Context(), key)
		s.recordStats(r, key, dec)
		if s.opts.AddRateLimitHeaders {
			setRateLimitHeaders(w.Header(), key, dec)
		}
	}

	if !dec.Allowed {
		writeTooManyRequests(w, dec)
		return
	}

	s.dispatch(w, r, key, next)
}

func (s *admissionStage) dispatch(w http.ResponseWriter, r *http.Request, key domain.Key, next http.Handler) {
	reqID := GetRequestID(r.Context())
	if reqID == "" {
		reqID = uuid.NewString()
	}
	info := domain.RequestInfo{RequestID: reqID, Key: key, Method: r.Method, Path: r.URL.Path}

	ctx, span := s.tracer.Start(r.Context(), "admission.dispatch",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
			attribute.String("request.id", reqID),
		),
	)
	defer span.End()

	ctx, errs := withErrorHolder(ctx)
	sw := &statusWriter{ResponseWriter: w}
	aborted := false

	err := s.opts.Recorder.Measure(ctx, info, func(ctx context.Context) (status int, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					aborted = true
					status, err = sw.Status(), errAborted
					return
				}
				span.SetStatus(codes.Error, "panic")
				panic(rec)
			}
		}()
		next.ServeHTTP(sw, r.WithContext(ctx))
		status = sw.Status()
		if !sw.Written() && ctx.Err() != nil {
			// cliente foi embora ou o prazo venceu sem resposta
			status = 0
		}
		return status, downstreamError(status, errs.get())
	})

	span.SetAttributes(attribute.Int("http.response.status_code", sw.Status()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if aborted {
		panic(http.ErrAbortHandler)
	}
}

func (s *admissionStage) recordStats(r *http.Request, key domain.Key, dec domain.Decision) {
	if s.opts.Stats == nil {
		return
	}
	at := dec.At
	if at.IsZero() {
		at = time.Now()
	}
	err := s.opts.Stats.Record(r.Context(), domain.StatsEvent{
		Key:      key,
		Allowed:  dec.Allowed,
		FailOpen: dec.FailOpen,
		Method:   r.Method,
		Path:     r.URL.Path,
		At:       at,
	})
	if err != nil {
		s.opts.Logger.Debug("admission stats record failed", slog.String("error", err.Error()))
	}
}

func setRateLimitHeaders(h http.Header, key domain.Key, dec domain.Decision) {
	h.Set("X-RateLimit-Key", string(key))
	h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
	h.Set("X-RateLimit-Remaining", formatInt(dec.Remaining()))
	h.Set("X-RateLimit-Reset", formatSeconds(dec.WindowRemaining))
}

type problem struct {
	Detail string `json:"detail"`
}

func writeTooManyRequests(w http.ResponseWriter, dec domain.Decision) {
	if dec.RetryAfter > 0 {
		w.Header().Set("Retry-After", formatSeconds(dec.RetryAfter))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(problem{Detail: "Too many requests"})
}
