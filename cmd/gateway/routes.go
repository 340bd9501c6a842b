package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"admission-gateway/middleware/admission"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type routerConfig struct {
	Pipeline   *admission.Pipeline
	PredictURL string
	ChatURL    string
	Tracing    bool
	Logger     *slog.Logger
}

// newRouter monta as rotas. /healthz fica fora do pipeline (probes não consomem quota);
// o resto passa pela admissão e é despachado para os upstreams de inferência/LLM.
func newRouter(rc routerConfig) (http.Handler, error) {
	if rc.Logger == nil {
		rc.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if rc.Tracing {
		r.Use(func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, "admission-gateway")
		})
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	var routeErr error
	r.Group(func(r chi.Router) {
		if rc.Pipeline != nil {
			r.Use(rc.Pipeline.Middlewares()...)
		}

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"message": "Hello World!"})
		})

		for prefix, raw := range map[string]string{"/predict": rc.PredictURL, "/chat": rc.ChatURL} {
			if raw == "" {
				continue
			}
			proxy, err := newProxy(raw, rc.Logger)
			if err != nil {
				routeErr = errors.Join(routeErr, fmt.Errorf("upstream for %s: %w", prefix, err))
				continue
			}
			r.Handle(prefix, proxy)
			r.Handle(prefix+"/*", proxy)
		}
	})
	if routeErr != nil {
		return nil, routeErr
	}
	return r, nil
}

func newProxy(raw string, logger *slog.Logger) (http.Handler, error) {
	target, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q", raw)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		admission.SetError(r.Context(), err)
		if r.Context().Err() != nil {
			// cliente foi embora ou estourou o timeout; o registro sai como cancelled
			return
		}
		logger.Warn("proxy error",
			slog.String("upstream", target.Host),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusBadGateway, map[string]string{"detail": "Bad gateway"})
	}
	return proxy, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
