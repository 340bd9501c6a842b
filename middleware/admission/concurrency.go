package admission

import (
	"log/slog"
	"net/http"
	"time"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	Pool           domain.SlotPool
	Logger         *slog.Logger
}

// Concurrency limita quantas requisições estão no downstream ao mesmo tempo.
// Max <= 0 (e sem Pool) desliga o stage.
func Concurrency(opts ConcurrencyOptions) Stage {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Pool == nil && opts.Max > 0 {
		opts.Pool = infra.NewChanPool(opts.Max)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	svc := application.ConcurrencyService{
		Pool:           opts.Pool,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return StageFunc{StageName: "concurrency", Fn: func(w http.ResponseWriter, r *http.Request, next http.Handler) {
		release, waited, ok := svc.Acquire(r.Context())
		if !ok {
			if r.Context().Err() != nil {
				// cliente foi embora enquanto esperava; não há para quem responder
				return
			}
			opts.Logger.Warn("concurrency limit reached",
				slog.String("path", r.URL.Path),
				slog.Duration("waited", waited),
				slog.Int("max", opts.Pool.Cap()),
			)
			http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
			return
		}
		defer release()

		next.ServeHTTP(w, r)
	}}
}

// ConcurrencyMiddleware é Concurrency no formato func(http.Handler) http.Handler.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	return AsMiddleware(Concurrency(opts))
}
