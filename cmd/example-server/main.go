package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/middleware/admission"
	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/infra"

	"github.com/go-chi/chi/v5"
)

func main() {
	// Exemplo: stages de admissão direto no seu webserver (sem proxy), 5 req / 10s por IP
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	store, err := infra.NewWindowStore(5, 10*time.Second, infra.WithSweepEvery(30*time.Second))
	if err != nil {
		log.Fatalf("store error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	store.StartJanitor(ctx, infra.SystemClock{})

	svc, err := application.NewAdmissionService(store, application.WithLogger(logger))
	if err != nil {
		log.Fatalf("admission error: %v", err)
	}

	r := chi.NewRouter()
	r.Use(admission.NewPipeline(
		admission.RequestID(),
		admission.Admission(admission.Options{
			Service:             svc,
			Recorder:            application.NewRecorder(infra.NewSlogSink(logger), nil),
			KeyHeader:           "X-Api-Key", // ou vazio para usar IP
			TrustXForwardedFor:  true,
			AddRateLimitHeaders: true,
			Logger:              logger,
		}),
		admission.Concurrency(admission.ConcurrencyOptions{Max: 50}),
	).Middlewares()...)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	// main só retorna (e roda os closers adiados) depois do Shutdown drenar
	// as requisições em andamento.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown incomplete", slog.String("error", err.Error()))
		}
	}()

	logger.Info("example server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
	<-shutdownDone
}
