package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/internal/config"
	"admission-gateway/internal/logging"
	"admission-gateway/internal/telemetry"
	"admission-gateway/middleware/admission"
	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"

	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Tracing.Enabled {
		shutdown, err := telemetry.InitTracer(cfg.Tracing.ServiceName, os.Stdout, logger)
		if err != nil {
			fatal(logger, "tracing init failed", err)
		}
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			_ = shutdown(sctx)
		}()
	}

	sink, closeSink, err := buildSink(cfg, logger)
	if err != nil {
		fatal(logger, "log sink init failed", err)
	}
	defer closeSink()

	stats, closeStats, err := buildStats(cfg)
	if err != nil {
		fatal(logger, "stats init failed", err)
	}
	defer closeStats()

	var svc *application.AdmissionService
	if cfg.Rate.Enabled {
		store, err := infra.NewWindowStore(cfg.Rate.Limit, cfg.Rate.Window,
			infra.WithShards(cfg.Rate.Shards),
			infra.WithMaxKeys(cfg.Rate.MaxKeys),
			infra.WithSweepEvery(cfg.Rate.SweepEvery),
		)
		if err != nil {
			fatal(logger, "window store init failed", err)
		}
		store.StartJanitor(ctx, infra.SystemClock{})

		svc, err = application.NewAdmissionService(store, application.WithLogger(logger))
		if err != nil {
			fatal(logger, "admission init failed", err)
		}
	}

	pipeline := admission.NewPipeline(
		admission.RequestID(),
		admission.Timeout(cfg.RequestTimeout),
		admission.Admission(admission.Options{
			Service:             svc,
			Recorder:            application.NewRecorder(sink, infra.SystemClock{}),
			Stats:               stats,
			KeyHeader:           cfg.Rate.KeyHeader,
			TrustXForwardedFor:  cfg.Rate.TrustXFF,
			AddRateLimitHeaders: cfg.Rate.Headers,
			Logger:              logger,
		}),
		admission.Concurrency(admission.ConcurrencyOptions{
			Max:            cfg.Concurrency.Max,
			AcquireTimeout: cfg.Concurrency.Timeout,
			Logger:         logger,
		}),
	)

	h, err := newRouter(routerConfig{
		Pipeline:   pipeline,
		PredictURL: cfg.Upstream.PredictURL,
		ChatURL:    cfg.Upstream.ChatURL,
		Tracing:    cfg.Tracing.Enabled,
		Logger:     logger,
	})
	if err != nil {
		fatal(logger, "router init failed", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	// main só retorna (e roda os closers adiados) depois do Shutdown drenar
	// as requisições em andamento.
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown incomplete", slog.String("error", err.Error()))
		}
	}()

	logger.Info("gateway listening",
		slog.String("addr", cfg.ListenAddr),
		slog.String("predict_upstream", cfg.Upstream.PredictURL),
		slog.String("chat_upstream", cfg.Upstream.ChatURL),
		slog.Any("stages", pipeline.Names()),
	)
	logger.Info("admission",
		slog.Bool("enabled", cfg.Rate.Enabled),
		slog.Int("limit", cfg.Rate.Limit),
		slog.Duration("window", cfg.Rate.Window),
		slog.String("key_header", cfg.Rate.KeyHeader),
		slog.Bool("trust_xff", cfg.Rate.TrustXFF),
		slog.Int("concurrency_max", cfg.Concurrency.Max),
	)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal(logger, "server error", err)
	}
	<-shutdownDone
	logger.Info("gateway stopped")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}

// buildSink monta o destino dos registros de requisição: sempre o logger,
// mais arquivo rotativo e Redis Stream quando configurados.
func buildSink(cfg config.Config, logger *slog.Logger) (domain.Sink, func(), error) {
	sinks := infra.MultiSink{infra.NewSlogSink(logger)}
	var closers []func()

	if cfg.Log.File.Path != "" {
		fs := infra.NewFileSink(infra.FileSinkOptions{
			Path:       cfg.Log.File.Path,
			MaxSizeMB:  cfg.Log.File.MaxSizeMB,
			MaxAgeDays: cfg.Log.File.MaxAgeDays,
		})
		sinks = append(sinks, fs)
		closers = append(closers, func() { _ = fs.Close() })
	}

	if cfg.Sink.Redis.Addr != "" {
		rdb, err := dialRedis(cfg.Sink.Redis.RedisConfig)
		if err != nil {
			return nil, nil, err
		}
		rs := infra.NewRedisSink(rdb,
			infra.WithSinkStream(cfg.Sink.Redis.Stream),
			infra.WithSinkMaxLen(cfg.Sink.Redis.MaxLen),
			infra.WithSinkLogger(logger),
		)
		sinks = append(sinks, rs)
		// o sink drena antes de o cliente fechar
		closers = append(closers, func() { _ = rs.Close(); _ = rdb.Close() })
	}

	return sinks, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nil
}

func buildStats(cfg config.Config) (domain.StatsStore, func(), error) {
	if !cfg.Stats.Enabled {
		return nil, func() {}, nil
	}
	rdb, err := dialRedis(cfg.Stats.Redis)
	if err != nil {
		return nil, nil, err
	}
	store := infra.NewRedisStatsStore(rdb,
		infra.WithStatsPrefix(cfg.Stats.Prefix),
		infra.WithStatsTTL(cfg.Stats.TTL),
		infra.WithStatsBucket(cfg.Stats.Bucket),
		infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
	)
	return store, func() { _ = rdb.Close() }, nil
}

func dialRedis(c config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", c.Addr, err)
	}
	return rdb, nil
}
