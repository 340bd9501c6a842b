package infra

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/redis/go-redis/v9"
)

// RedisSink publica os registros num Redis Stream (XADD), para um coletor remoto.
//
// Accept não faz I/O: o registro entra num buffer e uma goroutine faz o XADD.
// Com o buffer cheio, ou depois de Close, o registro é descartado e contado em Dropped.
type RedisSink struct {
	rdb     redis.UniversalClient
	stream  string
	maxLen  int64
	timeout time.Duration
	logger  *slog.Logger

	queue   chan domain.RequestLogEntry
	dropped atomic.Int64

	// mu protege o envio em queue contra o close.
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

type RedisSinkOption func(*RedisSink)

func WithSinkStream(name string) RedisSinkOption {
	return func(s *RedisSink) {
		if name != "" {
			s.stream = name
		}
	}
}

// WithSinkMaxLen limita o tamanho do stream (MAXLEN ~). 0 = sem limite.
func WithSinkMaxLen(n int64) RedisSinkOption {
	return func(s *RedisSink) { s.maxLen = n }
}

func WithSinkBuffer(n int) RedisSinkOption {
	return func(s *RedisSink) {
		if n > 0 {
			s.queue = make(chan domain.RequestLogEntry, n)
		}
	}
}

func WithSinkLogger(l *slog.Logger) RedisSinkOption {
	return func(s *RedisSink) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewRedisSink(rdb redis.UniversalClient, opts ...RedisSinkOption) *RedisSink {
	s := &RedisSink{
		rdb:     rdb,
		stream:  "admission:requests",
		maxLen:  100_000,
		timeout: 2 * time.Second,
		logger:  slog.Default(),
		queue:   make(chan domain.RequestLogEntry, 1024),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

func (s *RedisSink) Accept(e domain.RequestLogEntry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.queue <- e:
	default:
		s.dropped.Add(1)
	}
}

func (s *RedisSink) Dropped() int64 { return s.dropped.Load() }

// Close para de aceitar registros e espera o buffer ser drenado.
// Pode ser chamado mais de uma vez.
func (s *RedisSink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
	return nil
}

func (s *RedisSink) run() {
	defer close(s.done)
	for e := range s.queue {
		if err := s.publish(e); err != nil {
			s.logger.Warn("redis sink publish failed",
				slog.String("stream", s.stream),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *RedisSink) publish(e domain.RequestLogEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: streamValues(e),
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return s.rdb.XAdd(ctx, args).Err()
}

func streamValues(e domain.RequestLogEntry) map[string]any {
	v := map[string]any{
		"request_id":       e.RequestID,
		"client":           string(e.Key),
		"method":           e.Method,
		"path":             e.Path,
		"status":           strconv.Itoa(e.Status),
		"outcome":          string(e.Outcome),
		"duration_seconds": strconv.FormatFloat(e.DurationSeconds(), 'f', -1, 64),
		"at":               e.At.UTC().Format(time.RFC3339Nano),
	}
	if e.Err != "" {
		v["error"] = e.Err
	}
	return v
}
