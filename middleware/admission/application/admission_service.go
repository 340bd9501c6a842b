package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"admission-gateway/middleware/admission/domain"

	"golang.org/x/time/rate"
)

// AdmissionService concentra a regra de admissão.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Limit e Window vêm do store e não mudam depois da construção.
type AdmissionService struct {
	store  domain.WindowStore
	clock  domain.Clock
	logger *slog.Logger

	limit  int
	window time.Duration

	warnEvery *rate.Sometimes
	failOpens atomic.Int64
}

type AdmissionOption func(*AdmissionService)

func WithClock(c domain.Clock) AdmissionOption {
	return func(s *AdmissionService) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithLogger(l *slog.Logger) AdmissionOption {
	return func(s *AdmissionService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithWarnInterval define o intervalo mínimo entre avisos de fail-open.
func WithWarnInterval(d time.Duration) AdmissionOption {
	return func(s *AdmissionService) {
		s.warnEvery = &rate.Sometimes{First: 1, Interval: d}
	}
}

func NewAdmissionService(store domain.WindowStore, opts ...AdmissionOption) (*AdmissionService, error) {
	if store == nil {
		return nil, errors.New("admission: nil window store")
	}
	if store.Limit() <= 0 {
		return nil, domain.ErrInvalidLimit
	}
	if store.Window() <= 0 {
		return nil, domain.ErrInvalidWindow
	}

	s := &AdmissionService{
		store:     store,
		clock:     systemClock{},
		logger:    slog.Default(),
		limit:     store.Limit(),
		window:    store.Window(),
		warnEvery: &rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *AdmissionService) Limit() int            { return s.limit }
func (s *AdmissionService) Window() time.Duration { return s.window }

// FailOpens retorna quantas decisões foram liberadas por falha do store.
func (s *AdmissionService) FailOpens() int64 { return s.failOpens.Load() }

// Decide consulta o store com o relógio atual e devolve a decisão para key.
func (s *AdmissionService) Decide(ctx context.Context, key domain.Key) (dec domain.Decision) {
	now := s.clock.Now()

	defer func() {
		if r := recover(); r != nil {
			dec = s.failOpen(ctx, key, now, fmt.Errorf("window store panic: %v", r))
		}
	}()

	usage, err := s.store.CheckAndRecord(key, now)
	if err != nil {
		return s.failOpen(ctx, key, now, err)
	}

	remaining := s.window
	if !usage.Oldest.IsZero() {
		remaining = usage.Oldest.Add(s.window).Sub(now)
		if remaining < 0 {
			remaining = 0
		}
	}

	dec = domain.Decision{
		Allowed:         usage.Allowed,
		Count:           usage.Count,
		Limit:           s.limit,
		WindowRemaining: remaining,
		At:              now,
	}
	if !usage.Allowed {
		dec.RetryAfter = ceilSecond(remaining)
	}
	return dec
}

func (s *AdmissionService) failOpen(ctx context.Context, key domain.Key, now time.Time, err error) domain.Decision {
	n := s.failOpens.Add(1)
	s.warnEvery.Do(func() {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "admission store failed, allowing request",
			slog.String("client", string(key)),
			slog.String("error", err.Error()),
			slog.Int64("fail_opens", n),
		)
	})
	return domain.Decision{Allowed: true, Limit: s.limit, WindowRemaining: s.window, At: now, FailOpen: true}
}

// ceilSecond arredonda para cima em segundos inteiros (mínimo 1s), formato de Retry-After.
func ceilSecond(d time.Duration) time.Duration {
	if d <= time.Second {
		return time.Second
	}
	if r := d % time.Second; r != 0 {
		d += time.Second - r
	}
	return d
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
