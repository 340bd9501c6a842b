package application

import (
	"context"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// ConcurrencyService concentra a regra de aquisição/liberação de vagas com timeout,
// sem saber nada sobre HTTP. Protege o downstream (inferência) de rajadas que a
// janela deslizante por cliente não enxerga (muitos clientes ao mesmo tempo).
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
	Clock          domain.Clock
}

// Acquire tenta adquirir uma vaga.
//   - Se `AcquireTimeout <= 0`, espera indefinidamente (até ctx cancelar).
//   - Se `AcquireTimeout > 0`, espera até o timeout.
//
// Retorna (release, waited, ok). Se ok=false, nenhuma vaga foi adquirida.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), time.Duration, bool) {
	if s.Pool == nil {
		return func() {}, 0, true
	}
	clock := s.Clock
	if clock == nil {
		clock = systemClock{}
	}
	start := clock.Now()

	acqCtx := ctx
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	release, ok := s.Pool.Acquire(acqCtx)
	return release, clock.Now().Sub(start), ok
}
