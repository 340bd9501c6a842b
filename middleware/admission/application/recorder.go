package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// Recorder mede a duração da chamada downstream e entrega um RequestLogEntry ao Sink.
//
// É só observador: não lê nem altera o payload da resposta.
type Recorder struct {
	sink  domain.Sink
	clock domain.Clock
}

func NewRecorder(sink domain.Sink, clock domain.Clock) *Recorder {
	if clock == nil {
		clock = systemClock{}
	}
	return &Recorder{sink: sink, clock: clock}
}

// Call é a chamada downstream medida pelo Recorder. Retorna o status observado
// (0 se desconhecido) e o erro da chamada.
type Call func(ctx context.Context) (status int, err error)

// Measure executa call e emite exatamente um registro, inclusive quando call
// retorna erro, é cancelada ou entra em panic (o panic segue adiante depois do registro).
// O erro de call é devolvido sem alteração.
func (r *Recorder) Measure(ctx context.Context, info domain.RequestInfo, call Call) (err error) {
	start := r.clock.Now()
	var status int
	returned := false

	defer func() {
		entry := domain.RequestLogEntry{
			RequestID: info.RequestID,
			Key:       info.Key,
			Method:    info.Method,
			Path:      info.Path,
			Status:    status,
			At:        start,
		}

		if returned {
			entry.Outcome = Classify(ctx, status, err)
			if err != nil {
				entry.Err = err.Error()
			}
			r.emit(entry, start)
			return
		}

		// panic ou runtime.Goexit dentro de call
		rec := recover()
		entry.Outcome = domain.OutcomeError
		if rec != nil {
			entry.Err = fmt.Sprintf("panic: %v", rec)
		} else {
			entry.Err = "downstream exited without returning"
		}
		r.emit(entry, start)
		if rec != nil {
			panic(rec)
		}
	}()

	status, err = call(ctx)
	returned = true
	return err
}

func (r *Recorder) emit(entry domain.RequestLogEntry, start time.Time) {
	entry.Duration = r.clock.Now().Sub(start)
	if entry.Duration < 0 {
		entry.Duration = 0
	}
	if r.sink != nil {
		r.sink.Accept(entry)
	}
}

// Classify traduz o fim da chamada em Outcome. status 0 significa que nada
// foi escrito na resposta.
//
// Com o contexto encerrado, um erro da chamada vira "cancelled" (ela
// provavelmente falhou por causa disso). Sem erro, só vira "cancelled" se a
// resposta não foi escrita: um handler que termina a resposta depois do
// prazo conta como sucesso.
func Classify(ctx context.Context, status int, err error) domain.Outcome {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return domain.OutcomeCancelled
	case err != nil && ctx.Err() != nil:
		return domain.OutcomeCancelled
	case err != nil:
		return domain.OutcomeError
	case ctx.Err() != nil && status == 0:
		return domain.OutcomeCancelled
	default:
		return domain.OutcomeSuccess
	}
}
