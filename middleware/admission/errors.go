package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// errAborted representa um panic(http.ErrAbortHandler): o handler abandonou a resposta.
var errAborted = fmt.Errorf("%w: handler aborted", context.Canceled)

// StatusError é a falha downstream deduzida de uma resposta 5xx.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string { return fmt.Sprintf("downstream responded %d", e.Status) }

type errorHolderKey struct{}

type errorHolder struct {
	mu  sync.Mutex
	err error
}

// SetError registra a falha do handler para o registro da requisição.
// Handlers em net/http não retornam erro; sem SetError, só 5xx e panic contam como erro.
// No-op se o AdmissionStage não estiver no pipeline.
func SetError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	if h, ok := ctx.Value(errorHolderKey{}).(*errorHolder); ok {
		h.mu.Lock()
		h.err = errors.Join(h.err, err)
		h.mu.Unlock()
	}
}

func withErrorHolder(ctx context.Context) (context.Context, *errorHolder) {
	h := &errorHolder{}
	return context.WithValue(ctx, errorHolderKey{}, h), h
}

func (h *errorHolder) get() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func downstreamError(status int, err error) error {
	if err != nil {
		return err
	}
	if status >= 500 {
		return &StatusError{Status: status}
	}
	return nil
}
