package admission

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type requestIDKey struct{}

const RequestIDHeader = "X-Request-ID"

// RequestID atribui um ID a cada requisição (reaproveita X-Request-ID válido do cliente),
// guarda no contexto e devolve no header de resposta.
func RequestID() Stage {
	return StageFunc{StageName: "request-id", Fn: func(w http.ResponseWriter, r *http.Request, next http.Handler) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	}}
}

// GetRequestID retorna o ID da requisição ou "" se o stage RequestID não rodou.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
