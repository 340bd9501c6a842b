package admission

import (
	"context"
	"net/http"
	"time"
)

// Timeout limita o tempo da requisição via contexto.
// Não interrompe o handler à força: depende do handler (ou do proxy) observar ctx.Done().
// Quando o prazo estoura sem resposta escrita, o registro sai como "cancelled".
func Timeout(d time.Duration) Stage {
	return StageFunc{StageName: "timeout", Fn: func(w http.ResponseWriter, r *http.Request, next http.Handler) {
		if d <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), d)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	}}
}
