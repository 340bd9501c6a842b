// upstream-stub simula os serviços de inferência e chat para rodar o gateway localmente.
//
//	GATEWAY_UPSTREAM_PREDICT_URL=http://localhost:8081 GATEWAY_UPSTREAM_CHAT_URL=http://localhost:8081 go run ./cmd/gateway
package main

import (
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	r := chi.NewRouter()
	r.Post("/predict", func(w http.ResponseWriter, r *http.Request) {
		if !work(r, 50*time.Millisecond) {
			return
		}
		writeJSON(w, map[string]any{"prediction": []float64{rand.Float64()}})
		logger.Info("predict served", slog.String("request_id", r.Header.Get("X-Request-ID")))
	})
	r.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
		if !work(r, 300*time.Millisecond) {
			return
		}
		writeJSON(w, map[string]any{"id": uuid.NewString(), "reply": "Olá! Requisição recebida com sucesso."})
		logger.Info("chat served", slog.String("request_id", r.Header.Get("X-Request-ID")))
	})

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	logger.Info("upstream stub listening", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// work simula latência de modelo; retorna false se o cliente desistiu.
func work(r *http.Request, base time.Duration) bool {
	select {
	case <-time.After(base + rand.N(base)):
		return true
	case <-r.Context().Done():
		return false
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
