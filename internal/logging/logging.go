// Package logging monta o *slog.Logger dos binários a partir da configuração.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// New cria um logger JSON ou texto no nível pedido ("debug", "info", "warn", "error").
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel aceita os nomes do slog; valores desconhecidos viram info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}
