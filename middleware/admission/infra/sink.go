package infra

import (
	"context"
	"log/slog"
	"sync"

	"admission-gateway/middleware/admission/domain"
)

// SlogSink escreve cada RequestLogEntry como um evento "request completed" no logger.
type SlogSink struct {
	Logger *slog.Logger
	// Message padrão: "request completed".
	Message string
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{Logger: logger, Message: "request completed"}
}

func (s *SlogSink) Accept(e domain.RequestLogEntry) {
	level := slog.LevelInfo
	if e.Outcome == domain.OutcomeError {
		level = slog.LevelWarn
	}
	s.Logger.LogAttrs(context.Background(), level, s.Message, EntryAttrs(e)...)
}

// EntryAttrs converte o registro nos atributos estruturados usados pelos sinks de log.
func EntryAttrs(e domain.RequestLogEntry) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("request_id", e.RequestID),
		slog.String("client", string(e.Key)),
		slog.String("method", e.Method),
		slog.String("path", e.Path),
		slog.Int("status", e.Status),
		slog.String("outcome", string(e.Outcome)),
		slog.Float64("duration_seconds", e.DurationSeconds()),
		slog.Time("at", e.At),
	}
	if e.Err != "" {
		attrs = append(attrs, slog.String("error", e.Err))
	}
	return attrs
}

// MultiSink repassa o registro para todos os sinks, em ordem.
type MultiSink []domain.Sink

func (m MultiSink) Accept(e domain.RequestLogEntry) {
	for _, s := range m {
		if s != nil {
			s.Accept(e)
		}
	}
}

// MemorySink acumula registros em memória. Útil para testes.
type MemorySink struct {
	mu      sync.Mutex
	entries []domain.RequestLogEntry
}

func (s *MemorySink) Accept(e domain.RequestLogEntry) {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
}

func (s *MemorySink) Entries() []domain.RequestLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RequestLogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
