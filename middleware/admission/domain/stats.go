package domain

import (
	"context"
	"time"
)

// StatsEvent representa um evento de decisão de admissão (inclusive rejeições,
// que não geram RequestLogEntry).
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de chaves em uma base como Redis).
type StatsEvent struct {
	Key      Key
	Allowed  bool
	FailOpen bool

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de admissão.
//
// O middleware trata erro como best-effort (não derruba a request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
