// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - WindowStore: log de janela deslizante por chave, com shards e Sweep
//   - SystemClock / ManualClock: relógios de produção e de teste
//   - ChanPool: semáforo simples para limite de concorrência
//   - Sinks de RequestLogEntry: slog, arquivo rotativo (lumberjack), Redis stream, memória
//   - StatsStores de decisões: memória e Redis
package infra
