// Package application contém os casos de uso de admissão e observabilidade:
//
//   - AdmissionService.Decide(ctx, key): consulta o WindowStore com o Clock e
//     devolve uma domain.Decision (allow/deny, contagem, tempo restante da janela).
//   - Recorder.Measure(ctx, info, call): mede a chamada downstream e entrega
//     exatamente um domain.RequestLogEntry ao Sink, qualquer que seja a saída.
//   - ConcurrencyService.Acquire(ctx): vaga num SlotPool com timeout.
//
// Ele depende apenas do pacote domain e não conhece net/http.
//
// Política de falha: se o store falhar (erro ou panic), a admissão falha ABERTA.
// A requisição passa e um evento WARN é emitido (com throttle). Um bug no limiter
// não pode virar negação de serviço contra clientes legítimos; o custo é que,
// durante a falha, o limite não é aplicado.
package application
