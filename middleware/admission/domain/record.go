package domain

import "time"

// Outcome descreve por qual caminho a chamada downstream terminou.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeError     Outcome = "error"
	OutcomeCancelled Outcome = "cancelled"
)

// RequestInfo é o descritor da requisição visto pelo recorder, sem net/http.
type RequestInfo struct {
	RequestID string
	Key       Key
	Method    string
	Path      string
}

// RequestLogEntry é o registro estruturado de uma requisição que chegou ao downstream.
//
// É um valor: depois de construído é entregue ao Sink e descartado pelo middleware.
type RequestLogEntry struct {
	RequestID string
	Key       Key
	Method    string
	Path      string
	Duration  time.Duration
	Outcome   Outcome
	// Status é o código observado na resposta (0 se desconhecido).
	Status int
	// Err é a mensagem de erro quando Outcome != success.
	Err string
	At  time.Time
}

func (e RequestLogEntry) DurationSeconds() float64 { return e.Duration.Seconds() }

// Sink recebe os registros de requisição.
//
// Implementações podem escrever em console, arquivo rotativo, Redis, etc.
// Accept não retorna erro: falhas do sink são problema do sink e não podem
// afetar a requisição.
type Sink interface {
	Accept(RequestLogEntry)
}

// SinkFunc adapta uma função para Sink.
type SinkFunc func(RequestLogEntry)

func (f SinkFunc) Accept(e RequestLogEntry) { f(e) }
