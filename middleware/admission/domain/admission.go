package domain

// Camada de domínio da admissão.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"errors"
	"time"
)

// Key identifica o cliente (ex: IP normalizado, API key). É opaca para o domínio.
type Key string

const (
	DefaultLimit  = 60
	DefaultWindow = 60 * time.Second
)

var (
	ErrInvalidLimit  = errors.New("admission: limit must be > 0")
	ErrInvalidWindow = errors.New("admission: window must be > 0")

	// ErrClockRegression indica que "now" recuou uma janela inteira ou mais em
	// relação ao instante mais recente da chave. O registro não é alterado.
	ErrClockRegression = errors.New("admission: clock moved backwards for key")

	// ErrStoreFull indica que o store atingiu o limite de chaves residentes.
	ErrStoreFull = errors.New("admission: window store is full")
)

// Clock é a fonte de "agora". Produção lê o relógio do sistema; testes avançam manualmente.
type Clock interface {
	Now() time.Time
}

// Usage é o estado da janela de uma chave logo após CheckAndRecord.
type Usage struct {
	Allowed bool
	// Count é o número de instantes na janela (incluindo now, se admitido).
	Count int
	// Oldest é o instante mais antigo ainda na janela; zero se a janela está vazia.
	Oldest time.Time
}

// WindowStore mantém, por chave, o histórico de instantes dentro da janela deslizante.
//
// CheckAndRecord poda os instantes fora de [now-window, now] e, se ainda houver
// quota, registra now. Uma tentativa rejeitada não consome quota.
// Implementações devem serializar o read-modify-write por chave.
type WindowStore interface {
	Limit() int
	Window() time.Duration
	CheckAndRecord(key Key, now time.Time) (Usage, error)
	Sweep(now time.Time) int
	Len() int
}

// Decision é o resultado de uma verificação de admissão. Não é persistida.
type Decision struct {
	Allowed bool
	Count   int
	Limit   int

	// WindowRemaining é o tempo até o instante mais antigo sair da janela.
	WindowRemaining time.Duration

	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration

	// At é o instante do relógio usado na decisão.
	At time.Time

	// FailOpen indica que o store falhou e a requisição foi liberada mesmo assim.
	FailOpen bool
}

// Remaining é a quota ainda disponível na janela atual.
func (d Decision) Remaining() int {
	if r := d.Limit - d.Count; r > 0 {
		return r
	}
	return 0
}
