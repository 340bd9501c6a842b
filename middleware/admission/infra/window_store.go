package infra

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/cespare/xxhash/v2"
)

// WindowStore é o log de janela deslizante por chave, em memória.
//
// As chaves são distribuídas em shards (xxhash da chave) e cada shard tem seu
// próprio mutex: tráfego de um cliente nunca bloqueia a decisão de clientes de
// outros shards. A poda acontece só na chave acessada; chaves ociosas saem
// pelo Sweep (manual ou via janitor).
//
// Limitação: o estado é por processo. N instâncias do serviço = N quotas independentes.
type WindowStore struct {
	limit  int
	window time.Duration

	shards  []*windowShard
	maxKeys int64
	keys    atomic.Int64

	cleanupEvery time.Duration
}

type windowShard struct {
	mu      sync.Mutex
	entries map[string]*windowLog
}

// windowLog guarda os instantes admitidos em ordem não-decrescente.
type windowLog struct {
	instants []time.Time
}

type WindowStoreOption func(*WindowStore)

// WithShards define a quantidade de shards (locks). Valores <= 0 são ignorados.
func WithShards(n int) WindowStoreOption {
	return func(s *WindowStore) {
		if n > 0 {
			s.shards = newShards(n)
		}
	}
}

// WithMaxKeys limita o número de chaves residentes. 0 = sem limite.
// O limite é aproximado sob concorrência entre shards.
func WithMaxKeys(n int) WindowStoreOption {
	return func(s *WindowStore) { s.maxKeys = int64(n) }
}

func WithSweepEvery(d time.Duration) WindowStoreOption {
	return func(s *WindowStore) { s.cleanupEvery = d }
}

// NewWindowStore cria o store. limit/window iguais a zero usam os defaults
// (60 requisições / 60s); valores negativos são erro.
func NewWindowStore(limit int, window time.Duration, opts ...WindowStoreOption) (*WindowStore, error) {
	if limit == 0 {
		limit = domain.DefaultLimit
	}
	if window == 0 {
		window = domain.DefaultWindow
	}
	if limit < 0 {
		return nil, domain.ErrInvalidLimit
	}
	if window < 0 {
		return nil, domain.ErrInvalidWindow
	}

	s := &WindowStore{
		limit:        limit,
		window:       window,
		shards:       newShards(64),
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func newShards(n int) []*windowShard {
	out := make([]*windowShard, n)
	for i := range out {
		out[i] = &windowShard{entries: make(map[string]*windowLog)}
	}
	return out
}

func (s *WindowStore) Limit() int                { return s.limit }
func (s *WindowStore) Window() time.Duration     { return s.window }
func (s *WindowStore) SweepEvery() time.Duration { return s.cleanupEvery }

// Len implementa domain.WindowStore: número de chaves residentes.
func (s *WindowStore) Len() int { return int(s.keys.Load()) }

func (s *WindowStore) shardFor(key string) *windowShard {
	return s.shards[xxhash.Sum64String(key)%uint64(len(s.shards))]
}

// CheckAndRecord implementa domain.WindowStore.
func (s *WindowStore) CheckAndRecord(key domain.Key, now time.Time) (domain.Usage, error) {
	k := string(key)
	sh := s.shardFor(k)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	wl, ok := sh.entries[k]
	if !ok {
		if s.maxKeys > 0 && s.keys.Load() >= s.maxKeys {
			return domain.Usage{}, domain.ErrStoreFull
		}
		wl = &windowLog{}
		sh.entries[k] = wl
		s.keys.Add(1)
	}

	if n := len(wl.instants); n > 0 {
		last := wl.instants[n-1]
		if now.Before(last) {
			// Leituras concorrentes do relógio podem chegar fora de ordem por
			// alguns instantes; isso vira "last". Um recuo de uma janela inteira não.
			if last.Sub(now) >= s.window {
				return domain.Usage{Count: n, Oldest: wl.instants[0]}, domain.ErrClockRegression
			}
			now = last
		}
	}

	wl.prune(now.Add(-s.window))

	if len(wl.instants) >= s.limit {
		return domain.Usage{Allowed: false, Count: len(wl.instants), Oldest: wl.instants[0]}, nil
	}

	wl.instants = append(wl.instants, now)
	return domain.Usage{Allowed: true, Count: len(wl.instants), Oldest: wl.instants[0]}, nil
}

// prune descarta instantes anteriores a cutoff. Instantes iguais a cutoff ficam
// (a janela é fechada: [now-window, now]).
func (w *windowLog) prune(cutoff time.Time) {
	i := sort.Search(len(w.instants), func(i int) bool {
		return !w.instants[i].Before(cutoff)
	})
	if i == 0 {
		return
	}
	w.instants = append(w.instants[:0], w.instants[i:]...)
}

// Sweep remove chaves cujo instante mais recente já saiu da janela.
// Retorna quantas chaves foram removidas.
func (s *WindowStore) Sweep(now time.Time) int {
	cutoff := now.Add(-s.window)
	removed := 0

	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, wl := range sh.entries {
			n := len(wl.instants)
			if n == 0 || wl.instants[n-1].Before(cutoff) {
				delete(sh.entries, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	s.keys.Add(int64(-removed))
	return removed
}

// StartJanitor inicia uma goroutine que chama Sweep periodicamente.
// Pare cancelando o contexto.
func (s *WindowStore) StartJanitor(ctx context.Context, clock domain.Clock) {
	if s.cleanupEvery <= 0 {
		return
	}
	if clock == nil {
		clock = SystemClock{}
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Sweep(clock.Now())
			}
		}
	}()
}
