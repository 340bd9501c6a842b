package infra

import (
	"sync"
	"time"
)

// SystemClock lê o relógio do sistema.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock só anda quando mandado. Útil para testar bordas de janela sem sleep.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
