package infra

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"admission-gateway/middleware/admission/domain"

	"github.com/redis/go-redis/v9"
)

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Skipping integration test: Redis not available (%v)", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisSink_Integration(t *testing.T) {
	client := redisClient(t)
	stream := fmt.Sprintf("it_admission_%d", time.Now().UnixNano())
	t.Cleanup(func() { client.Del(context.Background(), stream) })

	sink := NewRedisSink(client, WithSinkStream(stream), WithSinkMaxLen(10))
	sink.Accept(entry)
	e := entry
	e.Outcome = domain.OutcomeError
	e.Err = "boom"
	sink.Accept(e)
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	msgs, err := client.XRange(context.Background(), stream, "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 stream entries, got %d", len(msgs))
	}
	if msgs[0].Values["path"] != "/predict" || msgs[0].Values["duration_seconds"] != "1.5" {
		t.Fatalf("unexpected values %v", msgs[0].Values)
	}
	if msgs[1].Values["outcome"] != "error" || msgs[1].Values["error"] != "boom" {
		t.Fatalf("unexpected values %v", msgs[1].Values)
	}
}

func TestRedisStatsStore_Integration(t *testing.T) {
	client := redisClient(t)
	prefix := fmt.Sprintf("it_stats_%d", time.Now().UnixNano())
	store := NewRedisStatsStore(client, WithStatsPrefix(prefix), WithStatsTrackKeys(true), WithStatsTTL(time.Minute))
	t.Cleanup(func() {
		keys, _ := client.Keys(context.Background(), prefix+":*").Result()
		if len(keys) > 0 {
			client.Del(context.Background(), keys...)
		}
	})

	ctx := context.Background()
	for _, allowed := range []bool{true, true, false} {
		if err := store.Record(ctx, domain.StatsEvent{Key: "1.2.3.4", Allowed: allowed, Method: "POST", Path: "/chat", At: t0}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	total, err := client.HGetAll(ctx, prefix+":total").Result()
	if err != nil {
		t.Fatalf("hgetall: %v", err)
	}
	if total["allowed"] != "2" || total["denied"] != "1" {
		t.Fatalf("unexpected totals %v", total)
	}
	if v, _ := client.HGet(ctx, prefix+":route", "POST /chat:denied").Result(); v != "1" {
		t.Fatalf("expected route counter 1, got %q", v)
	}
	if ttl, _ := client.TTL(ctx, prefix+":key:1.2.3.4").Result(); ttl <= 0 {
		t.Fatalf("expected per-key ttl, got %s", ttl)
	}
}

func TestRedisSink_DropsWhenBufferFull(t *testing.T) {
	// sem goroutine de publish: o buffer enche e Accept não pode bloquear
	sink := &RedisSink{queue: make(chan domain.RequestLogEntry, 1)}

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			sink.Accept(entry)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Accept blocked")
	}
	if sink.Dropped() != 4 {
		t.Fatalf("expected 4 dropped entries, got %d", sink.Dropped())
	}
}

func TestRedisSink_AcceptAfterCloseDoesNotPanic(t *testing.T) {
	// consumidor local no lugar do XADD: drena a fila e sinaliza o fim
	sink := &RedisSink{
		queue: make(chan domain.RequestLogEntry, 8),
		done:  make(chan struct{}),
	}
	var consumed atomic.Int64
	go func() {
		defer close(sink.done)
		for range sink.queue {
			consumed.Add(1)
		}
	}()

	// produtores concorrentes com o Close, como handlers ainda em andamento no shutdown
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sink.Accept(entry)
			}
		}()
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	wg.Wait()

	sink.Accept(entry)
	if err := sink.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	if got := consumed.Load() + sink.Dropped(); got != 8*50+1 {
		t.Fatalf("expected every entry consumed or dropped, got %d", got)
	}
}
