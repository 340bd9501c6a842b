package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"admission-gateway/middleware/admission/domain"
)

type steppingClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// Now avança step a cada leitura: início e fim da medição ficam a step de distância.
func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.now
	c.now = c.now.Add(c.step)
	return n
}

type collectSink struct {
	mu      sync.Mutex
	entries []domain.RequestLogEntry
}

func (s *collectSink) Accept(e domain.RequestLogEntry) {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
}

var info = domain.RequestInfo{RequestID: "req-1", Key: "1.2.3.4", Method: "POST", Path: "/predict"}

func TestRecorder_Measure_Success(t *testing.T) {
	sink := &collectSink{}
	rec := NewRecorder(sink, &steppingClock{now: t0, step: 250 * time.Millisecond})

	err := rec.Measure(context.Background(), info, func(context.Context) (int, error) {
		return 200, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sink.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(sink.entries))
	}
	e := sink.entries[0]
	if e.Outcome != domain.OutcomeSuccess || e.Status != 200 {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.DurationSeconds() != 0.25 {
		t.Fatalf("expected 0.25s, got %v", e.DurationSeconds())
	}
	if e.Path != "/predict" || e.Method != "POST" || e.Key != "1.2.3.4" || e.RequestID != "req-1" || !e.At.Equal(t0) {
		t.Fatalf("request fields not carried over: %+v", e)
	}
}

func TestRecorder_Measure_ErrorIsReturnedUnchanged(t *testing.T) {
	sink := &collectSink{}
	rec := NewRecorder(sink, &steppingClock{now: t0, step: time.Millisecond})

	boom := errors.New("model not loaded")
	err := rec.Measure(context.Background(), info, func(context.Context) (int, error) {
		return 500, boom
	})
	if err != boom {
		t.Fatalf("expected original error, got %v", err)
	}
	if len(sink.entries) != 1 || sink.entries[0].Outcome != domain.OutcomeError {
		t.Fatalf("expected one error entry, got %+v", sink.entries)
	}
	if sink.entries[0].Err != "model not loaded" {
		t.Fatalf("expected error message in entry, got %q", sink.entries[0].Err)
	}
}

func TestRecorder_Measure_Cancelled(t *testing.T) {
	sink := &collectSink{}
	rec := NewRecorder(sink, &steppingClock{now: t0, step: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	err := rec.Measure(ctx, info, func(ctx context.Context) (int, error) {
		cancel()
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(sink.entries) != 1 || sink.entries[0].Outcome != domain.OutcomeCancelled {
		t.Fatalf("expected one cancelled entry, got %+v", sink.entries)
	}
}

func TestRecorder_Measure_PanicIsRecordedAndRepanicked(t *testing.T) {
	sink := &collectSink{}
	rec := NewRecorder(sink, &steppingClock{now: t0, step: time.Millisecond})

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic to propagate")
		}
		if len(sink.entries) != 1 || sink.entries[0].Outcome != domain.OutcomeError {
			t.Fatalf("expected one error entry, got %+v", sink.entries)
		}
	}()

	_ = rec.Measure(context.Background(), info, func(context.Context) (int, error) {
		panic("nil tensor")
	})
}

func TestRecorder_Measure_NilSinkIsNoop(t *testing.T) {
	rec := NewRecorder(nil, nil)
	if err := rec.Measure(context.Background(), info, func(context.Context) (int, error) { return 204, nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClassify(t *testing.T) {
	done, cancel := context.WithCancel(context.Background())
	cancel()

	cases := []struct {
		name   string
		ctx    context.Context
		status int
		err    error
		want   domain.Outcome
	}{
		{"success", context.Background(), 200, nil, domain.OutcomeSuccess},
		{"error", context.Background(), 500, errors.New("x"), domain.OutcomeError},
		{"wrapped deadline", context.Background(), 502, fmt.Errorf("upstream: %w", context.DeadlineExceeded), domain.OutcomeCancelled},
		{"ctx done with error", done, 502, errors.New("bad gateway"), domain.OutcomeCancelled},
		{"ctx done nothing written", done, 0, nil, domain.OutcomeCancelled},
		{"ctx done response completed", done, 200, nil, domain.OutcomeSuccess},
	}
	for _, tc := range cases {
		if got := Classify(tc.ctx, tc.status, tc.err); got != tc.want {
			t.Errorf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}
