package infra

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"admission-gateway/middleware/admission/domain"
)

var entry = domain.RequestLogEntry{
	RequestID: "req-1",
	Key:       "1.2.3.4",
	Method:    "POST",
	Path:      "/predict",
	Duration:  1500 * time.Millisecond,
	Outcome:   domain.OutcomeSuccess,
	Status:    200,
	At:        t0,
}

func TestSlogSink_WritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
	sink.Accept(entry)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid json: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "request completed" || rec["path"] != "/predict" || rec["method"] != "POST" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if rec["duration_seconds"] != 1.5 || rec["outcome"] != "success" || rec["client"] != "1.2.3.4" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if _, ok := rec["error"]; ok {
		t.Fatalf("did not expect error attr on success")
	}
}

func TestSlogSink_ErrorsAreWarnings(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlogSink(slog.New(slog.NewTextHandler(&buf, nil)))

	e := entry
	e.Outcome = domain.OutcomeError
	e.Err = "downstream responded 502"
	sink.Accept(e)

	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, `error="downstream responded 502"`) {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestMultiSink_FansOut(t *testing.T) {
	a, b := &MemorySink{}, &MemorySink{}
	MultiSink{a, nil, b}.Accept(entry)
	if a.Len() != 1 || b.Len() != 1 {
		t.Fatalf("expected both sinks to receive the entry")
	}
}

func TestSinkFunc(t *testing.T) {
	var got domain.RequestLogEntry
	domain.SinkFunc(func(e domain.RequestLogEntry) { got = e }).Accept(entry)
	if got.RequestID != "req-1" {
		t.Fatalf("expected entry to be passed through")
	}
}

func TestFileSink_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	sink := NewFileSink(FileSinkOptions{Path: path})

	sink.Accept(entry)
	e := entry
	e.Outcome = domain.OutcomeCancelled
	sink.Accept(e)
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var outcomes []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		outcomes = append(outcomes, rec["outcome"].(string))
	}
	if strings.Join(outcomes, ",") != "success,cancelled" {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}
}

func TestMemoryStatsStore_Counts(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackKeys(true))
	ctx := context.Background()

	_ = s.Record(ctx, domain.StatsEvent{Key: "a", Allowed: true, Method: "POST", Path: "/predict"})
	_ = s.Record(ctx, domain.StatsEvent{Key: "a", Allowed: false, Method: "POST", Path: "/predict"})
	_ = s.Record(ctx, domain.StatsEvent{Key: "b", Allowed: true, FailOpen: true, Method: "POST", Path: "/chat"})

	if got := s.Total(); got != (Counters{Allowed: 2, Denied: 1, FailOpen: 1}) {
		t.Fatalf("unexpected total %+v", got)
	}
	if got := s.ByRoute()["POST /predict"]; got != (Counters{Allowed: 1, Denied: 1}) {
		t.Fatalf("unexpected route counters %+v", got)
	}
	if got := s.ByKey()["b"]; got != (Counters{Allowed: 1, FailOpen: 1}) {
		t.Fatalf("unexpected key counters %+v", got)
	}
}
