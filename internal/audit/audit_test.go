package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cymbytes.com/cymlure/internal/generator/pipeline"
)

type logLine struct {
	Message    string `json:"message"`
	EventType  string `json:"event_type"`
	Result     string `json:"result"`
	AuditEvent Event  `json:"audit_event"`
}

func newTestLogger(buf *bytes.Buffer) *Logger {
	l := NewLogger("lab-1", zerolog.New(buf))
	l.now = func() time.Time { return time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC) }
	return l
}

func readLines(t *testing.T, buf *bytes.Buffer) []logLine {
	t.Helper()
	var lines []logLine
	sc := bufio.NewScanner(buf)
	for sc.Scan() {
		var l logLine
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			t.Fatalf("decode log line %q: %v", sc.Text(), err)
		}
		lines = append(lines, l)
	}
	return lines
}

func TestNotifyRecordsTerminalTransitionsOnly(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)
	ctx := context.Background()

	_ = l.Notify(ctx, pipeline.Event{RunID: "r1", To: pipeline.StateAnalyzing})
	_ = l.Notify(ctx, pipeline.Event{RunID: "r1", From: pipeline.StateFinalizing, To: pipeline.StateDone, BundleID: "b1"})
	_ = l.Notify(ctx, pipeline.Event{RunID: "r2", From: pipeline.StateAnalyzing, To: pipeline.StateFailed, Stage: pipeline.StageAnalyze, Attempts: 2, Error: "bad json"})

	lines := readLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	done := lines[0].AuditEvent
	if done.EventType != EventGenerationCompleted || done.BundleID != "b1" || done.Result != "success" {
		t.Errorf("completed event = %+v", done)
	}
	if done.Instance != "lab-1" || !done.Timestamp.Equal(time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("stamping = %+v", done)
	}

	failed := lines[1].AuditEvent
	if failed.EventType != EventGenerationFailed || failed.Stage != "analyze" || failed.ErrorMsg != "bad json" {
		t.Errorf("failed event = %+v", failed)
	}
	if lines[1].Result != "failure" || lines[1].Message != "Audit event" {
		t.Errorf("line = %+v", lines[1])
	}
}

func TestDeliveryAndRemovalEvents(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf)

	l.LogInboxDelivered("b1", "Simulation", 5, "req-1", nil)
	l.LogInboxDelivered("b1", "", 5, "req-2", errors.New("connection refused"))
	l.LogBundleDeleted("b1", "req-3")
	l.LogTargetCreated("t1", "Finance", "req-4")
	l.LogTargetDeleted("t1", "req-5")

	lines := readLines(t, &buf)
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5", len(lines))
	}

	want := []EventType{EventInboxDelivered, EventInboxDelivered, EventBundleDeleted, EventTargetCreated, EventTargetDeleted}
	for i, line := range lines {
		if line.AuditEvent.EventType != want[i] {
			t.Errorf("line %d type = %q, want %q", i, line.AuditEvent.EventType, want[i])
		}
	}

	if ev := lines[0].AuditEvent; ev.Mailbox != "Simulation" || ev.Items != 5 || ev.RequestID != "req-1" {
		t.Errorf("delivery event = %+v", ev)
	}
	if ev := lines[1].AuditEvent; ev.Result != "failure" || ev.ErrorMsg != "connection refused" {
		t.Errorf("failed delivery event = %+v", ev)
	}
	if ev := lines[3].AuditEvent; ev.Details["department"] != "Finance" {
		t.Errorf("target event = %+v", ev)
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	var l *Logger
	l.LogBundleDeleted("b1", "")
	if err := l.Notify(context.Background(), pipeline.Event{To: pipeline.StateDone}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
}
