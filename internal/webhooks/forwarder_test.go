package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"cymbytes.com/cymlure/internal/generator/llm"
	"cymbytes.com/cymlure/internal/generator/locale"
	"cymbytes.com/cymlure/internal/generator/pipeline"
	"cymbytes.com/cymlure/pkg/contract"
)

type recorder struct {
	mu     sync.Mutex
	events []WebhookEvent
	status int
}

func (rec *recorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var ev WebhookEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			t.Errorf("decode event: %v", err)
		}
		rec.mu.Lock()
		rec.events = append(rec.events, ev)
		status := rec.status
		rec.mu.Unlock()
		if status == 0 {
			status = http.StatusNoContent
		}
		w.WriteHeader(status)
	}
}

func (rec *recorder) received() []WebhookEvent {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]WebhookEvent(nil), rec.events...)
}

func newTestForwarder(t *testing.T, url string) *Forwarder {
	t.Helper()
	f := NewForwarder(Config{
		Enabled:    true,
		URL:        url,
		RetryCount: 2,
		RetryDelay: time.Millisecond,
		Timeout:    time.Second,
		QueueSize:  16,
	}, zerolog.Nop())
	f.Start()
	return f
}

// drain stops the forwarder, waiting for every queued event to be posted.
func drain(t *testing.T, f *Forwarder) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNotifyEventTypes(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	f := newTestForwarder(t, srv.URL)
	ctx := context.Background()
	at := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)

	events := []pipeline.Event{
		{RunID: "run-1", To: pipeline.StateAnalyzing, At: at},
		{RunID: "run-1", From: pipeline.StateFinalizing, To: pipeline.StateDone, BundleID: "b-1", At: at},
		{RunID: "run-2", From: pipeline.StateAnalyzing, To: pipeline.StateFailed, Stage: pipeline.StageAnalyze, Attempts: 2, Error: "parse", At: at},
	}
	for _, ev := range events {
		if err := f.Notify(ctx, ev); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	drain(t, f)

	got := rec.received()
	if len(got) != 3 {
		t.Fatalf("received %d events, want 3", len(got))
	}

	wantTypes := []string{EventGenerationStage, EventGenerationCompleted, EventGenerationFailed}
	for i, ev := range got {
		if ev.EventType != wantTypes[i] {
			t.Errorf("event %d type = %q, want %q", i, ev.EventType, wantTypes[i])
		}
		if ev.Source != "cymlure" {
			t.Errorf("event %d source = %q", i, ev.Source)
		}
		if ev.EventID == "" {
			t.Errorf("event %d has no id", i)
		}
	}

	if got[1].Payload["bundle_id"] != "b-1" {
		t.Errorf("completed payload = %v", got[1].Payload)
	}
	if got[2].RunID != "run-2" || got[2].Payload["stage"] != string(pipeline.StageAnalyze) {
		t.Errorf("failed event = %+v", got[2])
	}
	// JSON numbers decode as float64
	if got[2].Payload["attempts"] != float64(2) {
		t.Errorf("attempts = %v", got[2].Payload["attempts"])
	}
	if _, ok := got[0].Payload["error"]; ok {
		t.Error("stage event should not carry an error")
	}
}

func TestForwardInboxGenerated(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	f := newTestForwarder(t, srv.URL)
	if err := f.ForwardInboxGenerated(context.Background(), "b-9", 4, true); err != nil {
		t.Fatalf("ForwardInboxGenerated: %v", err)
	}
	drain(t, f)

	got := rec.received()
	if len(got) != 1 {
		t.Fatalf("received %d events, want 1", len(got))
	}
	ev := got[0]
	if ev.EventType != EventInboxGenerated {
		t.Errorf("type = %q", ev.EventType)
	}
	if ev.Payload["bundle_id"] != "b-9" || ev.Payload["items"] != float64(4) || ev.Payload["delivered"] != true {
		t.Errorf("payload = %v", ev.Payload)
	}
}

func TestDisabledForwarderSendsNothing(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.URL = srv.URL
	f := NewForwarder(cfg, zerolog.Nop())
	f.Start()

	if f.IsEnabled() {
		t.Fatal("default config should be disabled")
	}
	if err := f.Notify(context.Background(), pipeline.Event{RunID: "r", To: pipeline.StateDone}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if err := f.ForwardInboxGenerated(context.Background(), "b", 1, false); err != nil {
		t.Fatalf("ForwardInboxGenerated: %v", err)
	}
	drain(t, f)
	if n := len(rec.received()); n != 0 {
		t.Errorf("received %d events, want 0", n)
	}
}

func TestRetriesExhausted(t *testing.T) {
	rec := &recorder{status: http.StatusServiceUnavailable}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	f := newTestForwarder(t, srv.URL)
	if err := f.Notify(context.Background(), pipeline.Event{RunID: "r", To: pipeline.StateAnalyzing}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	drain(t, f)

	// One initial attempt plus RetryCount retries
	if n := len(rec.received()); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestStopCancelsPendingRetry(t *testing.T) {
	rec := &recorder{status: http.StatusInternalServerError}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	f := NewForwarder(Config{
		Enabled:    true,
		URL:        srv.URL,
		RetryCount: 5,
		RetryDelay: time.Hour,
		Timeout:    time.Second,
	}, zerolog.Nop())
	f.Start()

	if err := f.Notify(context.Background(), pipeline.Event{RunID: "r", To: pipeline.StateAnalyzing}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, func() bool { return len(rec.received()) == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := f.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop err = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop took %v", elapsed)
	}
	if n := len(rec.received()); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

func TestNotifyQueueBounds(t *testing.T) {
	f := NewForwarder(Config{Enabled: true, URL: "http://127.0.0.1:1", QueueSize: 1}, zerolog.Nop())

	// Not started: the first event fills the queue.
	ev := pipeline.Event{RunID: "r", To: pipeline.StateAnalyzing}
	if err := f.Notify(context.Background(), ev); err != nil {
		t.Fatalf("first Notify: %v", err)
	}
	if err := f.Notify(context.Background(), ev); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("second Notify err = %v, want ErrQueueFull", err)
	}

	if err := f.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := f.Notify(context.Background(), ev); !errors.Is(err, ErrStopped) {
		t.Fatalf("Notify after Stop err = %v, want ErrStopped", err)
	}
}

type nopWriter struct{}

func (nopWriter) SaveBundle(context.Context, *contract.FinalBundle) error { return nil }

func TestFailingEndpointDoesNotDelayRun(t *testing.T) {
	rec := &recorder{status: http.StatusServiceUnavailable}
	srv := httptest.NewServer(rec.handler(t))
	defer srv.Close()

	f := NewForwarder(Config{
		Enabled:    true,
		URL:        srv.URL,
		RetryCount: 3,
		RetryDelay: 10 * time.Second,
		Timeout:    time.Second,
	}, zerolog.Nop())
	f.Start()

	set := llm.NewSet("stub")
	set.Register("stub", "stub-model", func(string) (llm.Client, error) { return llm.NewStubClient(), nil })
	p := pipeline.New(pipeline.Options{
		Providers: set,
		Locales:   locale.NewCache(locale.DefaultRules),
		Writer:    nopWriter{},
		Observer:  f,
		Rand:      func() *rand.Rand { return rand.New(rand.NewSource(1)) },
	}, zerolog.Nop())

	start := time.Now()
	bundle, err := p.Execute(context.Background(), "run-slow-hook", &contract.Request{Topic: "Payment confirmation", Language: "en-gb"})
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if bundle == nil {
		t.Fatal("expected a bundle")
	}
	// Every transition would cost 30s of retry delay if posted inline.
	if elapsed > 2*time.Second {
		t.Errorf("Execute took %v with a failing webhook endpoint", elapsed)
	}

	waitFor(t, func() bool { return len(rec.received()) > 0 })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = f.Stop(ctx)
}
