// Package webhooks posts generation progress events to an external endpoint.
package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"cymbytes.com/cymlure/internal/generator/pipeline"
)

// Event types
const (
	EventGenerationStage     = "generation.stage"
	EventGenerationCompleted = "generation.completed"
	EventGenerationFailed    = "generation.failed"
	EventInboxGenerated      = "inbox.generated"
)

var (
	// ErrQueueFull is returned when an event is dropped because the
	// delivery queue is at capacity.
	ErrQueueFull = errors.New("webhook queue full")

	// ErrStopped is returned for events offered after Stop.
	ErrStopped = errors.New("webhook forwarder stopped")
)

// Forwarder forwards events to a webhook endpoint. It implements
// pipeline.Observer. Events are queued and posted by a single background
// goroutine so a slow endpoint never holds up the caller.
type Forwarder struct {
	url        string
	httpClient *http.Client
	logger     zerolog.Logger
	enabled    bool
	retryCount int
	retryDelay time.Duration

	mu     sync.RWMutex
	queue  chan WebhookEvent
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds webhook forwarder configuration.
type Config struct {
	// Enabled controls whether webhooks are sent
	Enabled bool `yaml:"enabled"`

	// URL is the webhook endpoint
	URL string `yaml:"url"`

	// RetryCount is how many times to retry failed requests
	RetryCount int `yaml:"retry_count"`

	// RetryDelay is how long to wait between retries
	RetryDelay time.Duration `yaml:"retry_delay"`

	// Timeout for HTTP requests
	Timeout time.Duration `yaml:"timeout"`

	// QueueSize bounds the events waiting for delivery
	QueueSize int `yaml:"queue_size"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:    false,
		URL:        "http://localhost:8085/api/webhooks/cymlure",
		RetryCount: 3,
		RetryDelay: time.Second,
		Timeout:    10 * time.Second,
		QueueSize:  100,
	}
}

// NewForwarder creates a new webhook forwarder.
// Call Start before offering events and Stop on shutdown.
func NewForwarder(cfg Config, logger zerolog.Logger) *Forwarder {
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultConfig().QueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Forwarder{
		url: cfg.URL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger:     logger.With().Str("component", "webhook_forwarder").Logger(),
		enabled:    cfg.Enabled,
		retryCount: cfg.RetryCount,
		retryDelay: cfg.RetryDelay,
		queue:      make(chan WebhookEvent, size),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start launches the delivery goroutine. A disabled forwarder starts nothing.
func (f *Forwarder) Start() {
	if !f.enabled {
		return
	}
	f.wg.Add(1)
	go f.deliverLoop()
	f.logger.Info().Str("url", f.url).Msg("Webhook forwarder started")
}

// Stop closes the queue and waits for queued events to be delivered. When
// ctx expires first, in-flight retries are cancelled, whatever is still
// queued is discarded and ctx.Err() is returned.
func (f *Forwarder) Stop(ctx context.Context) error {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		close(f.queue)
	}
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		f.cancel()
		return nil
	case <-ctx.Done():
		f.cancel()
		<-done
		return ctx.Err()
	}
}

func (f *Forwarder) deliverLoop() {
	defer f.wg.Done()

	dropped := 0
	for event := range f.queue {
		if f.ctx.Err() != nil {
			dropped++
			continue
		}
		_ = f.sendEvent(f.ctx, event)
	}
	if dropped > 0 {
		f.logger.Warn().Int("dropped", dropped).Msg("Discarded queued webhooks on shutdown")
	}
	f.logger.Info().Msg("Webhook forwarder stopped")
}

// enqueue offers an event without blocking.
func (f *Forwarder) enqueue(event WebhookEvent) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return ErrStopped
	}
	select {
	case f.queue <- event:
		return nil
	default:
		f.logger.Warn().
			Str("event_type", event.EventType).
			Str("run_id", event.RunID).
			Msg("Webhook queue full, dropping event")
		return ErrQueueFull
	}
}

// WebhookEvent is the event payload sent to the endpoint.
type WebhookEvent struct {
	EventType string         `json:"event_type"`
	EventID   string         `json:"event_id"`
	RunID     string         `json:"run_id"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Payload   map[string]any `json:"payload"`
}

// Notify queues a pipeline transition. Terminal transitions map to the
// completed and failed events; everything else is a stage event.
func (f *Forwarder) Notify(_ context.Context, ev pipeline.Event) error {
	if !f.enabled {
		return nil
	}

	eventType := EventGenerationStage
	switch ev.To {
	case pipeline.StateDone:
		eventType = EventGenerationCompleted
	case pipeline.StateFailed:
		eventType = EventGenerationFailed
	}

	payload := map[string]any{
		"from": ev.From,
		"to":   ev.To,
	}
	if ev.Stage != "" {
		payload["stage"] = ev.Stage
	}
	if ev.Attempts > 0 {
		payload["attempts"] = ev.Attempts
	}
	if ev.BundleID != "" {
		payload["bundle_id"] = ev.BundleID
	}
	if ev.Error != "" {
		payload["error"] = ev.Error
	}

	return f.enqueue(WebhookEvent{
		EventType: eventType,
		EventID:   uuid.New().String(),
		RunID:     ev.RunID,
		Timestamp: ev.At,
		Source:    "cymlure",
		Payload:   payload,
	})
}

// ForwardInboxGenerated queues an announcement of a stored inbox.
func (f *Forwarder) ForwardInboxGenerated(_ context.Context, bundleID string, items int, delivered bool) error {
	if !f.enabled {
		return nil
	}

	return f.enqueue(WebhookEvent{
		EventType: EventInboxGenerated,
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC(),
		Source:    "cymlure",
		Payload: map[string]any{
			"bundle_id": bundleID,
			"items":     items,
			"delivered": delivered,
		},
	})
}

// sendEvent posts an event with retries.
func (f *Forwarder) sendEvent(ctx context.Context, event WebhookEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= f.retryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(f.retryDelay):
			}
		}

		lastErr = f.post(ctx, body)
		if lastErr == nil {
			f.logger.Debug().
				Str("event_id", event.EventID).
				Str("event_type", event.EventType).
				Str("run_id", event.RunID).
				Msg("Webhook forwarded")
			return nil
		}

		f.logger.Warn().
			Err(lastErr).
			Int("attempt", attempt+1).
			Str("event_type", event.EventType).
			Msg("Failed to forward webhook, retrying")
	}

	f.logger.Error().
		Err(lastErr).
		Str("event_id", event.EventID).
		Str("event_type", event.EventType).
		Msg("Failed to forward webhook after all retries")

	return fmt.Errorf("failed to forward webhook after %d attempts: %w", f.retryCount+1, lastErr)
}

func (f *Forwarder) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// IsEnabled returns whether the forwarder is enabled.
func (f *Forwarder) IsEnabled() bool {
	return f.enabled
}
