// Package audit records security-relevant simulation events: which bundles
// were produced, where inboxes were delivered, and what was removed.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"cymbytes.com/cymlure/internal/generator/pipeline"
)

// EventType represents the type of audit event.
type EventType string

const (
	// EventGenerationCompleted is logged when a run persists a bundle.
	EventGenerationCompleted EventType = "generation_completed"

	// EventGenerationFailed is logged when a run ends without a bundle.
	EventGenerationFailed EventType = "generation_failed"

	// EventInboxDelivered is logged after an IMAP delivery attempt.
	EventInboxDelivered EventType = "inbox_delivered"

	// EventBundleDeleted is logged when a bundle and its inbox are removed.
	EventBundleDeleted EventType = "bundle_deleted"

	// EventTargetCreated is logged when a target profile is stored.
	EventTargetCreated EventType = "target_created"

	// EventTargetDeleted is logged when a target profile is removed.
	EventTargetDeleted EventType = "target_deleted"
)

// Event represents an audit event.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType EventType      `json:"event_type"`
	Instance  string         `json:"instance"`
	RunID     string         `json:"run_id,omitempty"`
	BundleID  string         `json:"bundle_id,omitempty"`
	TargetID  string         `json:"target_id,omitempty"`
	Mailbox   string         `json:"mailbox,omitempty"`
	Stage     string         `json:"stage,omitempty"`
	Items     int            `json:"items,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Result    string         `json:"result"` // success, failure
	ErrorMsg  string         `json:"error,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Logger writes audit events as structured log lines. A nil Logger discards
// everything.
type Logger struct {
	instance string
	now      func() time.Time
	logger   zerolog.Logger
}

// NewLogger creates a new audit logger. instance identifies this server in
// every event.
func NewLogger(instance string, logger zerolog.Logger) *Logger {
	return &Logger{
		instance: instance,
		now:      time.Now,
		logger:   logger.With().Str("component", "audit").Logger(),
	}
}

// Log writes an audit event.
func (l *Logger) Log(event *Event) {
	if l == nil {
		return
	}
	event.Timestamp = l.now().UTC()
	event.Instance = l.instance

	eventJSON, _ := json.Marshal(event)

	logEvent := l.logger.Info().
		Str("event_type", string(event.EventType)).
		Str("result", event.Result)

	if event.BundleID != "" {
		logEvent = logEvent.Str("bundle_id", event.BundleID)
	}
	if event.RunID != "" {
		logEvent = logEvent.Str("run_id", event.RunID)
	}
	if event.ErrorMsg != "" {
		logEvent = logEvent.Str("error", event.ErrorMsg)
	}

	logEvent.RawJSON("audit_event", eventJSON).Msg("Audit event")
}

// Notify records terminal run transitions. It implements pipeline.Observer.
func (l *Logger) Notify(_ context.Context, ev pipeline.Event) error {
	switch ev.To {
	case pipeline.StateDone:
		l.Log(&Event{
			EventType: EventGenerationCompleted,
			RunID:     ev.RunID,
			BundleID:  ev.BundleID,
			Result:    "success",
		})
	case pipeline.StateFailed:
		l.Log(&Event{
			EventType: EventGenerationFailed,
			RunID:     ev.RunID,
			Stage:     string(ev.Stage),
			Result:    "failure",
			ErrorMsg:  ev.Error,
			Details:   map[string]any{"attempts": ev.Attempts},
		})
	}
	return nil
}

// LogInboxDelivered records a delivery attempt.
func (l *Logger) LogInboxDelivered(bundleID, mailbox string, items int, requestID string, err error) {
	event := &Event{
		EventType: EventInboxDelivered,
		BundleID:  bundleID,
		Mailbox:   mailbox,
		Items:     items,
		RequestID: requestID,
		Result:    "success",
	}
	if err != nil {
		event.Result = "failure"
		event.ErrorMsg = err.Error()
	}
	l.Log(event)
}

// LogBundleDeleted records a bundle removal.
func (l *Logger) LogBundleDeleted(bundleID, requestID string) {
	l.Log(&Event{
		EventType: EventBundleDeleted,
		BundleID:  bundleID,
		RequestID: requestID,
		Result:    "success",
	})
}

// LogTargetCreated records a stored target profile. Only the department is
// logged; names stay in the database.
func (l *Logger) LogTargetCreated(targetID, department, requestID string) {
	l.Log(&Event{
		EventType: EventTargetCreated,
		TargetID:  targetID,
		RequestID: requestID,
		Result:    "success",
		Details:   map[string]any{"department": department},
	})
}

// LogTargetDeleted records a target profile removal.
func (l *Logger) LogTargetDeleted(targetID, requestID string) {
	l.Log(&Event{
		EventType: EventTargetDeleted,
		TargetID:  targetID,
		RequestID: requestID,
		Result:    "success",
	})
}
