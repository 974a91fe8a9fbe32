package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEventType classifies audit trail entries.
type AuditEventType string

const (
	AuditOperationStarted   AuditEventType = "operation_started"
	AuditOperationCompleted AuditEventType = "operation_completed"
	AuditOperationFailed    AuditEventType = "operation_failed"
	AuditFallbackTriggered  AuditEventType = "fallback_triggered"
	AuditRollbackTriggered  AuditEventType = "rollback_triggered"
	AuditBreakerOpened      AuditEventType = "breaker_opened"
	AuditValidationFailure  AuditEventType = "validation_failure"
)

// AuditSeverity ranks audit trail entries.
type AuditSeverity string

const (
	AuditInfo     AuditSeverity = "info"
	AuditWarning  AuditSeverity = "warning"
	AuditCritical AuditSeverity = "critical"
)

// AuditEvent is one entry of the mutation audit trail.
type AuditEvent struct {
	Timestamp     time.Time              `json:"timestamp"`
	EventType     AuditEventType         `json:"event_type"`
	Severity      AuditSeverity          `json:"severity"`
	Message       string                 `json:"message"`
	DocumentID    string                 `json:"document_id,omitempty"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// NewAuditEvent creates an event stamped with the current time.
func NewAuditEvent(eventType AuditEventType, severity AuditSeverity, message string) *AuditEvent {
	return &AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Severity:  severity,
		Message:   message,
		Metadata:  make(map[string]interface{}),
	}
}

// AuditAdapter delivers events to one destination.
type AuditAdapter interface {
	LogEvent(event *AuditEvent) error
}

// StructuredAuditAdapter writes events as JSON lines to a writer.
type StructuredAuditAdapter struct {
	mu     sync.Mutex
	writer io.Writer
}

// NewStructuredAuditAdapter creates a JSON-lines adapter.
func NewStructuredAuditAdapter(writer io.Writer) *StructuredAuditAdapter {
	return &StructuredAuditAdapter{writer: writer}
}

// LogEvent writes one event as a JSON line.
func (a *StructuredAuditAdapter) LogEvent(event *AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_, err = fmt.Fprintln(a.writer, string(data))
	return err
}

// FileAuditAdapter appends JSON-line events to a file.
type FileAuditAdapter struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileAuditAdapter opens (or creates) the audit file for appending.
func NewFileAuditAdapter(filePath string) (*FileAuditAdapter, error) {
	if dir := filepath.Dir(filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit directory: %w", err)
		}
	}
	file, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	return &FileAuditAdapter{file: file}, nil
}

// LogEvent appends one event to the file.
func (a *FileAuditAdapter) LogEvent(event *AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_, err = fmt.Fprintln(a.file, string(data))
	return err
}

// Close closes the underlying file.
func (a *FileAuditAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// AuditLogger fans events out to its adapters. Delivery failures are
// swallowed; the audit trail must never fail a mutation.
type AuditLogger struct {
	adapters []AuditAdapter
}

// NewAuditLogger creates a logger over the given adapters.
func NewAuditLogger(adapters ...AuditAdapter) *AuditLogger {
	return &AuditLogger{adapters: adapters}
}

// LogEvent delivers an event to every adapter.
func (l *AuditLogger) LogEvent(event *AuditEvent) {
	for _, adapter := range l.adapters {
		_ = adapter.LogEvent(event)
	}
}

// LogOperation records the lifecycle of one document mutation.
func (l *AuditLogger) LogOperation(eventType AuditEventType, documentID, correlationID, operation string, metadata map[string]interface{}) {
	severity := AuditInfo
	if eventType == AuditOperationFailed {
		severity = AuditWarning
	}
	event := NewAuditEvent(eventType, severity, fmt.Sprintf("%s %s", operation, eventType))
	event.DocumentID = documentID
	event.CorrelationID = correlationID
	event.Metadata["operation"] = operation
	for k, v := range metadata {
		event.Metadata[k] = v
	}
	l.LogEvent(event)
}

// LogFallback records a fast-to-legacy path switch for one operation.
func (l *AuditLogger) LogFallback(documentID, correlationID, reason string) {
	event := NewAuditEvent(AuditFallbackTriggered, AuditWarning, "fast path failed, sequential fallback engaged")
	event.DocumentID = documentID
	event.CorrelationID = correlationID
	event.Metadata["reason"] = reason
	l.LogEvent(event)
}

// LogRollback records a controller-wide rollback to the legacy path.
func (l *AuditLogger) LogRollback(reason string) {
	event := NewAuditEvent(AuditRollbackTriggered, AuditCritical, "fast path rolled back")
	event.Metadata["reason"] = reason
	l.LogEvent(event)
}

// LogBreakerOpen records a circuit transition to open.
func (l *AuditLogger) LogBreakerOpen(name, cause string) {
	event := NewAuditEvent(AuditBreakerOpened, AuditCritical, "circuit breaker opened")
	event.Metadata["breaker"] = name
	event.Metadata["cause"] = cause
	l.LogEvent(event)
}

// LogValidationFailure records a payload that failed schema validation.
func (l *AuditLogger) LogValidationFailure(metricKey string, errors []string, corrected bool) {
	event := NewAuditEvent(AuditValidationFailure, AuditWarning, "metric payload failed validation")
	event.Metadata["metric_key"] = metricKey
	event.Metadata["errors"] = errors
	event.Metadata["corrected"] = corrected
	l.LogEvent(event)
}
