// Package observability wires structured logging, Prometheus-exported
// metrics, and the mutation audit trail.
package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/deckflow/deckflow-go/deckflow"
)

// CorrelationHandler is a slog.Handler that stamps every record with
// the correlation id carried by the context, when one is present.
type CorrelationHandler struct {
	handler slog.Handler
}

// NewCorrelationHandler wraps a handler with correlation stamping.
func NewCorrelationHandler(handler slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{handler: handler}
}

// Enabled reports whether the handler handles records at the given level.
func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle adds the correlation id and passes to the underlying handler.
func (h *CorrelationHandler) Handle(ctx context.Context, record slog.Record) error {
	if id := deckflow.CorrelationID(ctx); id != "" {
		record.AddAttrs(slog.String("correlation_id", id))
	}
	return h.handler.Handle(ctx, record)
}

// WithAttrs returns a new handler with additional attributes.
func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{handler: h.handler.WithAttrs(attrs)}
}

// WithGroup returns a new handler with the given group.
func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{handler: h.handler.WithGroup(name)}
}

// StructuredHandler is a JSON slog.Handler for structured logging.
type StructuredHandler struct {
	attrs  []slog.Attr
	groups []string
}

// NewStructuredHandler creates a new structured JSON handler.
func NewStructuredHandler() *StructuredHandler {
	return &StructuredHandler{
		attrs:  []slog.Attr{},
		groups: []string{},
	}
}

// Enabled always returns true for structured handler.
func (h *StructuredHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

// Handle formats and outputs the log record as JSON.
func (h *StructuredHandler) Handle(ctx context.Context, record slog.Record) error {
	logEntry := make(map[string]interface{})

	logEntry["timestamp"] = record.Time.Format(time.RFC3339)
	logEntry["level"] = record.Level.String()
	logEntry["message"] = record.Message

	if record.PC != 0 {
		fs := runtime.CallersFrames([]uintptr{record.PC})
		f, _ := fs.Next()
		logEntry["source"] = map[string]interface{}{
			"function": f.Function,
			"file":     f.File,
			"line":     f.Line,
		}
	}

	record.Attrs(func(attr slog.Attr) bool {
		logEntry[attr.Key] = attr.Value.Any()
		return true
	})

	for _, attr := range h.attrs {
		logEntry[attr.Key] = attr.Value.Any()
	}

	data, err := json.Marshal(logEntry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	_, err = fmt.Fprintln(os.Stdout, string(data))
	return err
}

// WithAttrs returns a new handler with additional attributes.
func (h *StructuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)

	return &StructuredHandler{
		attrs:  newAttrs,
		groups: h.groups,
	}
}

// WithGroup returns a new handler with the given group.
func (h *StructuredHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups[len(h.groups)] = name

	return &StructuredHandler{
		attrs:  h.attrs,
		groups: newGroups,
	}
}

// ConfigureLogging installs the process-wide default logger.
func ConfigureLogging(level slog.Level, structured bool, includeCorrelation bool) {
	var handler slog.Handler

	if structured {
		handler = NewStructuredHandler()
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	if includeCorrelation {
		handler = NewCorrelationHandler(handler)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
}

// GetLoggerWithCorrelation returns a logger that stamps correlation ids.
func GetLoggerWithCorrelation() *slog.Logger {
	handler := NewCorrelationHandler(slog.Default().Handler())
	return slog.New(handler)
}
