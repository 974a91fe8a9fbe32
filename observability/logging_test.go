package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/deckflow/deckflow-go/deckflow"
)

// captureHandler records the attrs of every handled record.
type captureHandler struct {
	records []map[string]string
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := map[string]string{}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.String()
		return true
	})
	h.records = append(h.records, attrs)
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func TestCorrelationHandlerStampsID(t *testing.T) {
	capture := &captureHandler{}
	logger := slog.New(NewCorrelationHandler(capture))

	ctx := deckflow.WithCorrelationID(context.Background(), "corr-42")
	logger.InfoContext(ctx, "replacing text", "document_id", "doc-1")

	if len(capture.records) != 1 {
		t.Fatalf("records = %d, want 1", len(capture.records))
	}
	if got := capture.records[0]["correlation_id"]; got != "corr-42" {
		t.Errorf("correlation_id = %q, want corr-42", got)
	}
	if got := capture.records[0]["document_id"]; got != "doc-1" {
		t.Errorf("document_id attr lost: %q", got)
	}
}

func TestCorrelationHandlerWithoutID(t *testing.T) {
	capture := &captureHandler{}
	logger := slog.New(NewCorrelationHandler(capture))

	logger.InfoContext(context.Background(), "no correlation")

	if _, ok := capture.records[0]["correlation_id"]; ok {
		t.Error("correlation_id must not be stamped without one in context")
	}
}
