package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStructuredAuditAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewAuditLogger(NewStructuredAuditAdapter(&buf))

	logger.LogOperation(AuditOperationCompleted, "doc-1", "corr-1", "replace_text",
		map[string]interface{}{"containers_ok": 3})

	var event AuditEvent
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("output is not one JSON line: %v", err)
	}
	if event.EventType != AuditOperationCompleted || event.DocumentID != "doc-1" {
		t.Errorf("event = %+v", event)
	}
	if event.Metadata["operation"] != "replace_text" {
		t.Errorf("operation metadata = %v", event.Metadata["operation"])
	}
}

func TestFileAuditAdapterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "trail.jsonl")
	adapter, err := NewFileAuditAdapter(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer adapter.Close()

	logger := NewAuditLogger(adapter)
	logger.LogRollback("error rate spike")
	logger.LogBreakerOpen("document-api", "SSL handshake failed")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}

	var rollback AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &rollback); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if rollback.EventType != AuditRollbackTriggered || rollback.Severity != AuditCritical {
		t.Errorf("rollback event = %+v", rollback)
	}
}

func TestAuditFansOutToAllAdapters(t *testing.T) {
	var a, b bytes.Buffer
	logger := NewAuditLogger(
		NewStructuredAuditAdapter(&a),
		NewStructuredAuditAdapter(&b),
	)

	logger.LogValidationFailure("AOV", []string{"missing field: value"}, true)

	if a.Len() == 0 || b.Len() == 0 {
		t.Error("event must reach every adapter")
	}
}
