package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileLogAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diag.log")
	l := NewFileLog(path)

	l.Append("REQUEST ARRIVAL: first")
	l.Append("REQUEST ARRIVAL: second")

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}

	text := string(content)
	if !strings.Contains(text, "REQUEST ARRIVAL: first") || !strings.Contains(text, "REQUEST ARRIVAL: second") {
		t.Errorf("log missing records:\n%s", text)
	}
	if strings.Count(text, "=== ") != 2 {
		t.Errorf("expected 2 timestamp headers, got %d", strings.Count(text, "=== "))
	}
}

func TestFileLogTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diag.log")
	l := NewFileLog(path)

	l.Append("old record")
	l.Append("new record")

	// Large budget returns everything.
	text, err := l.Tail(1 << 20)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if !strings.Contains(text, "old record") || !strings.Contains(text, "new record") {
		t.Errorf("tail missing records:\n%s", text)
	}

	// Tight budget keeps only the most recent bytes.
	text, err = l.Tail(20)
	if err != nil {
		t.Fatalf("Tail: %v", err)
	}
	if len(text) > 20 {
		t.Errorf("tail returned %d bytes, want <= 20", len(text))
	}
	if strings.Contains(text, "old record") {
		t.Errorf("tight tail still contains the oldest record:\n%s", text)
	}
}

func TestFileLogTailUnavailable(t *testing.T) {
	if _, err := NewFileLog("").Tail(64); err == nil {
		t.Error("expected error for pathless log")
	}

	var l *FileLog
	if _, err := l.Tail(64); err == nil {
		t.Error("expected error for nil log")
	}

	l = NewFileLog(filepath.Join(t.TempDir(), "never-written.log"))
	if _, err := l.Tail(64); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFileLogDisabled(t *testing.T) {
	// Pathless and nil logs are no-ops.
	NewFileLog("").Append("dropped")

	var l *FileLog
	l.Append("dropped")
}

func TestFileLogSwallowsWriteFailures(t *testing.T) {
	// Point at a directory that does not exist; Append must not panic and
	// must not return anything to fail on.
	l := NewFileLog(filepath.Join(t.TempDir(), "no", "such", "dir", "diag.log"))
	l.Append("dropped")
}
