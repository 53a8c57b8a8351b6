package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogger(t *testing.T) (*Logger, string) {
	t.Helper()
	root := t.TempDir()
	logger, err := NewLogger(root, os.Stderr)
	if err != nil {
		t.Fatalf("create logger: %v", err)
	}
	logger.now = func() time.Time {
		return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	}
	return logger, filepath.Join(root, localStateDirName, auditLogFileName)
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	return string(data)
}

func TestLogProbeFormatsLogfmt(t *testing.T) {
	logger, path := newTestLogger(t)

	if err := logger.LogProbe(3, 7, "abc123", true, "HIGH"); err != nil {
		t.Fatalf("log probe: %v", err)
	}

	line := strings.TrimSpace(readLog(t, path))
	want := `ts=2026-03-14T12:00:00Z stage=probe event=probe.result ahead=3 behind=7 upstream_head=abc123 protected_touched=true risk=HIGH`
	if line != want {
		t.Errorf("unexpected log line:\n got %q\nwant %q", line, want)
	}
}

func TestLogSandboxCleanupCapturesError(t *testing.T) {
	logger, path := newTestLogger(t)

	if err := logger.LogSandboxCleanup("forkguard/sim-x", os.ErrNotExist); err != nil {
		t.Fatalf("log cleanup: %v", err)
	}

	line := readLog(t, path)
	if !strings.Contains(line, "event=sandbox.cleanup") {
		t.Errorf("expected cleanup event, got %q", line)
	}
	if !strings.Contains(line, `error="file does not exist"`) {
		t.Errorf("expected quoted error field, got %q", line)
	}
}

func TestLogRejectsMissingStage(t *testing.T) {
	logger, _ := newTestLogger(t)

	err := logger.Log(Entry{Event: EventDecision})
	if err == nil {
		t.Fatal("expected error for missing stage, got nil")
	}
}

func TestLogAppendsAcrossEntries(t *testing.T) {
	logger, path := newTestLogger(t)

	if err := logger.LogDecision("AUTO_MERGE", "SAFE"); err != nil {
		t.Fatalf("log decision: %v", err)
	}
	if err := logger.LogAction("AUTO_MERGED", "", ""); err != nil {
		t.Fatalf("log action: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(readLog(t, path)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "disposition=AUTO_MERGE") {
		t.Errorf("first line missing disposition: %q", lines[0])
	}
	if !strings.Contains(lines[1], "outcome=AUTO_MERGED") {
		t.Errorf("second line missing outcome: %q", lines[1])
	}
}

func TestQuotingOfSpacedValues(t *testing.T) {
	logger, path := newTestLogger(t)

	err := logger.Log(Entry{
		Stage:  "report",
		Event:  EventAction,
		Fields: []Field{{Key: "cause", Value: `upstream ref "oops" unresolvable`}},
	})
	if err != nil {
		t.Fatalf("log entry: %v", err)
	}

	line := readLog(t, path)
	if !strings.Contains(line, `cause="upstream ref \"oops\" unresolvable"`) {
		t.Errorf("expected escaped quoted value, got %q", line)
	}
}
