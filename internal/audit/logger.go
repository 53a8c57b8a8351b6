// Package audit provides append-only audit logging for fork synchronization runs.
package audit

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// localStateDirName is the relative path for transient forkguard state.
	localStateDirName = ".forkguard"
	// auditLogFileName is the filename used for audit logging.
	auditLogFileName = "audit.log"
	// auditLogFileMode defines the permissions for the audit log file.
	auditLogFileMode = 0o644
	// auditLogDirMode defines the permissions for the audit log directory.
	auditLogDirMode = 0o755
)

const (
	// EventProbe records a divergence measurement.
	EventProbe = "probe.result"
	// EventSandboxCreate records disposable branch creation.
	EventSandboxCreate = "sandbox.create"
	// EventSandboxCleanup records disposable branch cleanup, including failures.
	EventSandboxCleanup = "sandbox.cleanup"
	// EventSandboxResult records the simulation outcome.
	EventSandboxResult = "sandbox.result"
	// EventDecision records the policy disposition.
	EventDecision = "decision"
	// EventMergeResult records the real merge outcome.
	EventMergeResult = "merge.result"
	// EventValidation records a post-merge validation check.
	EventValidation = "validation.result"
	// EventAction records the terminal outward action of a run.
	EventAction = "action"
)

// Logger appends audit entries to a log file.
type Logger struct {
	path     string
	warnings io.Writer
	now      func() time.Time
	mu       sync.Mutex
}

// Field represents a logfmt key/value pair.
type Field struct {
	Key   string
	Value string
}

// Entry captures the required audit log fields and any optional fields.
type Entry struct {
	Stage  string
	Event  string
	Fields []Field
}

// NewLogger builds an audit logger rooted at the provided repo.
func NewLogger(repoRoot string, warnings io.Writer) (*Logger, error) {
	if repoRoot == "" {
		return nil, errors.New("repo root is required")
	}
	if warnings == nil {
		warnings = os.Stderr
	}
	return &Logger{
		path:     filepath.Join(repoRoot, localStateDirName, auditLogFileName),
		warnings: warnings,
		now:      time.Now,
	}, nil
}

// Log writes a generic audit entry to the log file.
func (logger *Logger) Log(entry Entry) error {
	if logger == nil {
		return errors.New("audit logger is nil")
	}
	logger.mu.Lock()
	defer logger.mu.Unlock()

	line, err := logger.formatEntry(entry)
	if err != nil {
		logger.warnf("audit log entry rejected: %v", err)
		return err
	}
	if err := logger.appendLine(line); err != nil {
		logger.warnf("audit log write failed for %s: %v", logger.path, err)
		return err
	}
	return nil
}

// LogProbe records a divergence measurement.
func (logger *Logger) LogProbe(ahead int, behind int, upstreamHead string, protectedTouched bool, risk string) error {
	return logger.Log(Entry{
		Stage: "probe",
		Event: EventProbe,
		Fields: []Field{
			{Key: "ahead", Value: strconv.Itoa(ahead)},
			{Key: "behind", Value: strconv.Itoa(behind)},
			{Key: "upstream_head", Value: upstreamHead},
			{Key: "protected_touched", Value: strconv.FormatBool(protectedTouched)},
			{Key: "risk", Value: risk},
		},
	})
}

// LogSandboxCreate records disposable branch creation.
func (logger *Logger) LogSandboxCreate(branch string, base string) error {
	return logger.Log(Entry{
		Stage: "sandbox",
		Event: EventSandboxCreate,
		Fields: []Field{
			{Key: "branch", Value: branch},
			{Key: "base", Value: base},
		},
	})
}

// LogSandboxCleanup records cleanup of the disposable branch. Secondary cleanup
// failures land here instead of overriding the primary simulation result.
func (logger *Logger) LogSandboxCleanup(branch string, cleanupErr error) error {
	fields := []Field{{Key: "branch", Value: branch}}
	if cleanupErr != nil {
		fields = append(fields, Field{Key: "error", Value: cleanupErr.Error()})
	}
	return logger.Log(Entry{
		Stage:  "sandbox",
		Event:  EventSandboxCleanup,
		Fields: fields,
	})
}

// LogSandboxResult records the simulation outcome.
func (logger *Logger) LogSandboxResult(succeeded bool, conflicted int, affected int) error {
	return logger.Log(Entry{
		Stage: "sandbox",
		Event: EventSandboxResult,
		Fields: []Field{
			{Key: "succeeded", Value: strconv.FormatBool(succeeded)},
			{Key: "conflicted_paths", Value: strconv.Itoa(conflicted)},
			{Key: "affected_paths", Value: strconv.Itoa(affected)},
		},
	})
}

// LogDecision records the policy disposition for a run.
func (logger *Logger) LogDecision(disposition string, risk string) error {
	return logger.Log(Entry{
		Stage: "decide",
		Event: EventDecision,
		Fields: []Field{
			{Key: "disposition", Value: disposition},
			{Key: "risk", Value: risk},
		},
	})
}

// LogMergeResult records the real merge outcome.
func (logger *Logger) LogMergeResult(succeeded bool, commitID string, touched int) error {
	return logger.Log(Entry{
		Stage: "merge",
		Event: EventMergeResult,
		Fields: []Field{
			{Key: "succeeded", Value: strconv.FormatBool(succeeded)},
			{Key: "commit", Value: commitID},
			{Key: "touched_paths", Value: strconv.Itoa(touched)},
		},
	})
}

// LogValidation records a single post-merge validation check.
func (logger *Logger) LogValidation(name string, passed bool, detail string) error {
	return logger.Log(Entry{
		Stage: "validate",
		Event: EventValidation,
		Fields: []Field{
			{Key: "check", Value: name},
			{Key: "passed", Value: strconv.FormatBool(passed)},
			{Key: "detail", Value: detail},
		},
	})
}

// LogAction records the terminal outward action of the run.
func (logger *Logger) LogAction(action string, stage string, cause string) error {
	fields := []Field{{Key: "outcome", Value: action}}
	if stage != "" {
		fields = append(fields, Field{Key: "failed_stage", Value: stage})
	}
	if cause != "" {
		fields = append(fields, Field{Key: "cause", Value: cause})
	}
	return logger.Log(Entry{
		Stage:  "report",
		Event:  EventAction,
		Fields: fields,
	})
}

// formatEntry renders an audit entry in logfmt-style order.
func (logger *Logger) formatEntry(entry Entry) (string, error) {
	if entry.Stage == "" {
		return "", errors.New("stage is required")
	}
	if entry.Event == "" {
		return "", errors.New("event is required")
	}
	now := logger.now
	if now == nil {
		now = time.Now
	}

	ts := now().UTC().Format(time.RFC3339)
	fields := []string{
		formatField("ts", ts),
		formatField("stage", entry.Stage),
		formatField("event", entry.Event),
	}

	for _, field := range entry.Fields {
		if field.Value == "" {
			continue
		}
		if field.Key == "" {
			return "", errors.New("field key is required")
		}
		fields = append(fields, formatField(field.Key, field.Value))
	}
	return strings.Join(fields, " "), nil
}

// formatField encodes a logfmt key/value pair.
func formatField(key string, value string) string {
	encoded := sanitizeValue(value)
	if needsQuoting(encoded) {
		return fmt.Sprintf(`%s="%s"`, key, escapeLogfmt(encoded))
	}
	return fmt.Sprintf("%s=%s", key, encoded)
}

// sanitizeValue ensures values stay single-line.
func sanitizeValue(value string) string {
	value = strings.ReplaceAll(value, "\n", `\n`)
	return strings.ReplaceAll(value, "\r", `\r`)
}

// needsQuoting reports whether the value needs logfmt quoting.
func needsQuoting(value string) bool {
	if value == "" {
		return true
	}
	for _, r := range value {
		if r == ' ' || r == '\t' || r == '\n' || r == '=' || r == '"' {
			return true
		}
	}
	return false
}

// escapeLogfmt escapes characters that must be quoted in logfmt values.
func escapeLogfmt(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return strings.ReplaceAll(value, `"`, `\"`)
}

// appendLine writes the log entry to the audit log file.
func (logger *Logger) appendLine(line string) error {
	if logger.path == "" {
		return errors.New("audit log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(logger.path), auditLogDirMode); err != nil {
		return fmt.Errorf("create audit log directory %s: %w", filepath.Dir(logger.path), err)
	}
	file, err := os.OpenFile(logger.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, auditLogFileMode)
	if err != nil {
		return fmt.Errorf("open audit log %s: %w", logger.path, err)
	}
	if _, err := file.WriteString(line + "\n"); err != nil {
		_ = file.Close()
		return fmt.Errorf("write audit log %s: %w", logger.path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close audit log %s: %w", logger.path, err)
	}
	return nil
}

// warnf writes a warning message to the configured warnings writer.
func (logger *Logger) warnf(format string, args ...any) {
	if logger == nil || logger.warnings == nil {
		return
	}
	_, _ = fmt.Fprintf(logger.warnings, format+"\n", args...)
}
