package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forkguard/forkguard/internal/testrepos"
	"github.com/forkguard/forkguard/internal/workflow"
)

const testConfigYAML = `protected_paths:
  - fork/
critical_files:
  - fork/identity.md
fork_specific_markers:
  - pattern: FORK-SPECIFIC
    description: fork identity marker
upstream:
  owner: example
  repo: project
  main_branch: main
monitoring:
  min_marker_count: 1
  max_execution_time: 300
`

// chdirForkPair moves the test process into a fork checkout carrying a
// protection config and fork-specific content.
func chdirForkPair(t *testing.T) *testrepos.ForkPair {
	t.Helper()
	pair := testrepos.NewForkPair(t)
	pair.Fork.Commit(t, "fork/identity.md", "FORK-SPECIFIC identity\n", "add fork identity")
	pair.Fork.WriteFile(t, ".forkguard.yaml", testConfigYAML)
	pair.Fork.Git(t, "add", ".forkguard.yaml")
	pair.Fork.Git(t, "commit", "-m", "add protection config")

	original, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(pair.Fork.Root); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(original); err != nil {
			t.Fatalf("restore cwd: %v", err)
		}
	})
	return pair
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(stdout, "version=") {
		t.Errorf("version output missing version field: %q", stdout)
	}
}

func TestUnknownCommand(t *testing.T) {
	_, _, err := execute(t, "destroy")
	if err == nil {
		t.Fatal("expected error for unknown command")
	}
}

func TestSyncUpToDate(t *testing.T) {
	chdirForkPair(t)

	stdout, _, err := execute(t, "sync")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !strings.Contains(stdout, string(workflow.ActionUpToDate)) {
		t.Errorf("expected %s in output:\n%s", workflow.ActionUpToDate, stdout)
	}
}

func TestSyncCheckOnlyDoesNotMutate(t *testing.T) {
	pair := chdirForkPair(t)
	pair.Upstream.Commit(t, "feature.go", "package feature\n", "upstream feature")
	before := pair.Fork.Tip(t)

	stdout, _, err := execute(t, "sync", "--check-only")
	if err != nil {
		t.Fatalf("sync --check-only: %v", err)
	}
	if !strings.Contains(stdout, string(workflow.ActionCheckOnly)) {
		t.Errorf("expected %s in output:\n%s", workflow.ActionCheckOnly, stdout)
	}
	if pair.Fork.Tip(t) != before {
		t.Error("check-only run mutated the integration branch")
	}
}

func TestSyncAutoMerges(t *testing.T) {
	pair := chdirForkPair(t)
	pair.Upstream.Commit(t, "feature.go", "package feature\n", "upstream feature")
	before := pair.Fork.Tip(t)

	stdout, _, err := execute(t, "sync")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !strings.Contains(stdout, string(workflow.ActionAutoMerged)) {
		t.Errorf("expected %s in output:\n%s", workflow.ActionAutoMerged, stdout)
	}
	if pair.Fork.Tip(t) == before {
		t.Error("expected the integration branch to advance")
	}
	if _, err := os.Stat(filepath.Join(pair.Fork.Root, ".forkguard", "audit.log")); err != nil {
		t.Errorf("expected audit log: %v", err)
	}
}

func TestSyncManualInterventionExitCode(t *testing.T) {
	pair := chdirForkPair(t)
	pair.Fork.Commit(t, "shared.txt", "fork line\n", "fork change")
	pair.Upstream.Commit(t, "shared.txt", "upstream line\n", "upstream change")

	_, _, err := execute(t, "sync")
	if err == nil {
		t.Fatal("expected error for conflicting delta")
	}
	if code := GetExitCode(err); code != ExitFailure {
		t.Errorf("exit code = %d, want %d", code, ExitFailure)
	}
}

func TestSyncMissingConfig(t *testing.T) {
	pair := testrepos.NewForkPair(t)
	original, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(pair.Fork.Root); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(original); err != nil {
			t.Fatalf("restore cwd: %v", err)
		}
	})

	_, _, err = execute(t, "sync")
	if err == nil {
		t.Fatal("expected error for missing config")
	}
	if code := GetExitCode(err); code != ExitCommandError {
		t.Errorf("exit code = %d, want %d", code, ExitCommandError)
	}
}

func TestStatusCommand(t *testing.T) {
	pair := chdirForkPair(t)
	pair.Upstream.Commit(t, "feature.go", "package feature\n", "upstream feature")

	stdout, _, err := execute(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"upstream:  upstream/main", "behind:    1 commit", "risk:      LOW"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("status output missing %q:\n%s", want, stdout)
		}
	}
}

func TestExitForMapping(t *testing.T) {
	tests := []struct {
		action workflow.Action
		code   int
	}{
		{workflow.ActionUpToDate, ExitSuccess},
		{workflow.ActionAutoMerged, ExitSuccess},
		{workflow.ActionCheckOnly, ExitSuccess},
		{workflow.ActionReviewRequestCreated, ExitSuccess},
		{workflow.ActionManualInterventionRequired, ExitFailure},
		{workflow.ActionFailed, ExitCommandError},
	}
	for _, tt := range tests {
		err := exitFor(workflow.RunReport{Action: tt.action})
		if tt.code == ExitSuccess {
			if err != nil {
				t.Errorf("exitFor(%s) = %v, want nil", tt.action, err)
			}
			continue
		}
		if code := GetExitCode(err); code != tt.code {
			t.Errorf("exitFor(%s) code = %d, want %d", tt.action, code, tt.code)
		}
	}
}

func TestExitErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := WrapExitError(ExitCommandError, "context", inner)
	if !errors.Is(err, inner) {
		t.Error("expected wrapped error to match with errors.Is")
	}
	if !strings.Contains(err.Error(), "context") || !strings.Contains(err.Error(), "boom") {
		t.Errorf("unexpected message: %v", err)
	}
}
