// Package testrepos provides disposable git fixtures for fork synchronization tests.
package testrepos

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Repo represents a temporary git repository used in tests.
type Repo struct {
	Root string
}

// ForkPair wires an upstream repository and a fork clone that tracks it via
// the "upstream" remote, mirroring the topology the sync engine runs against.
type ForkPair struct {
	Upstream *Repo
	Fork     *Repo
}

// New creates a temporary git repository with an initial commit on main.
func New(tb testing.TB) *Repo {
	tb.Helper()
	root, err := os.MkdirTemp("", "forkguard-test-repo-*")
	if err != nil {
		tb.Fatalf("create temp repo directory: %v", err)
	}

	repo := &Repo{Root: root}
	tb.Cleanup(func() {
		if cleanupErr := os.RemoveAll(root); cleanupErr != nil {
			tb.Fatalf("cleanup temp repo: %v", cleanupErr)
		}
	})

	repo.Git(tb, "init", "--initial-branch=main")
	repo.Git(tb, "config", "user.name", "Forkguard Test")
	repo.Git(tb, "config", "user.email", "test@example.com")
	repo.WriteFile(tb, "README.md", "# Temp Repository\n")
	repo.Git(tb, "add", "README.md")
	repo.Git(tb, "commit", "-m", "Initial commit")
	return repo
}

// NewForkPair creates an upstream repository and a fork clone of it. The fork
// has the upstream registered as remote "upstream" with refs already fetched.
func NewForkPair(tb testing.TB) *ForkPair {
	tb.Helper()
	upstream := New(tb)

	forkRoot, err := os.MkdirTemp("", "forkguard-test-fork-*")
	if err != nil {
		tb.Fatalf("create temp fork directory: %v", err)
	}
	tb.Cleanup(func() {
		if cleanupErr := os.RemoveAll(forkRoot); cleanupErr != nil {
			tb.Fatalf("cleanup temp fork: %v", cleanupErr)
		}
	})

	cloneDir := filepath.Join(forkRoot, "fork")
	if out, cloneErr := runGit(forkRoot, "clone", upstream.Root, cloneDir); cloneErr != nil {
		tb.Fatalf("clone upstream: %v: %s", cloneErr, out)
	}

	fork := &Repo{Root: cloneDir}
	fork.Git(tb, "config", "user.name", "Forkguard Test")
	fork.Git(tb, "config", "user.email", "test@example.com")
	fork.Git(tb, "remote", "add", "upstream", upstream.Root)
	fork.Git(tb, "fetch", "upstream")

	return &ForkPair{Upstream: upstream, Fork: fork}
}

// Git executes git in the repository and fails the test on a non-zero exit.
func (r *Repo) Git(tb testing.TB, args ...string) string {
	tb.Helper()
	output, err := runGit(r.Root, args...)
	if err != nil {
		tb.Fatalf("git %s failed: %v: %s", strings.Join(args, " "), err, output)
	}
	return strings.TrimSpace(output)
}

// WriteFile writes a file relative to the repository root, creating parent
// directories as needed.
func (r *Repo) WriteFile(tb testing.TB, name string, content string) {
	tb.Helper()
	path := filepath.Join(r.Root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("create directory for %s: %v", name, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		tb.Fatalf("write %s: %v", name, err)
	}
}

// Commit writes a file and commits it with the given message.
func (r *Repo) Commit(tb testing.TB, name string, content string, message string) {
	tb.Helper()
	r.WriteFile(tb, name, content)
	r.Git(tb, "add", name)
	r.Git(tb, "commit", "-m", message)
}

// Tip returns the current HEAD commit SHA.
func (r *Repo) Tip(tb testing.TB) string {
	tb.Helper()
	return r.Git(tb, "rev-parse", "HEAD")
}

// Branch returns the current branch name.
func (r *Repo) Branch(tb testing.TB) string {
	tb.Helper()
	return r.Git(tb, "rev-parse", "--abbrev-ref", "HEAD")
}

// FetchUpstream refreshes the fork's view of the upstream remote.
func (p *ForkPair) FetchUpstream(tb testing.TB) {
	tb.Helper()
	p.Fork.Git(tb, "fetch", "upstream")
}

func runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return string(output), nil
}
