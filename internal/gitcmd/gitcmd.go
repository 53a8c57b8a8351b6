// Package gitcmd provides a typed boundary around git subprocess invocations.
package gitcmd

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Result captures the structured outcome of a single git invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// ErrGitUnavailable is returned when the git executable cannot be started.
var ErrGitUnavailable = errors.New("git executable unavailable")

// Runner executes git commands inside a fixed repository directory.
type Runner struct {
	dir string
}

// NewRunner creates a runner rooted at the given repository directory.
func NewRunner(dir string) (*Runner, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("repository directory is required")
	}
	return &Runner{dir: dir}, nil
}

// Dir returns the repository directory the runner operates in.
func (r *Runner) Dir() string {
	return r.dir
}

// Run executes git with the given arguments and returns the structured result.
// A non-zero exit status is not an error here; callers inspect Result.ExitCode.
// Run only errors when the process could not be started or the context expired.
func (r *Runner) Run(ctx context.Context, args ...string) (Result, error) {
	if len(args) == 0 {
		return Result{}, errors.New("git arguments are required")
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, fmt.Errorf("git %s: %w", strings.Join(args, " "), ctxErr)
			}
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		if errors.Is(err, exec.ErrNotFound) {
			return result, fmt.Errorf("git %s: %w", strings.Join(args, " "), ErrGitUnavailable)
		}
		return result, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}

	return result, nil
}

// RunChecked executes git and converts any non-zero exit status into an error
// carrying the trailing stderr output. Used where failure is not an expected
// outcome the caller wants to branch on.
func (r *Runner) RunChecked(ctx context.Context, args ...string) (Result, error) {
	result, err := r.Run(ctx, args...)
	if err != nil {
		return result, err
	}
	if result.ExitCode != 0 {
		return result, fmt.Errorf("git %s exited %d: %s",
			strings.Join(args, " "), result.ExitCode, summarizeStderr(result.Stderr))
	}
	return result, nil
}

// Output runs git with RunChecked semantics and returns trimmed stdout.
func (r *Runner) Output(ctx context.Context, args ...string) (string, error) {
	result, err := r.RunChecked(ctx, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Stdout), nil
}

// Lines runs git with RunChecked semantics and splits stdout into non-empty lines.
func (r *Runner) Lines(ctx context.Context, args ...string) ([]string, error) {
	out, err := r.Output(ctx, args...)
	if err != nil {
		return nil, err
	}
	if out == "" {
		return nil, nil
	}
	raw := strings.Split(out, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// summarizeStderr reduces stderr to a single trimmed line suitable for error text.
func summarizeStderr(stderr string) string {
	trimmed := strings.TrimSpace(stderr)
	if trimmed == "" {
		return "(no stderr)"
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) == 1 {
		return lines[0]
	}
	return lines[len(lines)-1]
}
