package review

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Client opens review requests through the `gh` CLI. All invocations capture
// exit status and output as structured results; nothing downstream parses gh
// output as free text.
type Client struct {
	dir        string
	baseBranch string
	headBranch string
}

// NewClient creates a gh client rooted at the repository directory.
func NewClient(dir string, baseBranch string, headBranch string) (*Client, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("repository directory is required")
	}
	if strings.TrimSpace(baseBranch) == "" {
		return nil, errors.New("base branch is required")
	}
	if strings.TrimSpace(headBranch) == "" {
		return nil, errors.New("head branch is required")
	}
	return &Client{dir: dir, baseBranch: baseBranch, headBranch: headBranch}, nil
}

// createArgs builds the gh invocation for a review context.
func (c *Client) createArgs(reviewCtx Context, body string) []string {
	return []string{
		"pr", "create",
		"--title", reviewCtx.Title(),
		"--body", body,
		"--base", c.baseBranch,
		"--head", c.headBranch,
		"--label", "upstream-sync",
	}
}

// Create opens a pull request for the review context and returns its URL.
func (c *Client) Create(ctx context.Context, reviewCtx Context) (string, error) {
	body, err := reviewCtx.Body()
	if err != nil {
		return "", err
	}

	args := c.createArgs(reviewCtx, body)
	cmd := exec.CommandContext(ctx, "gh", args...)
	cmd.Dir = c.dir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("gh pr create exited %d: %s",
				exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return "", fmt.Errorf("run gh pr create: %w", err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
