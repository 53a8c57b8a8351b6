// Package review builds review-request context and opens pull requests through
// the code-hosting CLI. The core engine never calls this package directly; it
// only returns a disposition and a run report that this collaborator consumes.
package review

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
	"time"

	"github.com/forkguard/forkguard/internal/config"
	"github.com/forkguard/forkguard/internal/policy"
	"github.com/forkguard/forkguard/internal/workflow"
)

//go:embed templates/*.md.tmpl
var embeddedFS embed.FS

// prBodyTemplate is the lookup key for the pull request body template.
const prBodyTemplate = "templates/pr_body.md.tmpl"

// Context is the structured object handed to the code-hosting collaborator.
type Context struct {
	Owner           string
	Repo            string
	UpstreamRef     string
	Ahead           int
	Behind          int
	Disposition     policy.Disposition
	Forced          bool
	AffectedPaths   []string
	ProtectedHits   []string
	RunID           string
	GeneratedAt     time.Time
	DivergenceRisk  string
	ConflictedPaths []string
}

// BuildContext derives a review context from a completed run report.
func BuildContext(report workflow.RunReport, cfg config.ProtectionConfig, runID string, now time.Time) Context {
	ctx := Context{
		Owner:          cfg.Upstream.Owner,
		Repo:           cfg.Upstream.Repo,
		UpstreamRef:    cfg.UpstreamRef(),
		Ahead:          report.Divergence.Ahead,
		Behind:         report.Divergence.Behind,
		Forced:         report.Action == workflow.ActionForceReviewRequest,
		RunID:          runID,
		GeneratedAt:    now.UTC(),
		DivergenceRisk: string(report.Divergence.Risk),
	}
	if report.Simulation != nil {
		ctx.Disposition = report.Simulation.Disposition
		ctx.AffectedPaths = report.Simulation.AffectedPaths
		ctx.ConflictedPaths = report.Simulation.ConflictedPaths
		ctx.ProtectedHits = protectedHits(report.Simulation.AffectedPaths, cfg.ProtectedPaths)
	}
	return ctx
}

// protectedHits filters affected paths down to those under protected entries.
func protectedHits(affected []string, protected []string) []string {
	var hits []string
	for _, path := range affected {
		for _, entry := range protected {
			if policy.PathUnder(path, entry) {
				hits = append(hits, path)
				break
			}
		}
	}
	return hits
}

// Title renders the pull request title for a review context.
func (c Context) Title() string {
	if c.Forced {
		return fmt.Sprintf("Forced review: sync %d upstream commits from %s", c.Behind, c.UpstreamRef)
	}
	return fmt.Sprintf("Review upstream sync: %d commits from %s touch protected paths", c.Behind, c.UpstreamRef)
}

// Body renders the pull request body from the embedded template.
func (c Context) Body() (string, error) {
	raw, err := embeddedFS.ReadFile(prBodyTemplate)
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", prBodyTemplate, err)
	}

	tmpl, err := template.New("pr_body").Parse(string(raw))
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", prBodyTemplate, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, c); err != nil {
		return "", fmt.Errorf("render template %s: %w", prBodyTemplate, err)
	}
	return buf.String(), nil
}

// Timestamp renders the generation time in the format used across reports.
func (c Context) Timestamp() string {
	return c.GeneratedAt.Format(time.RFC3339)
}
