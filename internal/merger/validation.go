package merger

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dlclark/regexp2"
	"golang.org/x/sync/errgroup"
)

// ValidationCheck is a named, independent post-merge condition.
type ValidationCheck struct {
	Name   string
	Passed bool
	Detail string
}

// Validation check names, stable for reporting and audit logging.
const (
	CheckCriticalFiles    = "critical_files_present"
	CheckForkMarkers      = "fork_markers_present"
	CheckConflictMarkers  = "no_conflict_markers"
	CheckWorkingTreeClean = "working_tree_clean"
)

// RunValidationSuite runs every post-merge check concurrently and returns the
// results sorted by name. Checks only read files and repository status, so
// they are safe to run in parallel. A check that cannot be evaluated reports
// as failed with the evaluation error in Detail; it never aborts the suite.
func (m *Merger) RunValidationSuite(ctx context.Context, touchedPaths []string) []ValidationCheck {
	checks := []func(context.Context) ValidationCheck{
		m.checkCriticalFiles,
		m.checkForkMarkers,
		func(ctx context.Context) ValidationCheck { return m.checkConflictMarkers(ctx, touchedPaths) },
		m.checkWorkingTreeClean,
	}

	results := make([]ValidationCheck, len(checks))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, check := range checks {
		group.Go(func() error {
			results[i] = check(groupCtx)
			return nil
		})
	}
	_ = group.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	if m.auditor != nil {
		for _, result := range results {
			_ = m.auditor.LogValidation(result.Name, result.Passed, result.Detail)
		}
	}
	return results
}

// checkCriticalFiles verifies every configured critical file still exists.
func (m *Merger) checkCriticalFiles(_ context.Context) ValidationCheck {
	var missing []string
	for _, file := range m.cfg.CriticalFiles {
		path := filepath.Join(m.git.Dir(), filepath.FromSlash(file))
		if _, err := os.Stat(path); err != nil {
			missing = append(missing, file)
		}
	}
	if len(missing) > 0 {
		return ValidationCheck{
			Name:   CheckCriticalFiles,
			Passed: false,
			Detail: "missing critical files: " + strings.Join(missing, ", "),
		}
	}
	return ValidationCheck{
		Name:   CheckCriticalFiles,
		Passed: true,
		Detail: fmt.Sprintf("%d critical files present", len(m.cfg.CriticalFiles)),
	}
}

// checkForkMarkers counts fork-specific marker occurrences across protected
// paths and compares against the configured minimum.
func (m *Merger) checkForkMarkers(_ context.Context) ValidationCheck {
	patterns := make([]*regexp2.Regexp, 0, len(m.cfg.ForkMarkers))
	for _, marker := range m.cfg.ForkMarkers {
		compiled, err := regexp2.Compile(marker.Pattern, regexp2.RE2)
		if err != nil {
			return ValidationCheck{
				Name:   CheckForkMarkers,
				Passed: false,
				Detail: fmt.Sprintf("compile marker pattern %q: %v", marker.Pattern, err),
			}
		}
		patterns = append(patterns, compiled)
	}

	total := 0
	for _, entry := range m.cfg.ProtectedPaths {
		count, err := m.countMarkersUnder(entry, patterns)
		if err != nil {
			return ValidationCheck{
				Name:   CheckForkMarkers,
				Passed: false,
				Detail: fmt.Sprintf("scan %s: %v", entry, err),
			}
		}
		total += count
	}

	passed := total >= m.cfg.Monitoring.MinMarkerCount
	return ValidationCheck{
		Name:   CheckForkMarkers,
		Passed: passed,
		Detail: fmt.Sprintf("found %d markers, minimum %d", total, m.cfg.Monitoring.MinMarkerCount),
	}
}

// countMarkersUnder counts marker matches inside one protected entry, which
// names either a single file or a directory subtree.
func (m *Merger) countMarkersUnder(entry string, patterns []*regexp2.Regexp) (int, error) {
	root := filepath.Join(m.git.Dir(), filepath.FromSlash(strings.TrimSuffix(entry, "/")))
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	if !info.IsDir() {
		return countMarkersInFile(root, patterns)
	}

	total := 0
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		count, countErr := countMarkersInFile(path, patterns)
		if countErr != nil {
			return countErr
		}
		total += count
		return nil
	})
	if walkErr != nil {
		return 0, walkErr
	}
	return total, nil
}

// countMarkersInFile counts matches of all patterns in one file.
func countMarkersInFile(path string, patterns []*regexp2.Regexp) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	content := string(data)

	total := 0
	for _, pattern := range patterns {
		match, err := pattern.FindStringMatch(content)
		for err == nil && match != nil {
			total++
			match, err = pattern.FindNextMatch(match)
		}
		if err != nil {
			return 0, fmt.Errorf("match %s: %w", pattern.String(), err)
		}
	}
	return total, nil
}

// checkConflictMarkers scans merge-touched files for residual conflict markers.
func (m *Merger) checkConflictMarkers(_ context.Context, touchedPaths []string) ValidationCheck {
	var tainted []string
	for _, rel := range touchedPaths {
		path := filepath.Join(m.git.Dir(), filepath.FromSlash(rel))
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				// Deleted by the merge; nothing to scan.
				continue
			}
			return ValidationCheck{
				Name:   CheckConflictMarkers,
				Passed: false,
				Detail: fmt.Sprintf("read %s: %v", rel, err),
			}
		}
		if hasConflictMarkers(string(data)) {
			tainted = append(tainted, rel)
		}
	}
	if len(tainted) > 0 {
		return ValidationCheck{
			Name:   CheckConflictMarkers,
			Passed: false,
			Detail: "conflict markers in: " + strings.Join(tainted, ", "),
		}
	}
	return ValidationCheck{
		Name:   CheckConflictMarkers,
		Passed: true,
		Detail: fmt.Sprintf("%d files scanned", len(touchedPaths)),
	}
}

// hasConflictMarkers reports whether content contains git conflict markers.
func hasConflictMarkers(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "<<<<<<< ") || strings.HasPrefix(line, ">>>>>>> ") {
			return true
		}
	}
	return false
}

// checkWorkingTreeClean verifies no uncommitted changes remain after the merge.
func (m *Merger) checkWorkingTreeClean(ctx context.Context) ValidationCheck {
	out, err := m.git.Output(ctx, "status", "--porcelain")
	if err != nil {
		return ValidationCheck{
			Name:   CheckWorkingTreeClean,
			Passed: false,
			Detail: fmt.Sprintf("query status: %v", err),
		}
	}
	dirty := 0
	for _, line := range strings.Split(out, "\n") {
		if line == "" {
			continue
		}
		// Forkguard's own state directory is not part of the merge result.
		if len(line) > 3 && strings.HasPrefix(strings.TrimSpace(line[3:]), ".forkguard") {
			continue
		}
		dirty++
	}
	if dirty > 0 {
		return ValidationCheck{
			Name:   CheckWorkingTreeClean,
			Passed: false,
			Detail: fmt.Sprintf("%d uncommitted entries", dirty),
		}
	}
	return ValidationCheck{Name: CheckWorkingTreeClean, Passed: true, Detail: "working tree clean"}
}
