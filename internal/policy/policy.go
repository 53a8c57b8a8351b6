// Package policy implements the pure disposition classifier for upstream deltas.
package policy

import (
	"strings"

	"github.com/forkguard/forkguard/internal/config"
)

// Disposition classifies how an upstream delta should be handled.
type Disposition string

const (
	// AutoMerge means the delta is safe to apply without a human in the loop.
	AutoMerge Disposition = "AUTO_MERGE"
	// ReviewRequest means the delta needs a review request before applying.
	ReviewRequest Disposition = "CREATE_REVIEW_REQUEST"
	// ManualIntervention means the delta must be handled by a human.
	ManualIntervention Disposition = "MANUAL_INTERVENTION"
)

// Risk grades a simulation outcome.
type Risk string

const (
	// RiskSafe marks a delta eligible for automatic merging.
	RiskSafe Risk = "SAFE"
	// RiskReview marks a delta that touches protected paths.
	RiskReview Risk = "REVIEW"
	// RiskManual marks a conflicted or critical delta.
	RiskManual Risk = "MANUAL"
)

// Input carries everything Classify needs. Classify performs no I/O and is
// deterministic for identical inputs; that determinism is what makes the
// automatic merge path auditable.
type Input struct {
	ConflictedPaths  []string
	AffectedPaths    []string
	SimulationFailed bool
	Config           config.ProtectionConfig
}

// Classify maps a simulation outcome to a disposition. Precedence, first match
// wins: conflicts or a failed simulation, then critical files, then protected
// paths, then auto-merge.
func Classify(in Input) Disposition {
	if len(in.ConflictedPaths) > 0 || in.SimulationFailed {
		return ManualIntervention
	}
	if touchesCritical(in.AffectedPaths, in.Config.CriticalFiles) {
		return ManualIntervention
	}
	if touchesProtected(in.AffectedPaths, in.Config.ProtectedPaths) {
		return ReviewRequest
	}
	return AutoMerge
}

// RiskFor maps a disposition to its simulation risk grade.
func RiskFor(disposition Disposition) Risk {
	switch disposition {
	case ManualIntervention:
		return RiskManual
	case ReviewRequest:
		return RiskReview
	default:
		return RiskSafe
	}
}

// touchesCritical reports whether any affected path exactly matches a critical file.
func touchesCritical(affected []string, critical []string) bool {
	for _, path := range affected {
		normalized := normalize(path)
		for _, file := range critical {
			if normalized == normalize(file) {
				return true
			}
		}
	}
	return false
}

// touchesProtected reports whether any affected path falls under a protected entry.
// Entries name either a file (exact match) or a directory (component-prefix match).
func touchesProtected(affected []string, protected []string) bool {
	for _, path := range affected {
		for _, entry := range protected {
			if PathUnder(path, entry) {
				return true
			}
		}
	}
	return false
}

// PathUnder reports whether path equals entry or sits inside entry as a directory.
func PathUnder(path string, entry string) bool {
	normalizedPath := normalize(path)
	normalizedEntry := normalize(entry)
	if normalizedPath == "" || normalizedEntry == "" {
		return false
	}
	if normalizedPath == normalizedEntry {
		return true
	}
	return strings.HasPrefix(normalizedPath, normalizedEntry+"/")
}

// normalize strips surrounding whitespace, leading "./", and trailing slashes.
func normalize(path string) string {
	cleaned := strings.TrimSpace(path)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	cleaned = strings.TrimPrefix(cleaned, "./")
	return strings.TrimSuffix(cleaned, "/")
}
