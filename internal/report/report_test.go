package report

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/forkguard/forkguard/internal/merger"
	"github.com/forkguard/forkguard/internal/policy"
	"github.com/forkguard/forkguard/internal/probe"
	"github.com/forkguard/forkguard/internal/sandbox"
	"github.com/forkguard/forkguard/internal/workflow"
)

func autoMergedReport() workflow.RunReport {
	return workflow.RunReport{
		Action: workflow.ActionAutoMerged,
		Divergence: probe.DivergenceStatus{
			Ahead:  1,
			Behind: 5,
			Risk:   probe.RiskLow,
		},
		Simulation: &sandbox.SimulationResult{
			Succeeded:     true,
			AffectedPaths: []string{"src/a.go", "src/b.go"},
			Risk:          policy.RiskSafe,
			Disposition:   policy.AutoMerge,
		},
		Merge: &merger.MergeOutcome{
			Succeeded:    true,
			CommitID:     strings.Repeat("a", 40),
			TouchedPaths: []string{"src/a.go", "src/b.go"},
			PostValidation: []merger.ValidationCheck{
				{Name: merger.CheckCriticalFiles, Passed: true, Detail: "1 critical files present"},
				{Name: merger.CheckForkMarkers, Passed: true, Detail: "found 3 markers, minimum 1"},
				{Name: merger.CheckConflictMarkers, Passed: true, Detail: "2 files scanned"},
				{Name: merger.CheckWorkingTreeClean, Passed: true, Detail: "working tree clean"},
			},
		},
		Elapsed: 3 * time.Second,
	}
}

func TestMarkdownAutoMergedGolden(t *testing.T) {
	g := goldie.New(t)
	g.Assert(t, "auto_merged", []byte(Markdown(autoMergedReport())))
}

func TestMarkdownFailedRun(t *testing.T) {
	report := workflow.RunReport{
		Action:   workflow.ActionFailed,
		FailedAt: workflow.StageProbe,
		Cause:    "upstream ref unresolvable",
	}

	md := Markdown(report)
	if !strings.Contains(md, "| Action | `FAILED` |") {
		t.Errorf("markdown missing action row:\n%s", md)
	}
	if !strings.Contains(md, "**Failed at probe**: upstream ref unresolvable") {
		t.Errorf("markdown missing failure line:\n%s", md)
	}
}

func TestTerminalIncludesKeyFields(t *testing.T) {
	out := Terminal(autoMergedReport())

	for _, want := range []string{
		"AUTO_MERGED",
		"5 commits",
		"1 commit",
		"aaaaaaaaaaaa",
		"working_tree_clean",
		"elapsed: 3s",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("terminal output missing %q:\n%s", want, out)
		}
	}
}

func TestTerminalShowsConflicts(t *testing.T) {
	report := workflow.RunReport{
		Action:     workflow.ActionManualInterventionRequired,
		Divergence: probe.DivergenceStatus{Behind: 2, Risk: probe.RiskLow},
		Simulation: &sandbox.SimulationResult{
			ConflictedPaths: []string{"src/a.ts"},
			Disposition:     policy.ManualIntervention,
			Risk:            policy.RiskManual,
		},
	}

	out := Terminal(report)
	if !strings.Contains(out, "conflicts: src/a.ts") {
		t.Errorf("terminal output missing conflicts:\n%s", out)
	}
}

func TestOutputs(t *testing.T) {
	out := Outputs(autoMergedReport())

	for _, want := range []string{
		"action=AUTO_MERGED\n",
		"behind_count=5\n",
		"ahead_count=1\n",
		"risk_level=LOW\n",
		"disposition=AUTO_MERGE\n",
		"merge_commit=" + strings.Repeat("a", 40) + "\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("outputs missing %q:\n%s", want, out)
		}
	}
}

func TestPublishCIWritesSinks(t *testing.T) {
	outputPath := t.TempDir() + "/output"
	summaryPath := t.TempDir() + "/summary"
	env := CIEnv{Lookup: func(key string) string {
		switch key {
		case "GITHUB_OUTPUT":
			return outputPath
		case "GITHUB_STEP_SUMMARY":
			return summaryPath
		default:
			return ""
		}
	}}

	if err := PublishCI(autoMergedReport(), env); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, path := range []string{outputPath, summaryPath} {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read sink %s: %v", path, err)
		}
		if len(data) == 0 {
			t.Errorf("sink %s is empty", path)
		}
	}
}

func TestPublishCINoSinksIsNoop(t *testing.T) {
	env := CIEnv{Lookup: func(string) string { return "" }}
	if err := PublishCI(autoMergedReport(), env); err != nil {
		t.Fatalf("expected no-op outside CI, got %v", err)
	}
}
