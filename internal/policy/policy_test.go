package policy

import (
	"testing"

	"github.com/forkguard/forkguard/internal/config"
)

func testConfig() config.ProtectionConfig {
	return config.ProtectionConfig{
		ProtectedPaths: []string{"fork/", "docs/fork-notes.md"},
		CriticalFiles:  []string{"fork/identity.go"},
		ForkMarkers:    []config.MarkerSpec{{Pattern: "FORK-SPECIFIC"}},
		Upstream:       config.UpstreamSpec{Owner: "example", Repo: "project", MainBranch: "main"},
		Monitoring:     config.MonitoringSpec{MinMarkerCount: 1, MaxExecutionSeconds: 60},
	}
}

func TestClassifyPrecedence(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want Disposition
	}{
		{
			name: "conflicts always win",
			in: Input{
				ConflictedPaths: []string{"src/a.ts"},
				AffectedPaths:   []string{"src/a.ts"},
				Config:          testConfig(),
			},
			want: ManualIntervention,
		},
		{
			name: "conflicts beat critical files",
			in: Input{
				ConflictedPaths: []string{"unrelated.go"},
				AffectedPaths:   []string{"fork/identity.go"},
				Config:          testConfig(),
			},
			want: ManualIntervention,
		},
		{
			name: "failed simulation without conflicts",
			in: Input{
				SimulationFailed: true,
				Config:           testConfig(),
			},
			want: ManualIntervention,
		},
		{
			name: "critical file touch",
			in: Input{
				AffectedPaths: []string{"README.md", "fork/identity.go"},
				Config:        testConfig(),
			},
			want: ManualIntervention,
		},
		{
			name: "protected directory touch",
			in: Input{
				AffectedPaths: []string{"fork/branding/logo.svg"},
				Config:        testConfig(),
			},
			want: ReviewRequest,
		},
		{
			name: "protected file touch",
			in: Input{
				AffectedPaths: []string{"docs/fork-notes.md"},
				Config:        testConfig(),
			},
			want: ReviewRequest,
		},
		{
			name: "untouched protections auto-merge",
			in: Input{
				AffectedPaths: []string{"src/main.go", "docs/upstream.md"},
				Config:        testConfig(),
			},
			want: AutoMerge,
		},
		{
			name: "empty simulation auto-merges",
			in:   Input{Config: testConfig()},
			want: AutoMerge,
		},
		{
			name: "prefix requires a path boundary",
			in: Input{
				AffectedPaths: []string{"forklift/motor.go"},
				Config:        testConfig(),
			},
			want: AutoMerge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.in)
			if got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	in := Input{
		AffectedPaths: []string{"fork/branding/logo.svg", "src/main.go"},
		Config:        testConfig(),
	}

	first := Classify(in)
	for range 10 {
		if got := Classify(in); got != first {
			t.Fatalf("Classify() not deterministic: %s then %s", first, got)
		}
	}
}

func TestRiskFor(t *testing.T) {
	tests := []struct {
		disposition Disposition
		want        Risk
	}{
		{AutoMerge, RiskSafe},
		{ReviewRequest, RiskReview},
		{ManualIntervention, RiskManual},
	}
	for _, tt := range tests {
		if got := RiskFor(tt.disposition); got != tt.want {
			t.Errorf("RiskFor(%s) = %s, want %s", tt.disposition, got, tt.want)
		}
	}
}

func TestPathUnder(t *testing.T) {
	tests := []struct {
		path  string
		entry string
		want  bool
	}{
		{"fork/a.go", "fork/", true},
		{"fork/a.go", "fork", true},
		{"fork", "fork/", true},
		{"forklift/a.go", "fork", false},
		{"./fork/a.go", "fork", true},
		{"docs/fork-notes.md", "docs/fork-notes.md", true},
		{"", "fork", false},
		{"fork/a.go", "", false},
	}
	for _, tt := range tests {
		if got := PathUnder(tt.path, tt.entry); got != tt.want {
			t.Errorf("PathUnder(%q, %q) = %v, want %v", tt.path, tt.entry, got, tt.want)
		}
	}
}
