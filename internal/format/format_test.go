package format

import (
	"testing"
	"time"
)

func TestDurationShort(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{-5 * time.Second, "0s"},
		{42 * time.Second, "42s"},
		{90 * time.Second, "1m30s"},
		{61 * time.Minute, "1h1m0s"},
		{2*time.Hour + 3*time.Minute + 4*time.Second, "2h3m4s"},
	}
	for _, tt := range tests {
		if got := DurationShort(tt.in); got != tt.want {
			t.Errorf("DurationShort(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCommits(t *testing.T) {
	if got := Commits(1); got != "1 commit" {
		t.Errorf("Commits(1) = %q", got)
	}
	if got := Commits(4); got != "4 commits" {
		t.Errorf("Commits(4) = %q", got)
	}
}

func TestPaths(t *testing.T) {
	if got := Paths(1); got != "1 path" {
		t.Errorf("Paths(1) = %q", got)
	}
	if got := Paths(0); got != "0 paths" {
		t.Errorf("Paths(0) = %q", got)
	}
}
