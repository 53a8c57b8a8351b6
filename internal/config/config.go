// Package config loads and validates the fork protection document.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the protection document filename at the repository root.
const DefaultFileName = ".forkguard.yaml"

// ErrInvalid marks a malformed or incomplete protection document. The engine
// treats it as fatal before any repository probe runs.
var ErrInvalid = errors.New("invalid protection config")

// MarkerSpec describes one fork-specific marker pattern that must survive merges.
type MarkerSpec struct {
	Pattern     string `yaml:"pattern"`
	Description string `yaml:"description"`
}

// UpstreamSpec identifies the upstream repository and its main branch.
type UpstreamSpec struct {
	Owner      string `yaml:"owner"`
	Repo       string `yaml:"repo"`
	MainBranch string `yaml:"main_branch"`
}

// MonitoringSpec holds sync monitoring thresholds.
type MonitoringSpec struct {
	MinMarkerCount      int `yaml:"min_marker_count"`
	MaxExecutionSeconds int `yaml:"max_execution_time"`
}

// ProtectionConfig is the read-only protection document consumed by the engine.
// It is loaded once per invocation and passed by parameter through the call
// chain; nothing mutates it after Load returns.
type ProtectionConfig struct {
	ProtectedPaths []string       `yaml:"protected_paths"`
	CriticalFiles  []string       `yaml:"critical_files"`
	ForkMarkers    []MarkerSpec   `yaml:"fork_specific_markers"`
	Upstream       UpstreamSpec   `yaml:"upstream"`
	Monitoring     MonitoringSpec `yaml:"monitoring"`
}

// UpstreamRef returns the remote-tracking ref the engine merges from.
func (c ProtectionConfig) UpstreamRef() string {
	return "upstream/" + c.Upstream.MainBranch
}

// Load reads and validates the protection document at the given path.
func Load(path string) (ProtectionConfig, error) {
	if strings.TrimSpace(path) == "" {
		return ProtectionConfig{}, fmt.Errorf("%w: config path is required", ErrInvalid)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return ProtectionConfig{}, fmt.Errorf("read protection config %s: %w", path, err)
	}

	var cfg ProtectionConfig
	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return ProtectionConfig{}, fmt.Errorf("%w: parse %s: %v", ErrInvalid, path, err)
	}

	if err := cfg.Validate(); err != nil {
		return ProtectionConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromRepo loads the protection document from its default location.
func LoadFromRepo(repoRoot string) (ProtectionConfig, error) {
	if strings.TrimSpace(repoRoot) == "" {
		return ProtectionConfig{}, fmt.Errorf("%w: repo root is required", ErrInvalid)
	}
	return Load(filepath.Join(repoRoot, DefaultFileName))
}

// Validate checks that every required field is present and non-empty.
func (c ProtectionConfig) Validate() error {
	if len(c.ProtectedPaths) == 0 {
		return fmt.Errorf("%w: protected_paths must list at least one path", ErrInvalid)
	}
	for i, path := range c.ProtectedPaths {
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("%w: protected_paths[%d] is empty", ErrInvalid, i)
		}
	}
	if len(c.CriticalFiles) == 0 {
		return fmt.Errorf("%w: critical_files must list at least one file", ErrInvalid)
	}
	for i, file := range c.CriticalFiles {
		if strings.TrimSpace(file) == "" {
			return fmt.Errorf("%w: critical_files[%d] is empty", ErrInvalid, i)
		}
	}
	if len(c.ForkMarkers) == 0 {
		return fmt.Errorf("%w: fork_specific_markers must list at least one marker", ErrInvalid)
	}
	for i, marker := range c.ForkMarkers {
		if strings.TrimSpace(marker.Pattern) == "" {
			return fmt.Errorf("%w: fork_specific_markers[%d].pattern is empty", ErrInvalid, i)
		}
	}
	if strings.TrimSpace(c.Upstream.Owner) == "" {
		return fmt.Errorf("%w: upstream.owner is required", ErrInvalid)
	}
	if strings.TrimSpace(c.Upstream.Repo) == "" {
		return fmt.Errorf("%w: upstream.repo is required", ErrInvalid)
	}
	if strings.TrimSpace(c.Upstream.MainBranch) == "" {
		return fmt.Errorf("%w: upstream.main_branch is required", ErrInvalid)
	}
	if c.Monitoring.MinMarkerCount <= 0 {
		return fmt.Errorf("%w: monitoring.min_marker_count must be positive", ErrInvalid)
	}
	if c.Monitoring.MaxExecutionSeconds <= 0 {
		return fmt.Errorf("%w: monitoring.max_execution_time must be positive", ErrInvalid)
	}
	return nil
}
