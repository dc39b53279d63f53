// Package siteconfig parses the per-site configuration file
// (config/site.toml) read while a site context is being built.
package siteconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// RelPath is the location of the configuration file inside a site folder.
const RelPath = "config/site.toml"

// Sentinel errors for site configuration parsing.
var (
	// ErrInvalidJob indicates a [[jobs]] entry is missing a field or has a bad interval.
	ErrInvalidJob = errors.New("invalid job")
	// ErrDuplicateJob indicates two jobs share a name.
	ErrDuplicateJob = errors.New("duplicate job name")
)

// Job is one [[jobs]] table as written in site.toml.
type Job struct {
	Name     string `toml:"name"`
	Script   string `toml:"script"`
	Interval string `toml:"interval"`
}

// JobSpec is a validated job with its interval parsed.
type JobSpec struct {
	Name     string
	Script   string
	Interval time.Duration
}

// Config is the decoded content of site.toml.
type Config struct {
	// WarmUp pre-loads content into the store cache during initialization.
	WarmUp bool `toml:"warm_up"`
	// WarmPaths restricts the warm-up to these folder prefixes; empty means all.
	WarmPaths []string `toml:"warm_paths"`
	// InitScript names the script run as the last initialization step.
	InitScript string `toml:"init_script"`
	// Sandbox enables the script sandbox for this site.
	Sandbox bool `toml:"sandbox"`
	// Jobs are the scheduled scripts of the site.
	Jobs []Job `toml:"jobs"`
	// Properties are free-form values exposed to scripts and templates.
	Properties map[string]any `toml:"properties"`
}

// Default returns the configuration used when a site has no site.toml.
func Default() *Config {
	return &Config{Sandbox: true, Properties: map[string]any{}}
}

// Parse decodes site.toml content on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("siteconfig: decode: %w", err)
	}
	if _, err := cfg.JobSpecs(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads site.toml from siteRoot. A missing file yields Default().
func Load(siteRoot string) (*Config, error) {
	path := filepath.Join(siteRoot, filepath.FromSlash(RelPath))
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("siteconfig: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// JobSpecs validates the jobs and returns them with parsed intervals.
func (c *Config) JobSpecs() ([]JobSpec, error) {
	specs := make([]JobSpec, 0, len(c.Jobs))
	seen := make(map[string]bool, len(c.Jobs))
	for i, j := range c.Jobs {
		if j.Name == "" || j.Script == "" {
			return nil, fmt.Errorf("siteconfig: jobs[%d]: %w: name and script are required", i, ErrInvalidJob)
		}
		if seen[j.Name] {
			return nil, fmt.Errorf("siteconfig: %w: %q", ErrDuplicateJob, j.Name)
		}
		seen[j.Name] = true

		d, err := time.ParseDuration(j.Interval)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("siteconfig: job %q: %w: interval %q", j.Name, ErrInvalidJob, j.Interval)
		}
		specs = append(specs, JobSpec{Name: j.Name, Script: j.Script, Interval: d})
	}
	return specs, nil
}
