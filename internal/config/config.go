// Package config loads the strand.toml manifest that names the project and
// lists its build jobs.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"strand/internal/trace"
)

// ManifestName is the file looked up when discovering a project.
const ManifestName = "strand.toml"

// Manifest is a parsed strand.toml plus its location.
type Manifest struct {
	Path   string
	Root   string
	Config Project
}

// Project is the top-level manifest layout.
type Project struct {
	Project ProjectSection `toml:"project"`
	Sched   SchedSection   `toml:"sched"`
	Trace   TraceSection   `toml:"trace"`
	Jobs    []Job          `toml:"job"`
}

// ProjectSection names the project.
type ProjectSection struct {
	Name string `toml:"name"`
}

// SchedSection tunes the scheduler run loop.
type SchedSection struct {
	PollTimeoutMS int64 `toml:"poll_timeout_ms"`
}

// TraceSection configures runtime tracing.
type TraceSection struct {
	Level  string `toml:"level"`
	Path   string `toml:"path"`
	Format string `toml:"format"`
	Ring   int    `toml:"ring"`
}

// Job is one build job to run on the scheduler.
type Job struct {
	Name      string   `toml:"name"`
	Cmd       []string `toml:"cmd"`
	TimeoutMS int64    `toml:"timeout_ms"`
}

// Find walks up from startDir looking for strand.toml. The boolean reports
// whether a manifest was found.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ManifestName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// Load parses and validates the manifest at path.
func Load(path string) (*Manifest, error) {
	var cfg Project
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", path, err)
	}
	m := &Manifest{
		Path:   path,
		Root:   filepath.Dir(path),
		Config: cfg,
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %q: %w", path, err)
	}
	return m, nil
}

func (m *Manifest) validate() error {
	cfg := &m.Config
	if cfg.Project.Name == "" {
		return errors.New("project.name is required")
	}
	if cfg.Sched.PollTimeoutMS < 0 {
		return fmt.Errorf("sched.poll_timeout_ms must not be negative, got %d", cfg.Sched.PollTimeoutMS)
	}
	if cfg.Trace.Level != "" {
		if _, err := trace.ParseLevel(cfg.Trace.Level); err != nil {
			return fmt.Errorf("trace.level: %w", err)
		}
	}
	if cfg.Trace.Format != "" {
		if _, err := trace.ParseFormat(cfg.Trace.Format); err != nil {
			return fmt.Errorf("trace.format: %w", err)
		}
	}
	seen := make(map[string]struct{}, len(cfg.Jobs))
	for i, job := range cfg.Jobs {
		if job.Name == "" {
			return fmt.Errorf("job #%d: name is required", i+1)
		}
		if _, ok := seen[job.Name]; ok {
			return fmt.Errorf("job %q: duplicate name", job.Name)
		}
		seen[job.Name] = struct{}{}
		if len(job.Cmd) == 0 {
			return fmt.Errorf("job %q: cmd is required", job.Name)
		}
		if job.TimeoutMS < 0 {
			return fmt.Errorf("job %q: timeout_ms must not be negative", job.Name)
		}
	}
	return nil
}

// TraceConfig converts the trace section to a tracer configuration.
func (m *Manifest) TraceConfig() (trace.Config, error) {
	cfg := trace.Config{RingSize: m.Config.Trace.Ring}
	if m.Config.Trace.Level != "" {
		level, err := trace.ParseLevel(m.Config.Trace.Level)
		if err != nil {
			return trace.Config{}, err
		}
		cfg.Level = level
	}
	if m.Config.Trace.Format != "" {
		format, err := trace.ParseFormat(m.Config.Trace.Format)
		if err != nil {
			return trace.Config{}, err
		}
		cfg.Format = format
	}
	cfg.OutputPath = m.Config.Trace.Path
	return cfg, nil
}
