package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ManifestName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
	return path
}

const validManifest = `
[project]
name = "demo"

[sched]
poll_timeout_ms = 500

[trace]
level = "task"
format = "msgpack"

[[job]]
name = "build"
cmd = ["go", "build", "./..."]
timeout_ms = 60000

[[job]]
name = "vet"
cmd = ["go", "vet", "./..."]
`

func TestLoadValidManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, validManifest)

	m, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if m.Config.Project.Name != "demo" {
		t.Fatalf("project name = %q, want demo", m.Config.Project.Name)
	}
	if m.Root != dir {
		t.Fatalf("root = %q, want %q", m.Root, dir)
	}
	if len(m.Config.Jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(m.Config.Jobs))
	}
	if m.Config.Jobs[0].TimeoutMS != 60000 {
		t.Fatalf("build timeout = %d, want 60000", m.Config.Jobs[0].TimeoutMS)
	}
	tc, err := m.TraceConfig()
	if err != nil {
		t.Fatalf("trace config failed: %v", err)
	}
	if tc.Level.String() != "task" || tc.Format.String() != "msgpack" {
		t.Fatalf("trace config = %v/%v, want task/msgpack", tc.Level, tc.Format)
	}
}

func TestLoadRejectsBadManifests(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing project name", "[[job]]\nname = \"a\"\ncmd = [\"true\"]\n"},
		{"job without cmd", "[project]\nname = \"x\"\n[[job]]\nname = \"a\"\n"},
		{"duplicate job names", "[project]\nname = \"x\"\n[[job]]\nname = \"a\"\ncmd = [\"true\"]\n[[job]]\nname = \"a\"\ncmd = [\"true\"]\n"},
		{"bad trace level", "[project]\nname = \"x\"\n[trace]\nlevel = \"loud\"\n"},
		{"negative timeout", "[project]\nname = \"x\"\n[[job]]\nname = \"a\"\ncmd = [\"true\"]\ntimeout_ms = -5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeManifest(t, t.TempDir(), tt.content)
			if _, err := Load(path); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestFindWalksUp(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[project]\nname = \"x\"\n")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}

	path, ok, err := Find(nested)
	if err != nil || !ok {
		t.Fatalf("find failed: ok=%v err=%v", ok, err)
	}
	if filepath.Dir(path) != root {
		t.Fatalf("found %q, want manifest in %q", path, root)
	}
}

func TestFindReportsMissing(t *testing.T) {
	_, ok, err := Find(t.TempDir())
	if err != nil {
		t.Fatalf("find failed: %v", err)
	}
	if ok {
		t.Fatalf("found a manifest where none exists")
	}
}
