package config

import (
	"os"
	"path/filepath"
	"testing"

	"agentd/pkg/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, "cfg.yaml", `
addr: ":9090"
backend_url: "http://127.0.0.1:11434"
workers: 8
max_queue_depth: 512
memory_limit_mb: 20480
breaker:
  failure_threshold: 7
  open_timeout_seconds: 45
profile:
  name: standard
  resources:
    - id: qwen2.5:14b
      size_mb: 9600
      priority: high
    - id: nomic-embed-text
      size_mb: 600
  roles:
    general: qwen2.5:14b
    embedding: nomic-embed-text
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.Workers != 8 || cfg.MaxQueueDepth != 512 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Breaker.FailureThreshold != 7 || cfg.Breaker.OpenTimeoutSeconds != 45 {
		t.Fatalf("breaker config: %+v", cfg.Breaker)
	}
	prof, err := cfg.Profile.ToProfile()
	if err != nil {
		t.Fatalf("ToProfile: %v", err)
	}
	if prof.Name != "standard" || len(prof.Resources) != 2 {
		t.Fatalf("profile: %+v", prof)
	}
	r, ok := prof.Resource("qwen2.5:14b")
	if !ok || r.Priority != types.PriorityHigh || r.SizeMB != 9600 {
		t.Fatalf("resource: %+v ok=%v", r, ok)
	}
	// Unset priority defaults to normal.
	r, _ = prof.Resource("nomic-embed-text")
	if r.Priority != types.PriorityNormal {
		t.Fatalf("default priority = %s, want normal", r.Priority)
	}
}

func TestLoadJSON(t *testing.T) {
	p := writeFile(t, "cfg.json", `{
  "addr": ":8081",
  "memory_limit_mb": 4096,
  "profile": {"name": "tiny", "resources": [{"id": "m", "size_mb": 100}]}
}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8081" || cfg.MemoryLimitMB != 4096 || cfg.Profile.Name != "tiny" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	p := writeFile(t, "cfg.toml", `
addr = ":8082"
workers = 2

[profile]
name = "tiny"

[[profile.resources]]
id = "m"
size_mb = 100
priority = "critical"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8082" || cfg.Workers != 2 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.Profile.Resources) != 1 || cfg.Profile.Resources[0].Priority != "critical" {
		t.Fatalf("profile: %+v", cfg.Profile)
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	p := writeFile(t, "cfg.ini", "addr=:8080")
	if _, err := Load(p); err == nil {
		t.Fatalf("Load(.ini) succeeded, want error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("Load(missing) succeeded, want error")
	}
	if _, err := Load(""); err == nil {
		t.Fatalf("Load(\"\") succeeded, want error")
	}
}

func TestToProfileValidation(t *testing.T) {
	cases := []struct {
		name string
		pc   ProfileConfig
	}{
		{"missing name", ProfileConfig{Resources: []ResourceConfig{{ID: "m", SizeMB: 1}}}},
		{"missing resource id", ProfileConfig{Name: "p", Resources: []ResourceConfig{{SizeMB: 1}}}},
		{"non-positive size", ProfileConfig{Name: "p", Resources: []ResourceConfig{{ID: "m"}}}},
		{"bad priority", ProfileConfig{Name: "p", Resources: []ResourceConfig{{ID: "m", SizeMB: 1, Priority: "urgent"}}}},
		{"dangling role", ProfileConfig{Name: "p", Resources: []ResourceConfig{{ID: "m", SizeMB: 1}}, Roles: map[string]string{"general": "ghost"}}},
	}
	for _, tc := range cases {
		if _, err := tc.pc.ToProfile(); err == nil {
			t.Errorf("%s: ToProfile succeeded, want error", tc.name)
		}
	}
}
