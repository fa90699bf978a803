package targets

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeManifest(t *testing.T, name, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatalf("write targets file: %v", err)
	}
	return file
}

func TestLoadYAML(t *testing.T) {
	file := writeManifest(t, "targets.yaml", `
targets:
  - id: user-1
    name: Example User
    url: https://api.example.com/user/1
    request_delay_ms: 750
    config:
      user_agent: fetchctl/1.0
      accept: application/json
  - id: health
    url: https://api.example.com/health
`)

	mf, err := Load(file)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if mf.Len() != 2 {
		t.Fatalf("expected 2 targets, got %d", mf.Len())
	}

	tgt, ok := mf.ByID("user-1")
	if !ok {
		t.Fatal("expected target id user-1 to be loaded")
	}
	if tgt.URL != "https://api.example.com/user/1" {
		t.Fatalf("unexpected url: %s", tgt.URL)
	}
	if tgt.RequestDelay() != 750*time.Millisecond {
		t.Fatalf("unexpected request delay: %v", tgt.RequestDelay())
	}

	health, ok := mf.ByID("health")
	if !ok {
		t.Fatal("expected target id health to be loaded")
	}
	if health.RequestDelay() != 500*time.Millisecond {
		t.Fatalf("expected default request delay, got %v", health.RequestDelay())
	}

	headers := Headers(tgt)
	if headers["User-Agent"] != "fetchctl/1.0" {
		t.Fatalf("unexpected User-Agent: %q", headers["User-Agent"])
	}
	if headers["Accept"] != "application/json" {
		t.Fatalf("unexpected Accept: %q", headers["Accept"])
	}
	if _, ok := headers["Accept-Language"]; ok {
		t.Fatal("expected unset header keys to be skipped")
	}
}

func TestLoadJSON(t *testing.T) {
	file := writeManifest(t, "targets.json", `{
  "targets": [
    {"id": "one", "url": "https://api.example.com/one"}
  ]
}`)

	mf, err := Load(file)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if _, ok := mf.ByID("one"); !ok {
		t.Fatal("expected target id one to be loaded")
	}
}

func TestLoadDuplicateID(t *testing.T) {
	file := writeManifest(t, "targets.yaml", `
targets:
  - id: dup
    url: https://a.example
  - id: dup
    url: https://b.example
`)

	if _, err := Load(file); err == nil {
		t.Fatal("expected error for duplicate target id")
	}
}

func TestLoadMissingURL(t *testing.T) {
	file := writeManifest(t, "targets.yaml", `
targets:
  - id: nourl
`)

	if _, err := Load(file); err == nil {
		t.Fatal("expected error for target without url")
	}
}

func TestLoadEmptyManifest(t *testing.T) {
	file := writeManifest(t, "targets.yaml", "targets: []\n")

	if _, err := Load(file); err == nil {
		t.Fatal("expected error for empty manifest")
	}
}

func TestConfigStringFallback(t *testing.T) {
	tgt := Target{Config: map[string]any{"user_agent": "   "}}
	if got := ConfigString(tgt, "user_agent", "default"); got != "default" {
		t.Fatalf("expected fallback for blank value, got %q", got)
	}
	if got := ConfigString(Target{}, "missing", "fb"); got != "fb" {
		t.Fatalf("expected fallback for missing key, got %q", got)
	}
}
