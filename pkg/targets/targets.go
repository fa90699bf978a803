// Package targets loads fetch target manifests (YAML/JSON) for the batch
// runner.
package targets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Target describes one URL to fetch and decode.
type Target struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	URL            string         `json:"url" yaml:"url"`
	RequestDelayMs int            `json:"request_delay_ms" yaml:"request_delay_ms"`
	Config         map[string]any `json:"config" yaml:"config"`
}

const defaultRequestDelayMs = 500

// Manifest holds the loaded set of targets, keyed by id for lookups.
type Manifest struct {
	targets []Target
	index   map[string]Target
}

type manifestFile struct {
	Targets []Target `json:"targets" yaml:"targets"`
}

// Load reads a target manifest from file. The format is chosen by file
// extension (.yaml/.yml/.json).
func Load(path string) (*Manifest, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("targets file path is empty")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}

	mf, err := parseManifest(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(mf.Targets) == 0 {
		return nil, errors.New("targets file contains no targets entries")
	}

	idx := make(map[string]Target, len(mf.Targets))
	out := make([]Target, 0, len(mf.Targets))
	for i := range mf.Targets {
		tgt := sanitizeTarget(mf.Targets[i])
		if err := validateTarget(tgt); err != nil {
			return nil, fmt.Errorf("target[%d]: %w", i, err)
		}
		if _, exists := idx[tgt.ID]; exists {
			return nil, fmt.Errorf("duplicate target id %q", tgt.ID)
		}
		idx[tgt.ID] = tgt
		out = append(out, tgt)
	}

	return &Manifest{targets: out, index: idx}, nil
}

// All returns a copy of the loaded targets in manifest order.
func (m *Manifest) All() []Target {
	if m == nil || len(m.targets) == 0 {
		return nil
	}
	out := make([]Target, len(m.targets))
	copy(out, m.targets)
	return out
}

// ByID returns the target with the given id, if present.
func (m *Manifest) ByID(id string) (Target, bool) {
	id = strings.TrimSpace(id)
	if m == nil || id == "" {
		return Target{}, false
	}
	tgt, ok := m.index[id]
	return tgt, ok
}

// Len returns the number of loaded targets.
func (m *Manifest) Len() int {
	if m == nil {
		return 0
	}
	return len(m.targets)
}

func parseManifest(data []byte, ext string) (manifestFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   func([]byte, any) error
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var mf manifestFile
		if err := d.fn(data, &mf); err == nil {
			return mf, nil
		}
	}

	return manifestFile{}, errors.New("targets file format not recognized (expected YAML or JSON)")
}

func sanitizeTarget(t Target) Target {
	t.ID = strings.TrimSpace(t.ID)
	t.Name = strings.TrimSpace(t.Name)
	t.URL = strings.TrimSpace(t.URL)
	if t.Config == nil {
		t.Config = map[string]any{}
	}
	if t.RequestDelayMs <= 0 {
		t.RequestDelayMs = defaultRequestDelayMs
	}
	return t
}

// RequestDelay returns the per-target politeness delay applied before the request.
func (t Target) RequestDelay() time.Duration {
	if t.RequestDelayMs <= 0 {
		return time.Duration(defaultRequestDelayMs) * time.Millisecond
	}
	return time.Duration(t.RequestDelayMs) * time.Millisecond
}

func validateTarget(t Target) error {
	if t.ID == "" {
		return errors.New("id is required")
	}
	if t.URL == "" {
		return fmt.Errorf("url is required for target %q", t.ID)
	}
	return nil
}
