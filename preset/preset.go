// Package preset saves and loads operator parameter values as JSON files
// under ~/.config/grain-surface/presets.
package preset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"grain-surface/params"
)

var ErrName = errors.New("invalid preset name")

// Preset is one saved parameter set
type Preset struct {
	Name   string             `json:"name"`
	Saved  time.Time          `json:"saved"`
	Values map[string]float64 `json:"values"`
}

// Dir returns the presets directory path
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "grain-surface", "presets"), nil
}

func path(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrName, name)
	}
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name+".json"), nil
}

// List returns all preset names, sorted
func List() ([]string, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}

	sort.Strings(names)
	return names, nil
}

// Save writes values under name, replacing an existing preset
func Save(name string, values map[string]float64) error {
	p, err := path(name)
	if err != nil {
		return err
	}

	// Create presets directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("create presets dir: %w", err)
	}

	data, err := json.MarshalIndent(Preset{
		Name:   strings.TrimSpace(name),
		Saved:  time.Now().Truncate(time.Second),
		Values: values,
	}, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(p, data, 0644); err != nil {
		return fmt.Errorf("save preset: %w", err)
	}
	return nil
}

// Load reads a preset by name
func Load(name string) (*Preset, error) {
	p, err := path(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("load preset: %w", err)
	}

	var pr Preset
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("parse preset %s: %w", name, err)
	}
	if pr.Values == nil {
		pr.Values = map[string]float64{}
	}
	return &pr, nil
}

// Delete removes a preset
func Delete(name string) error {
	p, err := path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return fmt.Errorf("delete preset: %w", err)
	}
	return nil
}

// Known returns the values whose names are in fields. Unknown names are
// dropped and reported with params.ErrUnknown.
func (p *Preset) Known(fields []string) (map[string]float64, error) {
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f] = true
	}

	out := make(map[string]float64, len(p.Values))
	var unknown []string
	for name, v := range p.Values {
		if known[name] {
			out[name] = v
			continue
		}
		unknown = append(unknown, name)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return out, fmt.Errorf("%w: %s", params.ErrUnknown, strings.Join(unknown, ", "))
	}
	return out, nil
}
