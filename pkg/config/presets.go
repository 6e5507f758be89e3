package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"jordanella.com/spotter-go/pkg/patterns"
	"jordanella.com/spotter-go/pkg/spotter"
)

// Presets are named region rectangles and pattern files declared in YAML,
// so automation scripts can refer to screen areas and needles by name.
type Presets struct {
	Regions  map[string]RegionPreset `yaml:"regions"`
	Patterns []PatternPreset         `yaml:"patterns"`
}

// RegionPreset is a named screen rectangle.
type RegionPreset struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	W int `yaml:"w"`
	H int `yaml:"h"`
}

// PatternPreset declares a pattern file for registration in a cache.
type PatternPreset struct {
	Name    string `yaml:"name"`
	Path    string `yaml:"path"`
	Preload bool   `yaml:"preload"`
}

// LoadPresets reads a YAML preset file.
func LoadPresets(path string) (*Presets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets file: %w", err)
	}

	var presets Presets
	if err := yaml.Unmarshal(data, &presets); err != nil {
		return nil, fmt.Errorf("failed to parse presets file: %w", err)
	}

	for name, r := range presets.Regions {
		if r.W <= 0 || r.H <= 0 {
			return nil, fmt.Errorf("region %q has non-positive size %dx%d", name, r.W, r.H)
		}
		if r.X < 0 || r.Y < 0 {
			return nil, fmt.Errorf("region %q has negative origin (%d,%d)", name, r.X, r.Y)
		}
	}
	for i, p := range presets.Patterns {
		if p.Name == "" || p.Path == "" {
			return nil, fmt.Errorf("pattern %d missing name or path", i)
		}
	}

	return &presets, nil
}

// Region constructs the named region against a session.
func (p *Presets) Region(s *spotter.Session, name string) (*spotter.Region, error) {
	preset, ok := p.Regions[name]
	if !ok {
		return nil, fmt.Errorf("region %q not declared", name)
	}
	return s.Region(preset.X, preset.Y, preset.W, preset.H), nil
}

// RegisterPatterns registers every declared pattern into cache.
func (p *Presets) RegisterPatterns(cache *patterns.Cache) error {
	for _, decl := range p.Patterns {
		if err := cache.Register(decl.Name, decl.Path, decl.Preload); err != nil {
			return fmt.Errorf("register pattern %q: %w", decl.Name, err)
		}
	}
	return nil
}
