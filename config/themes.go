package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"esimchain/native/benefits"
	"esimchain/native/esim"
)

type themesFile struct {
	Themes map[string]benefits.ThemeBenefit `yaml:"themes"`
}

// LoadThemes reads a YAML theme-benefit table. Entries override the built-in
// table of the same tag and new tags are registered alongside it.
func LoadThemes(path string) (map[string]benefits.ThemeBenefit, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read themes file: %w", err)
	}
	var doc themesFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode themes file %s: %w", path, err)
	}
	out := make(map[string]benefits.ThemeBenefit, len(doc.Themes))
	for tag, benefit := range doc.Themes {
		theme := esim.NormalizeTheme(tag)
		if theme == "" {
			return nil, fmt.Errorf("themes file %s: empty theme tag", path)
		}
		if err := benefit.Validate(); err != nil {
			return nil, fmt.Errorf("themes file %s: theme %s: %w", path, theme, err)
		}
		out[theme] = benefit
	}
	return out, nil
}
