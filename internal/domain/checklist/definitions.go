package checklist

import (
	_ "embed"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed checklists.yaml
var defaultDefinitionsYAML []byte

// DefaultDefinitions returns the built-in checklist definitions.
func DefaultDefinitions() ([]Definition, error) {
	return ParseDefinitions(defaultDefinitionsYAML)
}

// ParseDefinitions decodes checklist definitions from YAML and checks that
// every keyword pattern compiles.
func ParseDefinitions(data []byte) ([]Definition, error) {
	var defs []Definition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse checklist definitions: %w", err)
	}
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("checklist definition without id")
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("duplicate checklist definition %q", d.ID)
		}
		seen[d.ID] = true
		if _, err := compileKeywords(d.Keywords); err != nil {
			return nil, fmt.Errorf("checklist %s: %w", d.ID, err)
		}
	}
	return defs, nil
}

func compileKeywords(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("keyword %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}
