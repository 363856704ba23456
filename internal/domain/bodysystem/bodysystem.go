package bodysystem

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ehr/pcsguide/internal/domain/pcstables"
)

// MedicalSurgical is the section character the map describes.
const MedicalSurgical = "0"

// Entry is one body system of the section.
type Entry struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Map lists the body systems valid in the Medical and Surgical section.
type Map struct {
	Section      string   `json:"section"`
	AllowedChars []string `json:"allowed_chars_in_section"`
	Systems      []Entry  `json:"body_systems"`
}

// Allows reports whether c is a valid body-system character.
func (m *Map) Allows(c string) bool {
	return slices.Contains(m.AllowedChars, c)
}

// LoadFile reads and validates the body-system JSON at path.
func LoadFile(path string) (*Map, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read body systems %s: %w", path, err)
	}
	m, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("body systems %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes a body-system document. The section must be "0" and both the
// allowed characters and the body system map must be present.
func Parse(data []byte) (*Map, error) {
	var doc struct {
		Section      string                     `json:"section"`
		AllowedChars json.RawMessage            `json:"allowed_chars_in_section"`
		SystemMap    map[string]json.RawMessage `json:"body_system_map"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Section != MedicalSurgical {
		return nil, fmt.Errorf("section must be %q for Medical and Surgical, got %q", MedicalSurgical, doc.Section)
	}
	if len(doc.AllowedChars) == 0 || doc.SystemMap == nil {
		return nil, errors.New("missing allowed_chars_in_section or body_system_map")
	}

	m := &Map{Section: doc.Section}
	var chars []string
	if err := json.Unmarshal(doc.AllowedChars, &chars); err != nil {
		var s string
		if err := json.Unmarshal(doc.AllowedChars, &s); err != nil {
			return nil, fmt.Errorf("allowed_chars_in_section: %w", err)
		}
		chars = strings.Split(s, "")
	}
	m.AllowedChars = chars

	for _, code := range slices.Sorted(maps.Keys(doc.SystemMap)) {
		m.Systems = append(m.Systems, Entry{Code: code, Name: entryName(doc.SystemMap[code])})
	}
	return m, nil
}

// entryName accepts either a plain name or an object carrying one.
func entryName(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var obj map[string]any
	if json.Unmarshal(raw, &obj) == nil {
		for _, k := range []string{"name", "title", "label"} {
			if v, ok := obj[k].(string); ok {
				return v
			}
		}
	}
	return ""
}

// CheckTables logs every Medical and Surgical table whose body system is not
// listed and returns how many were found.
func (m *Map) CheckTables(tables []*pcstables.Table, logger zerolog.Logger) int {
	n := 0
	for _, t := range tables {
		if t.Section != MedicalSurgical || m.Allows(t.BodySystem) {
			continue
		}
		n++
		logger.Warn().Str("prefix", t.Prefix()).Str("body_system", t.BodySystem).
			Msg("table body system not in section map")
	}
	return n
}
