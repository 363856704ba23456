package resolver

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDeviceResolver() *DeviceResolver {
	return NewDeviceResolver(
		map[string][]string{
			"Stent":    {"Intraluminal Device"},
			"DES":      {"Intraluminal Device, Drug-eluting", "Intraluminal Device"},
			"JP Drain": {"Drainage Device"},
		},
		[]AggregationRow{
			{Device: "Intraluminal Device, Drug-eluting", Parent: StringList{"Intraluminal Device"}, Operations: StringList{"Dilation"}},
			{Device: "Intraluminal Device", Parent: StringList{"Intraluminal Device, Two"}, Operations: StringList{"Dilation"}, BodySystems: StringList{"2"}},
			{Device: "Drainage Device", Parent: StringList{"Drain"}, Operations: StringList{WildcardOperation}},
			{Device: "Autologous Tissue Substitute", Parent: StringList{"Tissue Substitute", "Autologous"}},
		},
	)
}

// =========== DeviceResolver ===========

func TestDeviceResolver_NormalizeTerms(t *testing.T) {
	r := newDeviceResolver()

	t.Run("mapped term expands case-insensitively", func(t *testing.T) {
		assert.Equal(t, []string{"Intraluminal Device"}, r.NormalizeTerms("stent"))
	})

	t.Run("unmapped term passes through unchanged", func(t *testing.T) {
		assert.Equal(t, []string{"Radioactive Element"}, r.NormalizeTerms("Radioactive Element"))
	})

	t.Run("split on separator and dedupe across terms", func(t *testing.T) {
		got := r.NormalizeTerms(" DES / Stent / Mesh ")
		assert.Equal(t, []string{"Intraluminal Device, Drug-eluting", "Intraluminal Device", "Mesh"}, got)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, r.NormalizeTerms(""))
		assert.Empty(t, r.NormalizeTerms(" / "))
	})
}

func TestDeviceResolver_AggregateForTable(t *testing.T) {
	r := newDeviceResolver()

	tests := []struct {
		name       string
		device     string
		op         string
		bodySystem string
		want       []string
	}{
		{"operation substring match", "Intraluminal Device, Drug-eluting", "Dilation", "3",
			[]string{"Intraluminal Device, Drug-eluting", "Intraluminal Device"}},
		{"operation mismatch keeps device only", "Intraluminal Device, Drug-eluting", "Excision", "3",
			[]string{"Intraluminal Device, Drug-eluting"}},
		{"body system filter rejects", "Intraluminal Device", "Dilation", "3",
			[]string{"Intraluminal Device"}},
		{"body system filter accepts", "Intraluminal Device", "Dilation", "2",
			[]string{"Intraluminal Device", "Intraluminal Device, Two"}},
		{"no body system filter active", "Intraluminal Device", "Dilation", "",
			[]string{"Intraluminal Device", "Intraluminal Device, Two"}},
		{"wildcard operation", "Drainage Device", "Drainage", "J",
			[]string{"Drainage Device", "Drain"}},
		{"no operations declared", "Autologous Tissue Substitute", "Replacement", "J",
			[]string{"Autologous Tissue Substitute", "Tissue Substitute", "Autologous"}},
		{"device must match exactly", "drainage device", "Drainage", "J",
			[]string{"drainage device"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.AggregateForTable(tt.device, tt.op, tt.bodySystem))
		})
	}
}

// =========== BodyPartResolver ===========

func TestBodyPartResolver_ResolveAllowedLabels(t *testing.T) {
	r := NewBodyPartResolver(map[string][]string{
		"Skin":  {"Skin", "Subcutaneous Tissue"},
		"groin": {"Inguinal Region", "skin"},
		"thigh": {"Upper Leg"},
	})

	t.Run("expands and dedupes case-insensitively", func(t *testing.T) {
		got := r.ResolveAllowedLabels([]string{"skin", "GROIN"})
		assert.Equal(t, []string{"Skin", "Subcutaneous Tissue", "Inguinal Region"}, got)
	})

	t.Run("unmapped terms contribute nothing", func(t *testing.T) {
		assert.Equal(t, []string{}, r.ResolveAllowedLabels([]string{"elbow"}))
		assert.Equal(t, []string{"Upper Leg"}, r.ResolveAllowedLabels([]string{"elbow", "thigh"}))
	})

	t.Run("nil input", func(t *testing.T) {
		assert.Empty(t, r.ResolveAllowedLabels(nil))
	})
}

// The two resolvers treat unknown terms differently and the navigator
// filters depend on it.
func TestResolvers_UnknownTermAsymmetry(t *testing.T) {
	dev := NewDeviceResolver(map[string][]string{}, nil)
	bp := NewBodyPartResolver(map[string][]string{})

	assert.Equal(t, []string{"Widget"}, dev.NormalizeTerms("Widget"))
	assert.Empty(t, bp.ResolveAllowedLabels([]string{"Widget"}))
}

// =========== StringList ===========

func TestStringList_UnmarshalJSON(t *testing.T) {
	var row AggregationRow
	require.NoError(t, json.Unmarshal([]byte(`{"device":"D","parent":"P","operations":["A","B"]}`), &row))
	assert.Equal(t, StringList{"P"}, row.Parent)
	assert.Equal(t, StringList{"A", "B"}, row.Operations)
	assert.Nil(t, row.BodySystems)

	var empty StringList
	require.NoError(t, json.Unmarshal([]byte(`""`), &empty))
	assert.Nil(t, empty)

	assert.Error(t, json.Unmarshal([]byte(`42`), &empty))
}

// =========== Loaders ===========

func writeJSON(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestReadDeviceFiles(t *testing.T) {
	key := writeJSON(t, "device_key.json", `{"data": {"Stent": ["Intraluminal Device"], "Drain": "Drainage Device"}}`)
	agg := writeJSON(t, "device_aggregation.json", `[{"device":"Intraluminal Device","parent":"Intraluminal Device, Two","operations":["Dilation"],"body_systems":["2","3"]}]`)

	r, err := ReadDeviceFiles(key, agg)
	require.NoError(t, err)
	assert.Equal(t, []string{"Drainage Device"}, r.NormalizeTerms("drain"))
	assert.Equal(t, []string{"Intraluminal Device", "Intraluminal Device, Two"},
		r.AggregateForTable("Intraluminal Device", "Dilation", "3"))
}

func TestReadDeviceFiles_WrappedAggregation(t *testing.T) {
	key := writeJSON(t, "device_key.json", `{"Stent": ["Intraluminal Device"]}`)
	agg := writeJSON(t, "device_aggregation.json", `{"data": [{"device":"Intraluminal Device","parent":["Parent"]}]}`)

	r, err := ReadDeviceFiles(key, agg)
	require.NoError(t, err)
	assert.Equal(t, []string{"Intraluminal Device", "Parent"}, r.AggregateForTable("Intraluminal Device", "Bypass", "4"))
}

func TestLoadDevice_DegradesToNil(t *testing.T) {
	dir := t.TempDir()
	good := writeJSON(t, "device_key.json", `{"Stent": ["Intraluminal Device"]}`)
	bad := writeJSON(t, "device_aggregation.json", `{"data": [`)

	assert.Nil(t, LoadDevice("", "", zerolog.Nop()))
	assert.Nil(t, LoadDevice(good, filepath.Join(dir, "missing.json"), zerolog.Nop()))
	assert.Nil(t, LoadDevice(good, bad, zerolog.Nop()))
}

func TestLoadBodyPart(t *testing.T) {
	path := writeJSON(t, "body_part_key.json", `{"data": {"Skin": ["Skin"]}}`)

	r := LoadBodyPart(path, zerolog.Nop())
	require.NotNil(t, r)
	assert.Equal(t, []string{"Skin"}, r.ResolveAllowedLabels([]string{"skin"}))

	assert.Nil(t, LoadBodyPart("", zerolog.Nop()))
	assert.Nil(t, LoadBodyPart(writeJSON(t, "bad.json", `[1,2]`), zerolog.Nop()))
}

func TestReadBodyPartFile_NamesFile(t *testing.T) {
	_, err := ReadBodyPartFile(writeJSON(t, "broken_key.json", `{"skin": 7}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken_key.json")
}
