package pcsindex

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

const fixtureIndex = `<?xml version="1.0" encoding="UTF-8"?>
<ICD10PCS.index>
  <letter>
    <title>B</title>
    <mainTerm>
      <title>Biopsy</title>
      <use>Excision with qualifier Diagnostic</use>
      <use>Extraction with qualifier Diagnostic</use>
    </mainTerm>
  </letter>
  <letter>
    <title>D</title>
    <mainTerm>
      <title>Debridement</title>
      <term>
        <title>Excisional</title>
        <see>Excision</see>
      </term>
      <term>
        <title>Non-excisional</title>
        <see>Extraction</see>
      </term>
    </mainTerm>
    <mainTerm>
      <title>Drainage</title>
      <term>
        <title>Skin</title>
        <codes>0H9</codes>
      </term>
      <term>
        <title>Subcutaneous Tissue</title>
        <codes>0J9</codes>
        <term>
          <title>Groin</title>
          <code>0J9C0ZZ</code>
        </term>
      </term>
    </mainTerm>
  </letter>
  <letter>
    <title>E</title>
    <mainTerm>
      <title>Excision</title>
      <term>
        <title>Skin</title>
        <tab>0HB</tab>
        <codes>0HB</codes>
      </term>
      <term>
        <title>Subcutaneous Tissue</title>
        <codes>0JB</codes>
      </term>
    </mainTerm>
  </letter>
</ICD10PCS.index>`

func loadFixture(t *testing.T) *Index {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.xml")
	if err := os.WriteFile(path, []byte(fixtureIndex), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	ix, err := LoadFile(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	return ix
}

// =========== Loading ===========

func TestLoadFile_MainTerms(t *testing.T) {
	ix := loadFixture(t)
	if ix.MainTermCount() != 4 {
		t.Errorf("expected 4 main terms, got %d", ix.MainTermCount())
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.xml"), zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "nope.xml") {
		t.Errorf("expected error to name the file, got %v", err)
	}
}

func TestLoadFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.xml")
	if err := os.WriteFile(path, []byte("<ICD10PCS.index><letter>"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadFile(path, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for malformed XML")
	}
	if !strings.Contains(err.Error(), "broken.xml") {
		t.Errorf("expected error to name the file, got %v", err)
	}
}

// =========== Lookup ===========

func TestLookup_MainTermReturnsDescendantLeaves(t *testing.T) {
	ix := loadFixture(t)
	hits := ix.Lookup("drainage", 0)

	want := []IndexHit{
		{TermPath: []string{"Drainage", "Skin"}, Kind: KindCodes, Value: "0H9", CodePrefixes: []string{"0H9"}},
		{TermPath: []string{"Drainage", "Subcutaneous Tissue"}, Kind: KindCodes, Value: "0J9", CodePrefixes: []string{"0J9"}},
		{TermPath: []string{"Drainage", "Subcutaneous Tissue", "Groin"}, Kind: KindCode, Value: "0J9C0ZZ", CodePrefixes: []string{"0J9C0ZZ"}},
	}
	if !reflect.DeepEqual(hits, want) {
		t.Errorf("unexpected hits:\n got %+v\nwant %+v", hits, want)
	}
}

func TestLookup_CaseInsensitive(t *testing.T) {
	ix := loadFixture(t)
	upper := ix.Lookup("EXCISION", 0)
	lower := ix.Lookup("excision", 0)
	if len(upper) == 0 {
		t.Fatal("expected hits for EXCISION")
	}
	if !reflect.DeepEqual(upper, lower) {
		t.Error("expected case-insensitive lookups to agree")
	}
}

func TestLookup_NestedTermMatch(t *testing.T) {
	ix := loadFixture(t)
	hits := ix.Lookup("groin", 0)
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if got := strings.Join(hits[0].TermPath, " > "); got != "Drainage > Subcutaneous Tissue > Groin" {
		t.Errorf("unexpected term path %q", got)
	}
}

func TestLookup_SubtreeEmittedOnce(t *testing.T) {
	ix := loadFixture(t)
	// "Subcutaneous Tissue" matches on two branches.
	hits := ix.Lookup("tissue", 0)
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d: %+v", len(hits), hits)
	}
	seen := make(map[string]bool)
	for _, h := range hits {
		k := dedupKey(h)
		if seen[k] {
			t.Errorf("duplicate hit %+v", h)
		}
		seen[k] = true
	}
}

func TestLookup_LeafOrderWithinNode(t *testing.T) {
	ix := loadFixture(t)
	hits := ix.Lookup("excision", 0)
	var kinds []Kind
	for _, h := range hits {
		if len(h.TermPath) == 2 && h.TermPath[1] == "Skin" {
			kinds = append(kinds, h.Kind)
		}
	}
	want := []Kind{KindCodes, KindTable}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("expected kinds %v, got %v", want, kinds)
	}
}

func TestLookup_CrossReferences(t *testing.T) {
	ix := loadFixture(t)
	hits := ix.Lookup("debridement", 0)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	for _, h := range hits {
		if h.Kind != KindSee {
			t.Errorf("expected see hit, got %s", h.Kind)
		}
		if h.CodePrefixes == nil {
			t.Error("expected non-nil prefixes")
		}
	}
}

func TestLookup_EmptyQuery(t *testing.T) {
	ix := loadFixture(t)
	for _, q := range []string{"", "   ", "\t"} {
		if hits := ix.Lookup(q, 0); len(hits) != 0 {
			t.Errorf("query %q: expected no hits, got %d", q, len(hits))
		}
	}
}

func TestLookup_NoMatch(t *testing.T) {
	ix := loadFixture(t)
	hits := ix.Lookup("zzzz", 10)
	if hits == nil || len(hits) != 0 {
		t.Errorf("expected empty non-nil result, got %#v", hits)
	}
}

func TestLookup_MaxResults(t *testing.T) {
	ix := loadFixture(t)
	hits := ix.Lookup("drainage", 2)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Value != "0H9" || hits[1].Value != "0J9" {
		t.Errorf("expected the first two hits in document order, got %+v", hits)
	}
}

func TestHits_StopsEarly(t *testing.T) {
	ix := loadFixture(t)
	n := 0
	for range ix.Hits("s") {
		n++
		if n == 1 {
			break
		}
	}
	if n != 1 {
		t.Errorf("expected iteration to stop after 1 hit, got %d", n)
	}
}

func TestLookup_Deduplicates(t *testing.T) {
	ix := NewIndex([]*Node{{
		Title: "Resection",
		Leaves: []Leaf{
			{Kind: KindCodes, Value: "0JT"},
			{Kind: KindCodes, Value: "0JT"},
			{Kind: KindCode, Value: "0JT"},
		},
	}})
	hits := ix.Lookup("resection", 0)
	if len(hits) != 2 {
		t.Fatalf("expected 2 distinct hits, got %d", len(hits))
	}
}

// =========== ExtractCodePrefixes ===========

func TestExtractCodePrefixes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"full code", "0HBJXZX", []string{"0HBJXZX"}},
		{"table prefix", "0JB", []string{"0JB"}},
		{"lower-case input", "0jb", []string{"0JB"}},
		{"several tokens", "0H9 or 0J9", []string{"0H9", "0J9"}},
		{"long run splits greedily", "0123456789", []string{"0123456", "789"}},
		{"too short", "0H", []string{}},
		{"punctuation separates", "0J9-0JB", []string{"0J9", "0JB"}},
		{"empty", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractCodePrefixes(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractCodePrefixes(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
