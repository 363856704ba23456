// Package notefacts derives procedure facts from the free text of an
// operative note with simple keyword heuristics.
package notefacts

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/ehr/pcsguide/internal/domain/rules"
)

// Flags recognised in note text besides the ones the rules consume.
const FlagDrainLeftInPlace = "drain left in place"

// DefaultQuery is used when nothing in the note suggests an index term.
const DefaultQuery = "procedure"

type approachPattern struct {
	re    *regexp.Regexp
	label string
}

// approachPatterns are tried in order; the first match wins.
var approachPatterns = []approachPattern{
	{regexp.MustCompile(`\bpercutaneous endoscopic\b`), "Percutaneous Endoscopic"},
	{regexp.MustCompile(`\bpercutaneous\b`), "Percutaneous"},
	{regexp.MustCompile(`via natural or artificial opening with percutaneous endoscopic assistance`), "Via Natural or Artificial Opening With Percutaneous Endoscopic Assistance"},
	{regexp.MustCompile(`via natural or artificial opening endoscopic`), "Via Natural or Artificial Opening Endoscopic"},
	{regexp.MustCompile(`\bvia natural or artificial opening\b`), "Via Natural or Artificial Opening"},
	{regexp.MustCompile(`\bopen\b`), "Open"},
	{regexp.MustCompile(`\bexternal\b`), "External"},
}

// strongTerms map a phrase in the note to the index term it implies.
var strongTerms = []struct{ needle, query string }{
	{"excisional debridement", "debridement"},
	{"irrigation and debridement", "debridement"},
	{"incision & drainage", "incision and drainage"},
	{"incision and drainage", "incision and drainage"},
	{"i & d", "incision and drainage"},
	{"biopsy", "biopsy"},
	{"excision", "excision"},
	{"resection", "resection"},
	{"debridement", "debridement"},
}

var anatomyVocabulary = []string{
	"groin", "thigh", "skin", "subcutaneous", "soft tissue", "arm", "leg",
	"hand", "foot", "abdomen", "chest", "back",
}

var longWordRe = regexp.MustCompile(`\b([a-z]{5,})\b`)

// Extract reads flags, approach, device, an index query and anatomy terms
// out of note text.
func Extract(text string) rules.Facts {
	t := strings.ToLower(norm.NFKC.String(text))

	f := rules.Facts{Flags: []string{}, AnatomyTerms: []string{}}
	if strings.Contains(t, "biopsy") {
		f.Flags = append(f.Flags, rules.FlagBiopsy)
	}
	if strings.Contains(t, "drain left in place") || strings.Contains(t, "jp drain") {
		f.Flags = append(f.Flags, FlagDrainLeftInPlace)
	}
	removed := strings.Contains(t, "removed at end") || strings.Contains(t, "no device left")
	if removed {
		f.Flags = append(f.Flags, rules.FlagRemovedAtEnd)
	}

	for _, p := range approachPatterns {
		if p.re.MatchString(t) {
			f.ApproachName = p.label
			break
		}
	}

	switch {
	case removed:
		f.DeviceName = rules.DeviceNone
	case strings.Contains(t, "stent"), strings.Contains(t, "implant"), strings.Contains(t, "catheter"):
		f.DeviceName = "Stent"
	}

	for _, st := range strongTerms {
		if strings.Contains(t, st.needle) {
			f.IndexQuery = st.query
			break
		}
	}
	if f.IndexQuery == "" {
		if m := longWordRe.FindStringSubmatch(t); m != nil {
			f.IndexQuery = m[1]
		} else {
			f.IndexQuery = DefaultQuery
		}
	}

	for _, organ := range anatomyVocabulary {
		if strings.Contains(t, organ) {
			f.AnatomyTerms = append(f.AnatomyTerms, organ)
		}
	}
	return f
}
