package navigator

import (
	"github.com/ehr/pcsguide/internal/domain/pcsindex"
	"github.com/ehr/pcsguide/internal/domain/pcstables"
	"github.com/ehr/pcsguide/internal/domain/rules"
)

// IndexSearcher finds coded references for a free-text term.
type IndexSearcher interface {
	Lookup(query string, maxResults int) []pcsindex.IndexHit
}

// TableExpander expands a 3-character prefix into table rows.
type TableExpander interface {
	ExpandFromPrefix(prefix string) []pcstables.Expansion
}

// Labels are the human-readable values behind a candidate code.
type Labels struct {
	Pos4      string `json:"pos4"`
	Pos5      string `json:"pos5"`
	Pos6      string `json:"pos6"`
	Pos7      string `json:"pos7"`
	Operation string `json:"operation"`
}

// Candidate is a proposed 7-character code with the reasons it was kept.
type Candidate struct {
	Code      string   `json:"code"`
	Labels    Labels   `json:"labels"`
	Rationale []string `json:"rationale"`
}

// ScoredPrefix is a table prefix ranked against the rule outcome.
type ScoredPrefix struct {
	Prefix         string `json:"prefix"`
	Score          int    `json:"score"`
	OperationLabel string `json:"operation_label"`
}

// ProposeResult is everything a caller needs to render and explain a
// proposal.
type ProposeResult struct {
	PrefixesConsidered []string        `json:"prefixes_considered"`
	Candidates         []Candidate     `json:"candidates"`
	Mutations          rules.Mutations `json:"mutations"`
	Actions            []string        `json:"actions"`
}
