package checklist

import "slices"

// Checklist identifiers.
const (
	Debridement    = "debridement"
	AneurysmRepair = "aneurysm_repair"
)

// Constraints narrows candidate generation for one kind of encounter. Empty
// fields impose nothing.
type Constraints struct {
	RootOpPriority    []string `json:"root_op_priority,omitempty"`
	AllowedPos4Labels []string `json:"allowed_pos4_labels,omitempty"`
	ApproachRequired  string   `json:"approach_required,omitempty"`
	DeviceHint        string   `json:"device_hint,omitempty"`
	QualifierHint     string   `json:"qualifier_hint,omitempty"`
}

// Clone returns a deep copy of c.
func (c *Constraints) Clone() *Constraints {
	if c == nil {
		return nil
	}
	out := *c
	out.RootOpPriority = slices.Clone(c.RootOpPriority)
	out.AllowedPos4Labels = slices.Clone(c.AllowedPos4Labels)
	return &out
}

// Definition describes a checklist the classifier can pick.
type Definition struct {
	ID       string   `json:"id" yaml:"id"`
	Title    string   `json:"title" yaml:"title"`
	Keywords []string `json:"keywords" yaml:"keywords"`
}

// Detection is the outcome of picking a checklist for a note. Label is empty
// when no checklist was a clear winner.
type Detection struct {
	Label        string             `json:"label"`
	Confidence   float64            `json:"confidence"`
	Distribution map[string]float64 `json:"distribution"`
	Source       string             `json:"source"`
}

// Score sources.
const (
	SourceGemini  = "gemini"
	SourceKeyword = "keyword"
)
