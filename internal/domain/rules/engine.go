package rules

import (
	"slices"
	"strings"

	"github.com/ehr/pcsguide/internal/domain/checklist"
)

// Flags recognised by the built-in rules.
const (
	FlagBiopsy       = "biopsy"
	FlagRemovedAtEnd = "removed at end"
)

// Facts is what is known about a procedure before codes are proposed.
type Facts struct {
	Flags        []string               `json:"raw_text_flags"`
	ApproachName string                 `json:"approach_name,omitempty"`
	DeviceName   string                 `json:"device_name,omitempty"`
	IndexQuery   string                 `json:"index_query,omitempty"`
	AnatomyTerms []string               `json:"anatomy_terms"`
	Checklist    *checklist.Constraints `json:"checklist,omitempty"`
}

// HasFlag reports whether flag was observed exactly as written.
func (f Facts) HasFlag(flag string) bool {
	return slices.Contains(f.Flags, flag)
}

// Outcome is the result of evaluating the rules over a set of facts.
// Actions is always non-nil.
type Outcome struct {
	Mutations Mutations `json:"mutations"`
	Actions   []string  `json:"actions"`
}

// Rule inspects facts and returns the mutations it asserts, if any.
type Rule struct {
	Name  string
	Apply func(Facts) []Mutation
}

// DefaultRules are evaluated independently; every applicable rule fires.
var DefaultRules = []Rule{
	{Name: "biopsy-diagnostic-qualifier", Apply: biopsyQualifier},
	{Name: "device-removed", Apply: deviceRemoved},
	{Name: "checklist-root-op-priority", Apply: checklistPriority},
}

func biopsyQualifier(f Facts) []Mutation {
	if f.HasFlag(FlagBiopsy) {
		return []Mutation{Set{Target: FieldQualifier, Value: QualifierDiagnostic}}
	}
	return nil
}

func deviceRemoved(f Facts) []Mutation {
	if f.HasFlag(FlagRemovedAtEnd) || strings.EqualFold(f.DeviceName, "no device") {
		return []Mutation{Set{Target: FieldDevice, Value: DeviceNone}}
	}
	return nil
}

func checklistPriority(f Facts) []Mutation {
	if f.Checklist == nil || len(f.Checklist.RootOpPriority) == 0 {
		return nil
	}
	return []Mutation{Note{Target: FieldRootOpPriority, Values: slices.Clone(f.Checklist.RootOpPriority)}}
}

// Engine evaluates a fixed rule list. It holds no state between calls.
type Engine struct {
	rules []Rule
}

// NewEngine returns an engine over rules, or DefaultRules when none are given.
func NewEngine(rules ...Rule) *Engine {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Engine{rules: rules}
}

// Apply evaluates every rule in order and collects their mutations.
func (e *Engine) Apply(f Facts) Outcome {
	out := Outcome{Mutations: Mutations{}, Actions: []string{}}
	for _, r := range e.rules {
		out.Mutations = append(out.Mutations, r.Apply(f)...)
	}
	return out
}
