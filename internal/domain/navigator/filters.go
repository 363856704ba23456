package navigator

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/ehr/pcsguide/internal/domain/checklist"
	"github.com/ehr/pcsguide/internal/domain/pcstables"
	"github.com/ehr/pcsguide/internal/domain/rules"
)

// Operation score weights.
const (
	diagnosticBonus  = 10
	rootHintBonus    = 8
	priorityBase     = 5
	priorityMinBonus = 1
)

// diagnosticOperations are the operations a diagnostic qualifier favours.
var diagnosticOperations = []string{"excision", "extraction", "drainage"}

// scoreOperation rates an operation label against the mutations and the
// checklist priority list. Only the first matching priority entry counts.
func scoreOperation(operationLabel string, muts rules.Mutations, cl *checklist.Constraints) int {
	op := strings.ToLower(operationLabel)
	score := 0
	for _, m := range muts {
		switch m := m.(type) {
		case rules.Set:
			switch m.Target {
			case rules.FieldQualifier:
				if m.Value == rules.QualifierDiagnostic && containsAny(op, diagnosticOperations) {
					score += diagnosticBonus
				}
			case rules.FieldRootOperationHint:
				if strings.Contains(op, strings.ToLower(m.Value)) {
					score += rootHintBonus
				}
			}
		case rules.Note:
			// Notes carry no weight on their own; the priority list is read
			// from the checklist below.
		}
	}
	if cl != nil {
		for i, name := range cl.RootOpPriority {
			if name != "" && strings.Contains(op, strings.ToLower(name)) {
				score += max(priorityBase-i, priorityMinBonus)
				break
			}
		}
	}
	return score
}

// rankPrefixes sorts descending on score, then prefix, then operation label.
func rankPrefixes(scored []ScoredPrefix) {
	slices.SortFunc(scored, func(a, b ScoredPrefix) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Prefix, a.Prefix); c != 0 {
			return c
		}
		return cmp.Compare(b.OperationLabel, a.OperationLabel)
	})
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// matchLabel reports whether want occurs in label, ignoring case. An empty
// want matches anything.
func matchLabel(label, want string) bool {
	if want == "" {
		return true
	}
	if label == "" {
		return false
	}
	return strings.Contains(strings.ToLower(label), strings.ToLower(want))
}

// bodyPartFilter decides which body-part labels a plan keeps.
type bodyPartFilter struct {
	allowList    []string // checklist allow-list, lower-cased
	resolved     []string // resolver output, lower-cased
	anatomyTerms []string
}

// keep applies the checklist allow-list and then the resolver set. A label
// must pass both; the allow-list does not bypass the resolver.
func (f *bodyPartFilter) keep(label string) (bool, string) {
	l := strings.ToLower(label)
	if len(f.allowList) > 0 && !slices.Contains(f.allowList, l) {
		return false, "Body part restricted by checklist"
	}
	if len(f.resolved) == 0 {
		return true, ""
	}
	for _, a := range f.resolved {
		if strings.Contains(l, a) {
			return true, fmt.Sprintf("Body part matched via key: %s → %s", strings.Join(f.anatomyTerms, ", "), a)
		}
	}
	return false, "Body part not in key-mapped set"
}

// deviceFilter decides which device labels a plan keeps.
type deviceFilter struct {
	forcedNone bool
	want       string
	canonical  []string // normalized want, nil without a resolver
	resolve    func(device, operationLabel, bodySystem string) []string
}

func (f *deviceFilter) keep(t *pcstables.Table, label string) (bool, string) {
	if f.forcedNone {
		return strings.Contains(strings.ToLower(label), "no device"), "Device forced to 'No Device' by rule"
	}
	if f.want == "" {
		return true, ""
	}
	if f.resolve == nil {
		return matchLabel(label, f.want), fmt.Sprintf("Simple device match to '%s' (no resolver)", f.want)
	}
	var allowed []string
	for _, c := range f.canonical {
		for _, l := range f.resolve(c, t.OperationLabel, t.BodySystem) {
			l = strings.ToLower(l)
			if !slices.Contains(allowed, l) {
				allowed = append(allowed, l)
			}
		}
	}
	ll := strings.ToLower(label)
	for _, a := range allowed {
		if strings.Contains(ll, a) {
			return true, fmt.Sprintf("Device matched via key/aggregation: '%s' → %s", f.want, strings.Join(allowed, ", "))
		}
	}
	return false, fmt.Sprintf("Device '%s' not compatible with this table row", f.want)
}

// forcesNoDevice reports whether any mutation sets the device to No Device.
func forcesNoDevice(muts rules.Mutations) bool {
	for _, v := range muts.SetValues(rules.FieldDevice) {
		if strings.EqualFold(v, rules.DeviceNone) {
			return true
		}
	}
	return false
}
