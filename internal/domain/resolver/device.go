package resolver

import (
	"encoding/json"
	"slices"
	"strings"
)

// WildcardOperation in an aggregation row applies it to every operation.
const WildcardOperation = "All applicable"

// deviceSeparator splits a free-text device value into independent terms.
const deviceSeparator = "/"

// StringList decodes from either a JSON string or a JSON array of strings.
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*s = nil
		} else {
			*s = StringList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// AggregationRow states that Device also counts as each of Parent when the
// table's operation and body system are applicable.
type AggregationRow struct {
	Device      string     `json:"device"`
	Parent      StringList `json:"parent"`
	Operations  StringList `json:"operations"`
	BodySystems StringList `json:"body_systems"`
}

// DeviceResolver maps free-text device wording to the device labels used in
// the code tables. Unmapped terms pass through unchanged.
type DeviceResolver struct {
	keyMap map[string][]string
	agg    []AggregationRow
}

// NewDeviceResolver builds a resolver from a synonym map and aggregation
// rows. Synonym keys match case-insensitively.
func NewDeviceResolver(keyMap map[string][]string, agg []AggregationRow) *DeviceResolver {
	return &DeviceResolver{keyMap: lowerKeys(keyMap), agg: agg}
}

// NormalizeTerms splits raw on "/" and expands every term through the key
// map. Terms the map does not know are kept as written. The result is
// deduplicated in first-seen order.
func (r *DeviceResolver) NormalizeTerms(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, deviceSeparator) {
		term := strings.TrimSpace(part)
		if term == "" {
			continue
		}
		if mapped, ok := r.keyMap[strings.ToLower(term)]; ok {
			out = appendUnique(out, mapped...)
			continue
		}
		out = appendUnique(out, term)
	}
	return out
}

// AggregateForTable returns device plus the parents of every aggregation row
// for device that applies to operationLabel and bodySystem. An empty
// bodySystem disables the body-system filter.
func (r *DeviceResolver) AggregateForTable(device, operationLabel, bodySystem string) []string {
	out := []string{device}
	op := strings.ToLower(operationLabel)
	for _, row := range r.agg {
		if row.Device != device {
			continue
		}
		if !operationApplies(row.Operations, op) || !bodySystemApplies(row.BodySystems, bodySystem) {
			continue
		}
		for _, p := range row.Parent {
			if p != "" {
				out = appendUnique(out, p)
			}
		}
	}
	return out
}

func operationApplies(ops []string, opLower string) bool {
	if len(ops) == 0 || slices.Contains(ops, WildcardOperation) {
		return true
	}
	for _, o := range ops {
		if strings.Contains(opLower, strings.ToLower(o)) {
			return true
		}
	}
	return false
}

func bodySystemApplies(systems []string, bodySystem string) bool {
	return len(systems) == 0 || bodySystem == "" || slices.Contains(systems, bodySystem)
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}
