package resolver

import (
	"maps"
	"slices"
	"strings"
)

// BodyPartResolver maps anatomy wording to the body-part labels the code
// tables use. Terms without an entry contribute nothing.
type BodyPartResolver struct {
	keyMap map[string][]string
}

// NewBodyPartResolver builds a resolver from an anatomy term map. Keys match
// case-insensitively.
func NewBodyPartResolver(keyMap map[string][]string) *BodyPartResolver {
	return &BodyPartResolver{keyMap: lowerKeys(keyMap)}
}

// ResolveAllowedLabels expands every anatomy term through the key map. Labels
// are deduplicated case-insensitively keeping the first spelling seen.
func (r *BodyPartResolver) ResolveAllowedLabels(terms []string) []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, term := range terms {
		for _, label := range r.keyMap[strings.ToLower(term)] {
			k := strings.ToLower(label)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, label)
		}
	}
	return out
}

// lowerKeys lower-cases map keys. Keys that collide after lower-casing are
// resolved in sorted key order, the last one winning.
func lowerKeys(m map[string][]string) map[string][]string {
	out := make(map[string][]string, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		out[strings.ToLower(k)] = m[k]
	}
	return out
}
