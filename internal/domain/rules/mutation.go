package rules

import (
	"encoding/json"
	"fmt"
)

// Field names what a mutation asserts or annotates.
type Field string

const (
	FieldQualifier         Field = "qualifier"
	FieldDevice            Field = "device"
	FieldRootOperationHint Field = "root_operation_hint"
	FieldRootOpPriority    Field = "root_op_priority"
)

// Well-known values asserted by the built-in rules.
const (
	QualifierDiagnostic = "Diagnostic"
	DeviceNone          = "No Device"
)

// Mutation is the closed set of outcomes a rule can produce: Set asserts a
// value, Note attaches non-binding metadata.
type Mutation interface {
	Field() Field
	mutation()
}

// Set asserts that Target has Value.
type Set struct {
	Target Field
	Value  string
}

// Note attaches Values to Target without forcing anything.
type Note struct {
	Target Field
	Values []string
}

func (s Set) Field() Field  { return s.Target }
func (n Note) Field() Field { return n.Target }

func (Set) mutation()  {}
func (Note) mutation() {}

// MarshalJSON renders {"set":{"<field>":"<value>"}}.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]map[Field]string{"set": {s.Target: s.Value}})
}

// MarshalJSON renders {"note":{"<field>":[...]}}.
func (n Note) MarshalJSON() ([]byte, error) {
	values := n.Values
	if values == nil {
		values = []string{}
	}
	return json.Marshal(map[string]map[Field][]string{"note": {n.Target: values}})
}

// Mutations is an ordered mutation list with JSON decoding support.
type Mutations []Mutation

// UnmarshalJSON decodes the tagged form produced by Set and Note.
func (ms *Mutations) UnmarshalJSON(data []byte) error {
	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Mutations, 0, len(raw))
	for i, entry := range raw {
		if len(entry) != 1 {
			return fmt.Errorf("mutation %d: expected exactly one tag", i)
		}
		for tag, body := range entry {
			switch tag {
			case "set":
				var m map[Field]string
				if err := json.Unmarshal(body, &m); err != nil || len(m) != 1 {
					return fmt.Errorf("mutation %d: malformed set", i)
				}
				for f, v := range m {
					out = append(out, Set{Target: f, Value: v})
				}
			case "note":
				var m map[Field][]string
				if err := json.Unmarshal(body, &m); err != nil || len(m) != 1 {
					return fmt.Errorf("mutation %d: malformed note", i)
				}
				for f, v := range m {
					out = append(out, Note{Target: f, Values: v})
				}
			default:
				return fmt.Errorf("mutation %d: unknown tag %q", i, tag)
			}
		}
	}
	*ms = out
	return nil
}

// LastSet returns the value of the last Set mutation for f.
func (ms Mutations) LastSet(f Field) (string, bool) {
	var (
		value string
		found bool
	)
	for _, m := range ms {
		if s, ok := m.(Set); ok && s.Target == f {
			value, found = s.Value, true
		}
	}
	return value, found
}

// SetValues returns the values of every Set mutation for f, in order.
func (ms Mutations) SetValues(f Field) []string {
	var out []string
	for _, m := range ms {
		if s, ok := m.(Set); ok && s.Target == f {
			out = append(out, s.Value)
		}
	}
	return out
}
