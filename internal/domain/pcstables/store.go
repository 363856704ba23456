package pcstables

import (
	"errors"
	"fmt"
)

var (
	// ErrShortPrefix is returned when a prefix has fewer than 3 characters.
	ErrShortPrefix = errors.New("prefix must have at least 3 characters")
	// ErrTableNotFound is returned when no table carries the prefix.
	ErrTableNotFound = errors.New("table not found")
)

// Store is the immutable set of code tables, keyed by 3-character prefix.
type Store struct {
	tables []*Table
	byKey  map[string]*Table
}

// NewStore indexes tables by prefix. Tables sharing a prefix are merged into
// the first one seen, keeping row order.
func NewStore(tables []*Table) *Store {
	s := &Store{byKey: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		if existing, ok := s.byKey[t.Prefix()]; ok {
			existing.Rows = append(existing.Rows, t.Rows...)
			continue
		}
		s.byKey[t.Prefix()] = t
		s.tables = append(s.tables, t)
	}
	return s
}

// Len returns the number of distinct tables.
func (s *Store) Len() int {
	return len(s.tables)
}

// Tables returns the tables in load order.
func (s *Store) Tables() []*Table {
	return s.tables
}

// Get returns the table addressed by the first three characters of prefix.
func (s *Store) Get(prefix string) (*Table, error) {
	if len(prefix) < 3 {
		return nil, ErrShortPrefix
	}
	t, ok := s.byKey[prefix[:3]]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, prefix[:3])
	}
	return t, nil
}

// ExpandFromPrefix returns every row of the table addressed by prefix. An
// unknown or short prefix yields an empty result.
func (s *Store) ExpandFromPrefix(prefix string) []Expansion {
	t, err := s.Get(prefix)
	if err != nil {
		return []Expansion{}
	}
	out := make([]Expansion, len(t.Rows))
	for i := range t.Rows {
		out[i] = Expansion{Table: t, Row: &t.Rows[i]}
	}
	return out
}
