// Package types defines core domain types for ordo.
//
//nolint:revive // types is a common Go package naming convention
package types

import "strings"

// IDSeparator separates the class segment from the method segment of a TestID.
const IDSeparator = "#"

// TestID names one test case as <Class>#<method>.
// Compared by exact string equality.
type TestID string

// Class returns the segment before the separator, or "" if there is none.
func (id TestID) Class() string {
	class, _, ok := strings.Cut(string(id), IDSeparator)
	if !ok {
		return ""
	}
	return class
}

// Ordering is an ordered sequence of test identifiers.
type Ordering []TestID

// Contains reports whether id appears anywhere in the ordering.
func (o Ordering) Contains(id TestID) bool {
	for _, t := range o {
		if t == id {
			return true
		}
	}
	return false
}

// Strings returns the ordering as plain strings.
func (o Ordering) Strings() []string {
	out := make([]string, len(o))
	for i, id := range o {
		out[i] = string(id)
	}
	return out
}

// TestSet is the authoritative set of test identifiers for a run.
// It is read-only after construction and safe for concurrent reads.
type TestSet struct {
	ids     []TestID
	members map[TestID]struct{}
}

// NewTestSet builds a TestSet from ids, dropping repeats.
// Declaration order is preserved.
func NewTestSet(ids []TestID) *TestSet {
	s := &TestSet{
		ids:     make([]TestID, 0, len(ids)),
		members: make(map[TestID]struct{}, len(ids)),
	}
	for _, id := range ids {
		if _, dup := s.members[id]; dup {
			continue
		}
		s.members[id] = struct{}{}
		s.ids = append(s.ids, id)
	}
	return s
}

// Len returns the number of identifiers in the set.
func (s *TestSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// Has reports whether id is a member of the set.
func (s *TestSet) Has(id TestID) bool {
	if s == nil {
		return false
	}
	_, ok := s.members[id]
	return ok
}

// IDs returns a copy of the identifiers in declaration order.
func (s *TestSet) IDs() []TestID {
	if s == nil {
		return nil
	}
	out := make([]TestID, len(s.ids))
	copy(out, s.ids)
	return out
}

// IsPermutation reports whether o contains every member exactly once and nothing else.
func (s *TestSet) IsPermutation(o Ordering) bool {
	if len(o) != s.Len() {
		return false
	}
	seen := make(map[TestID]struct{}, len(o))
	for _, id := range o {
		if !s.Has(id) {
			return false
		}
		if _, dup := seen[id]; dup {
			return false
		}
		seen[id] = struct{}{}
	}
	return true
}
