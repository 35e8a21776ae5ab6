package ordering

import (
	"errors"
	"sort"

	"github.com/pithecene-io/ordo/types"
)

// ErrEmptyConsensus is returned when no candidate ordering was accepted.
// Callers must treat it as a hard stop for the run.
var ErrEmptyConsensus = errors.New("no candidate ordering accepted: consensus is empty")

// Rank accumulates the positions of one identifier across orderings.
// Sum and Count stay separate so the mean is never recomputed per comparison.
type Rank struct {
	// Sum is the sum of zero-based positions.
	Sum int
	// Count is the number of orderings containing the identifier.
	Count int
	// First is the global sequence number of the first occurrence, walking
	// the orderings in input order and each ordering front to back.
	First int
}

// Mean returns Sum/Count, or 0 for an empty tally.
func (r Rank) Mean() float64 {
	if r.Count == 0 {
		return 0
	}
	return float64(r.Sum) / float64(r.Count)
}

// Tally maps identifiers to their rank accumulators.
type Tally map[types.TestID]*Rank

// BuildTally accumulates ranks over orderings.
func BuildTally(orderings []types.Ordering) Tally {
	tally := make(Tally)
	seq := 0
	for _, o := range orderings {
		for pos, id := range o {
			r, ok := tally[id]
			if !ok {
				r = &Rank{First: seq}
				tally[id] = r
			}
			r.Sum += pos
			r.Count++
			seq++
		}
	}
	return tally
}

// less orders by mean rank, then by first occurrence.
// Means are compared as Sum_a*Count_b < Sum_b*Count_a to stay exact.
func less(a, b *Rank) bool {
	lhs := a.Sum * b.Count
	rhs := b.Sum * a.Count
	if lhs != rhs {
		return lhs < rhs
	}
	return a.First < b.First
}

// Sorted returns the tallied identifiers by ascending mean rank.
func (t Tally) Sorted() types.Ordering {
	out := make(types.Ordering, 0, len(t))
	for id := range t {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return less(t[out[i]], t[out[j]])
	})
	return out
}

// Aggregate merges accepted orderings into one consensus by mean rank.
// Returns ErrEmptyConsensus when orderings is empty.
func Aggregate(orderings []types.Ordering) (types.Ordering, error) {
	if len(orderings) == 0 {
		return nil, ErrEmptyConsensus
	}
	return BuildTally(orderings).Sorted(), nil
}
