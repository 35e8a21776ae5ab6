package ordering

import (
	"fmt"

	"github.com/pithecene-io/ordo/types"
)

// Candidate is one named raw ordering from a strategy producer.
type Candidate struct {
	Name   string
	Tokens []string
}

// Accepted is a candidate that passed validation.
type Accepted struct {
	Name     string
	Ordering types.Ordering
}

// Rejected is a candidate dropped from aggregation, with every reason.
type Rejected struct {
	Name   string
	Errors []*ValidationError
}

// MergeResult is the outcome of validating and aggregating candidates.
type MergeResult struct {
	Consensus types.Ordering
	Accepted  []Accepted
	Rejected  []Rejected
}

// Merge validates each candidate against set and aggregates the accepted
// ones in input order. Rejections are always returned, including when the
// error is ErrEmptyConsensus.
func Merge(candidates []Candidate, set *types.TestSet) (*MergeResult, error) {
	res := &MergeResult{}
	var orderings []types.Ordering

	for _, c := range candidates {
		v := Validate(c.Tokens, set)
		if !v.Accepted {
			res.Rejected = append(res.Rejected, Rejected{Name: c.Name, Errors: v.Errors})
			continue
		}
		res.Accepted = append(res.Accepted, Accepted{Name: c.Name, Ordering: v.Ordering})
		orderings = append(orderings, v.Ordering)
	}

	consensus, err := Aggregate(orderings)
	if err != nil {
		return res, fmt.Errorf("merge %d candidates: %w", len(candidates), err)
	}
	if !set.IsPermutation(consensus) {
		// Unreachable while Validate only accepts permutations.
		return res, fmt.Errorf("consensus of %d orderings is not a permutation of the test set", len(orderings))
	}
	res.Consensus = consensus
	return res, nil
}
