package ordering

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/pithecene-io/ordo/types"
)

// ErrorKind classifies a validation failure.
type ErrorKind string

const (
	KindCountMismatch ErrorKind = "count_mismatch"
	KindUnknown       ErrorKind = "unknown_identifier"
	KindDuplicate     ErrorKind = "duplicate"
	KindMalformed     ErrorKind = "malformed_token"
	KindMissing       ErrorKind = "missing_identifier"
)

// ValidationError is one named violation found in a candidate ordering.
type ValidationError struct {
	Kind ErrorKind `json:"kind"`
	// Token is the offending token; empty for count_mismatch.
	Token string `json:"token,omitempty"`
	// Position is the zero-based token position, or -1 when not positional.
	Position int `json:"position"`
	Expected int `json:"expected,omitempty"`
	Actual   int `json:"actual,omitempty"`
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindCountMismatch:
		return fmt.Sprintf("test count mismatch: expected %d, got %d", e.Expected, e.Actual)
	case KindUnknown:
		return fmt.Sprintf("unknown test %q at position %d", e.Token, e.Position)
	case KindDuplicate:
		return fmt.Sprintf("duplicate test %q at position %d", e.Token, e.Position)
	case KindMalformed:
		return fmt.Sprintf("malformed test name %q at position %d", e.Token, e.Position)
	case KindMissing:
		return fmt.Sprintf("missing test %q", e.Token)
	default:
		return fmt.Sprintf("%s: %q", e.Kind, e.Token)
	}
}

// Result is the outcome of validating one candidate.
// Accepted is true iff Errors is empty; Ordering is set only when accepted.
type Result struct {
	Accepted bool
	Ordering types.Ordering
	Errors   []*ValidationError
}

// Err joins all validation errors, or returns nil for an accepted result.
func (r *Result) Err() error {
	if r.Accepted {
		return nil
	}
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("candidate rejected with %d errors: %s", len(r.Errors), strings.Join(msgs, "; "))
}

// Validate checks tokens against set. Every check runs over every token so
// that all violations are reported together. Validate has no side effects.
func Validate(tokens []string, set *types.TestSet) *Result {
	var errs []*ValidationError

	if len(tokens) != set.Len() {
		errs = append(errs, &ValidationError{
			Kind:     KindCountMismatch,
			Position: -1,
			Expected: set.Len(),
			Actual:   len(tokens),
		})
	}

	seen := make(map[types.TestID]struct{}, len(tokens))
	for i, tok := range tokens {
		id := types.TestID(tok)
		if !set.Has(id) {
			errs = append(errs, &ValidationError{Kind: KindUnknown, Token: tok, Position: i})
		}
		if _, dup := seen[id]; dup {
			errs = append(errs, &ValidationError{Kind: KindDuplicate, Token: tok, Position: i})
		}
		if !WellFormed(tok) {
			errs = append(errs, &ValidationError{Kind: KindMalformed, Token: tok, Position: i})
		}
		seen[id] = struct{}{}
	}

	for _, id := range set.IDs() {
		if _, ok := seen[id]; !ok {
			errs = append(errs, &ValidationError{Kind: KindMissing, Token: string(id), Position: -1})
		}
	}

	if len(errs) > 0 {
		return &Result{Errors: errs}
	}

	ordering := make(types.Ordering, len(tokens))
	for i, tok := range tokens {
		ordering[i] = types.TestID(tok)
	}
	return &Result{Accepted: true, Ordering: ordering}
}

// WellFormed reports whether tok is two non-empty segments joined by a
// single separator, with no whitespace anywhere.
func WellFormed(tok string) bool {
	if strings.IndexFunc(tok, unicode.IsSpace) >= 0 {
		return false
	}
	if strings.Count(tok, types.IDSeparator) != 1 {
		return false
	}
	class, method, _ := strings.Cut(tok, types.IDSeparator)
	return class != "" && method != ""
}
