// Package ordering validates candidate test orderings against the
// authoritative test set and merges accepted candidates into a consensus
// ordering by rank averaging.
//
// Candidate text from a strategy producer is untrusted. ParseCandidate is
// the only place that strips decoration; everything after it sees plain
// tokens and goes through Validate.
package ordering

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pithecene-io/ordo/types"
)

// Description separators accepted in the test list, tried in order.
var descriptionSeparators = []string{" - ", "–"}

// Inventory is the loaded test universe for one run.
type Inventory struct {
	// Set is the authoritative test set, built from the test list.
	Set *types.TestSet
	// Lines are the accepted test list lines, descriptions included.
	Lines []string
	// Mandatory are the identifiers from the mandatory list.
	Mandatory []types.TestID
}

// LoadInventory reads a test list and an optional mandatory list.
//
// A test list line is accepted when it contains the id separator and a
// description separator; the identifier is the trimmed text before the
// separator. Other lines are ignored. Each non-blank mandatory line is one
// identifier. A mandatory identifier that is not in the test list is an error.
func LoadInventory(testList, mandatory io.Reader) (*Inventory, error) {
	var (
		lines []string
		ids   []types.TestID
	)

	sc := bufio.NewScanner(testList)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.Contains(line, types.IDSeparator) {
			continue
		}
		id, ok := splitDescribed(line)
		if !ok {
			continue
		}
		lines = append(lines, line)
		ids = append(ids, id)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read test list: %w", err)
	}

	inv := &Inventory{
		Set:   types.NewTestSet(ids),
		Lines: lines,
	}

	if mandatory != nil {
		sc = bufio.NewScanner(mandatory)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			inv.Mandatory = append(inv.Mandatory, types.TestID(line))
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read mandatory list: %w", err)
		}
	}

	var unknown []string
	for _, id := range inv.Mandatory {
		if !inv.Set.Has(id) {
			unknown = append(unknown, string(id))
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("mandatory tests not in test list: %s", strings.Join(unknown, ", "))
	}

	return inv, nil
}

// splitDescribed extracts the identifier from "<id> - <description>".
func splitDescribed(line string) (types.TestID, bool) {
	for _, sep := range descriptionSeparators {
		if before, _, ok := strings.Cut(line, sep); ok {
			id := strings.TrimSpace(before)
			if id == "" {
				return "", false
			}
			return types.TestID(id), true
		}
	}
	return "", false
}
