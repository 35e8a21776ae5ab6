package score

import (
	"bufio"
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/pithecene-io/ordo/types"
)

// MaxRiskUnits is the number of units taken from a risk order line.
const MaxRiskUnits = 3

// UnitResult is the AUC of one unit within one run.
type UnitResult struct {
	Strategy string  `json:"strategy"`
	Unit     string  `json:"unit"`
	Value    float64 `json:"value"`
	Steps    int     `json:"steps"`
	NoData   bool    `json:"no_data"`
}

// UnitScore computes the AUC of unit in run: the mean covered/total ratio
// over the steps whose breakdown contains the unit. A unit matches by its
// fully qualified name or by its simple class name with a trailing "Test"
// removed.
func UnitScore(run *types.CoverageRun, unit string) (UnitResult, error) {
	s := UnitResult{Strategy: run.Strategy, Unit: unit}

	var sum float64
	for _, step := range run.StepIndices() {
		cov, ok := findUnit(run.Steps[step].Units, unit)
		if !ok || cov.Total == 0 {
			continue
		}
		sum += float64(cov.Covered) / float64(cov.Total)
		s.Steps++
	}
	if s.Steps == 0 {
		s.NoData = true
		return s, &MissingDataError{Strategy: run.Strategy, Unit: unit}
	}
	s.Value = sum / float64(s.Steps)
	return s, nil
}

// UnitScores scores every unit in every run. Missing units are kept as NoData.
func UnitScores(runs []*types.CoverageRun, units []string) []UnitResult {
	var out []UnitResult
	for _, run := range runs {
		for _, unit := range units {
			s, _ := UnitScore(run, unit)
			out = append(out, s)
		}
	}
	return out
}

func findUnit(units map[string]types.UnitCoverage, unit string) (types.UnitCoverage, bool) {
	if cov, ok := units[unit]; ok {
		return cov, true
	}
	want := SimpleName(unit)
	for _, name := range slices.Sorted(maps.Keys(units)) {
		if SimpleName(name) == want {
			return units[name], true
		}
	}
	return types.UnitCoverage{}, false
}

// UnitRank is the mean unit AUC of one strategy.
type UnitRank struct {
	Strategy string  `json:"strategy"`
	Value    float64 `json:"value"`
	// Covered is the number of units with data.
	Covered int  `json:"covered"`
	NoData  bool `json:"no_data"`
}

// RankByUnits ranks strategies by their mean AUC over units. A unit without
// data contributes zero but still counts toward the divisor, so a strategy
// is never rewarded for missing a unit. Strategies with no unit data rank
// last; ties break by strategy name.
func RankByUnits(results []UnitResult, units []string) []UnitRank {
	if len(units) == 0 {
		return nil
	}
	want := make(map[string]bool, len(units))
	for _, u := range units {
		want[u] = true
	}

	byStrategy := make(map[string]*UnitRank)
	var out []*UnitRank
	sums := make(map[string]float64)
	for _, r := range results {
		rank, ok := byStrategy[r.Strategy]
		if !ok {
			rank = &UnitRank{Strategy: r.Strategy}
			byStrategy[r.Strategy] = rank
			out = append(out, rank)
		}
		if r.NoData || !want[r.Unit] {
			continue
		}
		sums[r.Strategy] += r.Value
		rank.Covered++
	}

	ranked := make([]UnitRank, 0, len(out))
	for _, rank := range out {
		rank.Value = sums[rank.Strategy] / float64(len(units))
		rank.NoData = rank.Covered == 0
		ranked = append(ranked, *rank)
	}
	slices.SortStableFunc(ranked, func(a, b UnitRank) int {
		if a.NoData != b.NoData {
			if a.NoData {
				return 1
			}
			return -1
		}
		if c := cmp.Compare(b.Value, a.Value); c != 0 {
			return c
		}
		return strings.Compare(a.Strategy, b.Strategy)
	})
	return ranked
}

// SimpleName returns the last dotted segment of name with a trailing "Test" removed.
func SimpleName(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSuffix(name, "Test")
}

var riskOrderRe = regexp.MustCompile(`(?i)risk order of (.+?)(?:,|\.|$)`)

// ParseRiskOrder finds the first line of the form
// "... risk order of A > B > C." and returns up to MaxRiskUnits unit names,
// each with a trailing "Test" removed. No matching line yields nil.
func ParseRiskOrder(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		m := riskOrderRe.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		var units []string
		for _, part := range strings.Split(m[1], ">") {
			name := strings.TrimSuffix(strings.TrimSpace(part), "Test")
			if name == "" {
				continue
			}
			units = append(units, name)
			if len(units) == MaxRiskUnits {
				break
			}
		}
		return units, nil
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read risk order: %w", err)
	}
	return nil, nil
}

// WriteUnitCSV writes unit scores as auc_results.csv rows.
// Units without data are written with an empty AUC.
func WriteUnitCSV(w io.Writer, scores []UnitResult, names DisplayNames) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Strategy", "Unit", "AUC"}); err != nil {
		return err
	}
	for _, s := range scores {
		value := ""
		if !s.NoData {
			value = strconv.FormatFloat(s.Value, 'f', 4, 64)
		}
		if err := cw.Write([]string{names.Name(s.Strategy), s.Unit, value}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
