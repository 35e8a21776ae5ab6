// Package report parses JaCoCo XML coverage reports.
//
// Totals sum every LINE counter in the document, at every nesting level.
// The per-unit breakdown uses only counters that are direct children of a
// class element.
package report

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pithecene-io/ordo/iox"
	"github.com/pithecene-io/ordo/types"
)

// CounterLine is the counter type used for line coverage.
const CounterLine = "LINE"

// ParseError reports a report that could not be parsed.
// It is fatal for one attempt only.
type ParseError struct {
	// Path is the report file, when known.
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse coverage report: %v", e.Err)
	}
	return fmt.Sprintf("parse coverage report %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err is or wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Report is the parsed content of one coverage report.
type Report struct {
	Totals types.LineCounts
	// Units maps dotted fully qualified class names to their line coverage.
	Units map[string]types.UnitCoverage
}

// StepResult converts the report into the result for step.
func (r *Report) StepResult(step int) types.StepResult {
	res := types.NewStepResult(step, r.Totals)
	if len(r.Units) > 0 {
		res.Units = make(map[string]types.UnitCoverage, len(r.Units))
		for k, v := range r.Units {
			res.Units[k] = v
		}
	}
	return res
}

// ParseFile parses the report at path.
func ParseFile(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open coverage report: %w", err)
	}
	defer iox.DiscardClose(f)

	rep, err := Parse(f)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
		}
		return nil, err
	}
	return rep, nil
}

// Parse reads a JaCoCo XML report from r.
// Malformed XML and non-integer counter attributes yield a *ParseError.
func Parse(r io.Reader) (*Report, error) {
	dec := xml.NewDecoder(r)
	// JaCoCo reports reference an external DTD; entities are never resolved.
	dec.Strict = true

	rep := &Report{Units: make(map[string]types.UnitCoverage)}

	var (
		stack    []string
		pkgName  string
		class    string
		elements int
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ParseError{Err: err}
		}

		switch el := tok.(type) {
		case xml.StartElement:
			elements++
			parent := ""
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			}

			switch el.Name.Local {
			case "package":
				pkgName = attr(el, "name")
			case "class":
				if parent == "package" {
					class = qualify(pkgName, attr(el, "name"))
				}
			case "counter":
				if attr(el, "type") != CounterLine {
					break
				}
				counts, err := lineCounts(el)
				if err != nil {
					return nil, &ParseError{Err: err}
				}
				rep.Totals.Covered += counts.Covered
				rep.Totals.Missed += counts.Missed
				if parent == "class" && class != "" {
					rep.Units[class] = types.UnitCoverage{
						Covered: counts.Covered,
						Missed:  counts.Missed,
						Total:   counts.Total(),
					}
				}
			}
			stack = append(stack, el.Name.Local)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, &ParseError{Err: fmt.Errorf("unexpected end element %s", el.Name.Local)}
			}
			switch stack[len(stack)-1] {
			case "package":
				pkgName = ""
			case "class":
				class = ""
			}
			stack = stack[:len(stack)-1]
		}
	}

	if elements == 0 {
		return nil, &ParseError{Err: errors.New("no elements in document")}
	}
	if len(stack) != 0 {
		return nil, &ParseError{Err: fmt.Errorf("unclosed element %s", stack[len(stack)-1])}
	}
	return rep, nil
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func lineCounts(el xml.StartElement) (types.LineCounts, error) {
	covered, err := counterValue(el, "covered")
	if err != nil {
		return types.LineCounts{}, err
	}
	missed, err := counterValue(el, "missed")
	if err != nil {
		return types.LineCounts{}, err
	}
	return types.LineCounts{Covered: covered, Missed: missed}, nil
}

func counterValue(el xml.StartElement, name string) (int64, error) {
	raw := attr(el, name)
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("LINE counter attribute %s=%q is not an integer", name, raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("LINE counter attribute %s=%d is negative", name, n)
	}
	return n, nil
}

// qualify joins a package path and class name into a dotted name.
// JaCoCo class names usually already carry the package path.
func qualify(pkg, class string) string {
	full := class
	if pkg != "" && !strings.HasPrefix(class, pkg+"/") {
		full = pkg + "/" + class
	}
	return strings.ReplaceAll(full, "/", ".")
}
