// Package render provides centralized output rendering for the ordo CLI.
//
// Format selection rules:
//   - If output is a TTY, default to table
//   - If output is not a TTY, default to json
//   - --format flag always overrides defaults
//   - Invalid formats are errors
//
// Table layouts:
//   - Leaderboards and inspect responses have built-in layouts
//   - Other responses implement Viewer
//
// Color handling:
//   - --no-color affects table output only
//   - TUI mode is unaffected by --no-color (uses its own styling)
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/ordo/cli/reader"
	"github.com/pithecene-io/ordo/cli/tui"
	"github.com/pithecene-io/ordo/types"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string, returning an error for invalid formats.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "table":
		return FormatTable, nil
	case "yaml":
		return FormatYAML, nil
	case "":
		return "", nil // Let caller decide default
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Field is one labelled summary value.
type Field struct {
	Label string
	Value string
}

// Table is a titled grid printed with aligned columns.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
}

// View is the table layout of a response: summary fields, then tables.
type View struct {
	Fields []Field
	Tables []Table
}

// Viewer is implemented by responses that lay themselves out for the
// table format.
type Viewer interface {
	View() View
}

// Renderer handles output formatting.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer creates a renderer from CLI context.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	formatStr := c.String("format")
	format, err := ParseFormat(formatStr)
	if err != nil {
		return nil, err
	}

	// Apply default format based on TTY detection
	if format == "" {
		if isTTY(os.Stdout) {
			format = FormatTable
		} else {
			format = FormatJSON
		}
	}

	var out io.Writer = os.Stdout
	if c.App != nil && c.App.Writer != nil {
		out = c.App.Writer
	}
	return &Renderer{
		format:  format,
		noColor: c.Bool("no-color"),
		out:     out,
	}, nil
}

// NewRendererWithWriter creates a renderer with a custom writer (for testing).
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{
		format:  format,
		noColor: noColor,
		out:     out,
	}
}

// Render outputs the data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(data)
	case FormatTable:
		return r.renderTable(data)
	case FormatYAML:
		return r.renderYAML(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// RenderTUI initiates TUI mode for the given view type.
// TUI is opt-in and only offered by read-only commands.
func (r *Renderer) RenderTUI(viewType string, data any) error {
	// Validate TUI is supported for this view type
	if !tui.IsTUISupported(viewType) {
		return fmt.Errorf("--tui is not supported for %s", viewType)
	}

	// Run the TUI
	return tui.Run(viewType, data)
}

func (r *Renderer) renderJSON(data any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (r *Renderer) renderYAML(data any) error {
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	return enc.Encode(data)
}

func (r *Renderer) renderTable(data any) error {
	var v View
	switch d := data.(type) {
	case Viewer:
		v = d.View()
	case *reader.Leaderboard:
		v = leaderboardView(d)
	case *reader.InspectResponse:
		v = inspectView(d)
	default:
		return fmt.Errorf("no table layout for %T", data)
	}
	return r.writeView(v)
}

func (r *Renderer) writeView(v View) error {
	title := lipgloss.NewRenderer(r.out).NewStyle()
	if !r.noColor {
		title = title.Bold(true)
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	for _, f := range v.Fields {
		fmt.Fprintf(w, "%s:\t%s\n", f.Label, f.Value)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, t := range v.Tables {
		fmt.Fprintln(r.out)
		if t.Title != "" {
			fmt.Fprintln(r.out, title.Render(t.Title))
		}
		if len(t.Rows) == 0 {
			fmt.Fprintln(r.out, "(no results)")
			continue
		}
		w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, strings.Join(t.Headers, "\t"))
		for _, row := range t.Rows {
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func leaderboardView(lb *reader.Leaderboard) View {
	best := lb.Best
	if best == "" {
		best = "-"
	}
	v := View{Fields: []Field{{"run dir", lb.RunDir}, {"best", best}}}

	scores := Table{Title: "Leaderboard", Headers: []string{"RANK", "NAME", "STRATEGY", "AUC", "STEPS", "FAILED"}}
	for _, s := range lb.Scores {
		scores.Rows = append(scores.Rows, []string{
			strconv.Itoa(s.Rank), s.Name, s.Strategy,
			Percent(s.AUC, s.NoData), strconv.Itoa(s.Steps), strconv.Itoa(s.FailedSteps),
		})
	}
	v.Tables = append(v.Tables, scores)

	if len(lb.UnitRanking) > 0 {
		ranking := Table{Title: "Risk units", Headers: []string{"RANK", "NAME", "STRATEGY", "MEAN AUC", "UNITS"}}
		for _, u := range lb.UnitRanking {
			ranking.Rows = append(ranking.Rows, []string{
				strconv.Itoa(u.Rank), u.Name, u.Strategy,
				Ratio(u.AUC, u.NoData), fmt.Sprintf("%d/%d", u.Covered, u.Units),
			})
		}
		v.Tables = append(v.Tables, ranking)
	}

	if len(lb.Units) > 0 {
		units := Table{Title: "Units", Headers: []string{"NAME", "UNIT", "AUC", "STEPS"}}
		for _, u := range lb.Units {
			units.Rows = append(units.Rows, []string{u.Name, u.Unit, Ratio(u.AUC, u.NoData), strconv.Itoa(u.Steps)})
		}
		v.Tables = append(v.Tables, units)
	}
	return v
}

func inspectView(resp *reader.InspectResponse) View {
	v := View{Fields: []Field{
		{"run id", resp.RunID},
		{"succeeded", strconv.Itoa(resp.Succeeded)},
		{"failed", strconv.Itoa(resp.Failed)},
	}}
	if resp.Strategy != "" {
		v.Fields = append(v.Fields, Field{"strategy", resp.Strategy})
	}
	if resp.AUC != nil {
		v.Fields = append(v.Fields, Field{"auc", Percent(*resp.AUC, false)})
	}

	steps := Table{Title: "Steps", Headers: []string{"STRATEGY", "STEP", "STATUS", "ATTEMPTS", "TESTS", "COVERAGE", "LINES", "REASON"}}
	for _, s := range resp.Steps {
		steps.Rows = append(steps.Rows, []string{
			s.Strategy, strconv.Itoa(s.Step), s.Status, strconv.Itoa(s.Attempts), strconv.Itoa(s.Tests),
			Percent(s.CoveragePercent, s.Status != string(types.StepSucceeded)),
			fmt.Sprintf("%d/%d", s.CoveredLines, s.TotalLines), s.Reason,
		})
	}
	v.Tables = append(v.Tables, steps)
	return v
}

// Percent formats a coverage percentage, or "-" without data.
func Percent(v float64, noData bool) string {
	if noData {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 2, 64) + "%"
}

// Ratio formats a 0..1 AUC, or "-" without data.
func Ratio(v float64, noData bool) string {
	if noData {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// isTTY returns true if the writer is a TTY.
func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
