package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/ordo/cli/reader"
)

// visibleSteps is the step list height when the window size is unknown.
const visibleSteps = 15

// InspectModel is a Bubble Tea model for inspect views.
type InspectModel struct {
	viewType string
	data     any
	offset   int
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	return InspectModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.offset > 0 {
				m.offset--
			}
		case key.Matches(msg, keys.Down):
			if resp, ok := m.data.(*reader.InspectResponse); ok && m.offset < len(resp.Steps)-m.pageSize() {
				m.offset++
			}
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "inspect_steps":
		content = m.renderInspectSteps()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	return content + "\n" + helpLine()
}

func (m InspectModel) pageSize() int {
	if m.height > 16 {
		return m.height - 16
	}
	return visibleSteps
}

func (m InspectModel) renderInspectSteps() string {
	data, ok := m.data.(*reader.InspectResponse)
	if !ok {
		return "Invalid data type for inspect_steps"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Run Steps"))
	b.WriteString("\n\n")

	rows := [][]string{
		{"Run ID", data.RunID},
		{"Strategy", data.Strategy},
		{"Succeeded", fmt.Sprintf("%d", data.Succeeded)},
		{"Failed", fmt.Sprintf("%d", data.Failed)},
	}
	if data.AUC != nil {
		rows = append(rows, []string{"AUC", fmt.Sprintf("%.2f", *data.AUC)})
	}
	if data.Metrics != nil {
		rows = append(rows, []string{"Attempts", fmt.Sprintf("%d", data.Metrics.Attempts)})
	}
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(row[0]+":"), ValueStyle.Render(row[1])))
	}
	b.WriteString("\n")

	end := min(m.offset+m.pageSize(), len(data.Steps))
	for _, s := range data.Steps[min(m.offset, end):end] {
		status := StateStyle(s.Status).Render(fmt.Sprintf("%-9s", s.Status))
		detail := fmt.Sprintf("%6.2f%%  %d/%d lines", s.CoveragePercent, s.CoveredLines, s.TotalLines)
		if s.Status != "succeeded" {
			detail = ErrorStyle.Render(s.Reason)
		}
		b.WriteString(fmt.Sprintf("%-12s %s Step_%-4d tests=%-4d attempts=%d  %s\n",
			s.Strategy, status, s.Step, s.Tests, s.Attempts, detail))
	}
	if len(data.Steps) > end {
		b.WriteString(HelpStyle.Render(fmt.Sprintf("... %d more", len(data.Steps)-end)))
	}

	return BoxStyle.Render(b.String())
}

// RunInspectTUI runs the inspect TUI.
func RunInspectTUI(viewType string, data any) error {
	model := NewInspectModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderInspectStatic renders inspect data without full TUI (for fallback).
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
