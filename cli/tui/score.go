package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pithecene-io/ordo/cli/reader"
)

// barWidth is the width of a 100% AUC bar.
const barWidth = 30

// ScoreModel is a Bubble Tea model for the strategy leaderboard.
// The cursor selects a strategy whose unit scores are listed below the board.
type ScoreModel struct {
	viewType string
	data     any
	cursor   int
	width    int
	height   int
	quitting bool
}

// NewScoreModel creates a new leaderboard model.
func NewScoreModel(viewType string, data any) ScoreModel {
	return ScoreModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m ScoreModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m ScoreModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
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
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if lb, ok := m.data.(*reader.Leaderboard); ok && m.cursor < len(lb.Scores)-1 {
				m.cursor++
			}
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m ScoreModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case "score_leaderboard":
		content = m.renderLeaderboard()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	return content + "\n" + helpLine()
}

func (m ScoreModel) renderLeaderboard() string {
	data, ok := m.data.(*reader.Leaderboard)
	if !ok {
		return "Invalid data type for score_leaderboard"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Strategy Leaderboard"))
	b.WriteString("\n\n")

	scored := 0
	best := 0.0
	for _, s := range data.Scores {
		if !s.NoData {
			scored++
			best = max(best, s.AUC)
		}
	}
	boxes := []string{
		m.renderStatBox("Strategies", fmt.Sprintf("%d", len(data.Scores)), highlightColor),
		m.renderStatBox("Scored", fmt.Sprintf("%d", scored), successColor),
		m.renderStatBox("No Data", fmt.Sprintf("%d", len(data.Scores)-scored), warningColor),
		m.renderStatBox("Best AUC", fmt.Sprintf("%.2f", best), primaryColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n\n")

	for i, s := range data.Scores {
		b.WriteString(m.renderRow(i, s, s.Strategy == data.Best))
		b.WriteString("\n")
	}

	if units := m.selectedUnits(data); len(units) > 0 {
		b.WriteString("\n")
		b.WriteString(LabelStyle.Render("Units:"))
		b.WriteString("\n")
		for _, u := range units {
			value := "no data"
			if !u.NoData {
				value = fmt.Sprintf("%.4f", u.AUC)
			}
			b.WriteString(fmt.Sprintf("  %s %s\n", LabelStyle.Render(u.Unit), ValueStyle.Render(value)))
		}
	}

	if len(data.UnitRanking) > 0 {
		b.WriteString("\n")
		b.WriteString(LabelStyle.Render("Mean unit AUC:"))
		b.WriteString("\n")
		for _, u := range data.UnitRanking {
			value := "no data"
			if !u.NoData {
				value = fmt.Sprintf("%.4f (%d/%d units)", u.AUC, u.Covered, u.Units)
			}
			b.WriteString(fmt.Sprintf("  %2d. %s %s\n", u.Rank, LabelStyle.Render(u.Name), ValueStyle.Render(value)))
		}
	}

	return BoxStyle.Render(b.String())
}

func (m ScoreModel) renderRow(i int, s reader.ScoreRow, isBest bool) string {
	cursor := "  "
	name := fmt.Sprintf("%-26s", s.Name)
	if i == m.cursor {
		cursor = "> "
		name = SelectedStyle.Render(name)
	}

	if s.NoData {
		return fmt.Sprintf("%s%2d. %s %s", cursor, s.Rank, name, StateStyle("no_data").Render("no data"))
	}

	filled := int(s.AUC / 100 * barWidth)
	filled = min(max(filled, 0), barWidth)
	bar := BarStyle.Render(strings.Repeat("█", filled)) + strings.Repeat("░", barWidth-filled)
	value := fmt.Sprintf("%6.2f", s.AUC)
	if isBest {
		value = StateStyle("best").Render(value)
	}
	failed := ""
	if s.FailedSteps > 0 {
		failed = StateStyle("failed").Render(fmt.Sprintf(" (%d failed)", s.FailedSteps))
	}
	return fmt.Sprintf("%s%2d. %s %s %s%s", cursor, s.Rank, name, bar, value, failed)
}

func (m ScoreModel) selectedUnits(data *reader.Leaderboard) []reader.UnitRow {
	if m.cursor >= len(data.Scores) {
		return nil
	}
	strategy := data.Scores[m.cursor].Strategy
	var out []reader.UnitRow
	for _, u := range data.Units {
		if u.Strategy == strategy {
			out = append(out, u)
		}
	}
	return out
}

func (m ScoreModel) renderStatBox(label, value string, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(value)
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// RunScoreTUI runs the leaderboard TUI.
func RunScoreTUI(viewType string, data any) error {
	model := NewScoreModel(viewType, data)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RenderScoreStatic renders the leaderboard without full TUI (for fallback).
func RenderScoreStatic(viewType string, data any) string {
	model := NewScoreModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
