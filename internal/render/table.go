package render

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	humanize "github.com/dustin/go-humanize"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

const maxSubjectWidth = 40

// StyledText applies a lipgloss style to text when colors are enabled.
// When colors are disabled, it returns the plain text unchanged.
func StyledText(text string, style lipgloss.Style) string {
	if ColorsEnabled() {
		return style.Render(text)
	}
	return text
}

// ColorFromName maps color names to terminal colors.
func ColorFromName(name string) lipgloss.Color {
	switch name {
	case "red":
		return lipgloss.Color("9")
	case "yellow":
		return lipgloss.Color("11")
	case "blue":
		return lipgloss.Color("12")
	case "green":
		return lipgloss.Color("10")
	case "magenta":
		return lipgloss.Color("13")
	case "gray":
		return lipgloss.Color("8")
	default:
		return lipgloss.Color("15")
	}
}

// truncate shortens a string to maxLen runes, appending an ellipsis if truncated.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// EmptyState renders a styled empty-state message with an optional contextual hint.
// When quiet is true the hint is suppressed.
func EmptyState(message, hint string, quiet bool) string {
	if quiet || hint == "" {
		return StyledText(message, lipgloss.NewStyle().Foreground(lipgloss.Color("8")))
	}
	if !ColorsEnabled() {
		return message + "\n" + hint
	}
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	hintStyle := dimStyle.Italic(true)
	return dimStyle.Render(message) + "\n" + hintStyle.Render(hint)
}

var tableHeaders = []string{"ID", "Project", "Type", "Status", "Subject", "Assignee", "Due", "Done", "Updated"}

// RenderTable renders issues as a table, one row per issue. Due dates of
// overdue issues are highlighted relative to today.
func RenderTable(issues []*model.Issue, names Names, today time.Time) string {
	if len(issues) == 0 {
		return EmptyState("No issues found.", "Create one with: workgraph create", false)
	}

	rows := make([][]string, 0, len(issues))
	for _, issue := range issues {
		rows = append(rows, issueRow(issue, names))
	}

	if !ColorsEnabled() {
		return renderPlainTable(rows)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		Headers(tableHeaders...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)
			if row == table.HeaderRow {
				return s.Bold(true).Foreground(lipgloss.Color("15"))
			}
			if row < 0 || row >= len(issues) {
				return s
			}
			issue := issues[row]
			switch col {
			case 3:
				return s.Foreground(ColorFromName(names.statusColor(issue.StatusID)))
			case 4:
				return s.Bold(true)
			case 6:
				if issue.Overdue(today, names.IsClosed(issue.StatusID)) {
					return s.Foreground(ColorFromName("red"))
				}
				return s
			default:
				return s
			}
		})

	return t.Render()
}

func issueRow(issue *model.Issue, names Names) []string {
	due := ""
	if issue.DueDate != nil {
		due = model.FormatDate(*issue.DueDate)
	}
	return []string{
		model.FormatID(issue.ID),
		lookup(names.Projects, issue.ProjectID),
		lookup(names.Types, issue.TypeID),
		names.statusLabel(issue.StatusID),
		truncate(issue.Subject, maxSubjectWidth),
		lookupPtr(names.Users, issue.AssignedToID),
		due,
		fmt.Sprintf("%d%%", issue.DoneRatio),
		humanize.Time(issue.UpdatedAt),
	}
}

func renderPlainTable(rows [][]string) string {
	widths := make([]int, len(tableHeaders))
	for i, h := range tableHeaders {
		widths[i] = utf8.RuneCountInString(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], utf8.RuneCountInString(cell))
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				b.WriteString("  ")
			}
			if i == len(cells)-1 {
				b.WriteString(cell)
				continue
			}
			b.WriteString(cell + strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell)))
		}
		b.WriteString("\n")
	}
	writeRow(tableHeaders)
	total := 2 * (len(widths) - 1)
	for _, w := range widths {
		total += w
	}
	b.WriteString(strings.Repeat("-", total) + "\n")
	for _, row := range rows {
		writeRow(row)
	}
	return b.String()
}
