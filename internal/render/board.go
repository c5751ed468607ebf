package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

const (
	maxCardsPerColumn = 10
	minColumnWidth    = 20
	cardPadding       = 2 // left+right padding inside cards
)

// BoardOptions configures board rendering behavior.
type BoardOptions struct {
	// IncludeClosed adds columns for closed statuses.
	IncludeClosed bool
}

type column struct {
	status model.IssueStatus
	issues []*model.Issue
}

// RenderBoard renders issues as a board with one column per status, in
// workflow order. Statuses without issues get no column.
func RenderBoard(issues []*model.Issue, names Names, opts BoardOptions) string {
	if len(issues) == 0 {
		return EmptyState("No issues on the board.", "Create one with: workgraph create", false)
	}

	cols := boardColumns(issues, names, opts)
	if len(cols) == 0 {
		return ""
	}
	if !ColorsEnabled() {
		return renderPlainBoard(cols, names)
	}
	return renderColorBoard(cols, names)
}

func boardColumns(issues []*model.Issue, names Names, opts BoardOptions) []column {
	groups := make(map[int][]*model.Issue)
	for _, issue := range issues {
		groups[issue.StatusID] = append(groups[issue.StatusID], issue)
	}
	var cols []column
	for _, s := range names.StatusOrder() {
		if s.IsClosed && !opts.IncludeClosed {
			continue
		}
		if len(groups[s.ID]) > 0 {
			cols = append(cols, column{status: s, issues: groups[s.ID]})
		}
	}
	return cols
}

func renderColorBoard(cols []column, names Names) string {
	tw := terminalWidth()
	colWidth := max((tw-(len(cols)-1))/len(cols), minColumnWidth)
	// Inner width available for card content (minus border/padding).
	contentWidth := max(colWidth-cardPadding-2, 5)

	rendered := make([]string, len(cols))
	for i, col := range cols {
		rendered[i] = renderColorColumn(col, names, colWidth, contentWidth)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func renderColorColumn(col column, names Names, colWidth, contentWidth int) string {
	color := ColorFromName(names.statusColor(col.status.ID))
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(color).
		Width(colWidth).
		Align(lipgloss.Center).
		Render(fmt.Sprintf("%s (%d)", strings.ToUpper(col.status.Name), len(col.issues)))

	visible, overflow := split(col.issues)
	cards := make([]string, 0, len(visible)+2)
	cards = append(cards, header)
	for _, issue := range visible {
		body := []string{
			fmt.Sprintf("%s %s", model.FormatID(issue.ID), lookup(names.Types, issue.TypeID)),
			truncate(issue.Subject, contentWidth),
		}
		if issue.AssignedToID != nil {
			body = append(body, truncate("@"+lookup(names.Users, *issue.AssignedToID), contentWidth))
		}
		if issue.DoneRatio > 0 {
			body = append(body, formatProgressBar(issue.DoneRatio, contentWidth))
		}
		cards = append(cards, lipgloss.NewStyle().
			Width(colWidth-2).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(color).
			Render(strings.Join(body, "\n")))
	}
	if overflow > 0 {
		cards = append(cards, lipgloss.NewStyle().
			Width(colWidth).
			Align(lipgloss.Center).
			Foreground(lipgloss.Color("8")).
			Render(fmt.Sprintf("+%d more", overflow)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, cards...)
}

func split(issues []*model.Issue) (visible []*model.Issue, overflow int) {
	if len(issues) > maxCardsPerColumn {
		return issues[:maxCardsPerColumn], len(issues) - maxCardsPerColumn
	}
	return issues, 0
}

// formatProgressBar renders a done ratio as a bar like "▰▰▰▱▱ 60%".
func formatProgressBar(ratio, maxWidth int) string {
	suffix := fmt.Sprintf(" %d%%", ratio)
	barWidth := min(maxWidth-len(suffix), 10)
	if barWidth < 1 {
		return strings.TrimSpace(suffix)
	}
	filled := ratio * barWidth / 100
	return strings.Repeat("▰", filled) + strings.Repeat("▱", barWidth-filled) + suffix
}

func renderPlainBoard(cols []column, names Names) string {
	var b strings.Builder
	for i, col := range cols {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "=== %s (%d) ===\n", strings.ToUpper(col.status.Name), len(col.issues))

		visible, overflow := split(col.issues)
		for _, issue := range visible {
			fmt.Fprintf(&b, "  %s (%s) %d%%\n", model.FormatID(issue.ID), lookup(names.Types, issue.TypeID), issue.DoneRatio)
			fmt.Fprintf(&b, "  %s\n", truncate(issue.Subject, maxSubjectWidth))
			if issue.AssignedToID != nil {
				fmt.Fprintf(&b, "  @%s\n", lookup(names.Users, *issue.AssignedToID))
			}
			b.WriteString("\n")
		}
		if overflow > 0 {
			fmt.Fprintf(&b, "  +%d more\n", overflow)
		}
	}
	return b.String()
}
