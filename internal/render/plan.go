package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

// RenderPlan renders execution levels: every issue of a level may start once
// the levels before it are done. Issues left in a cycle are listed apart.
func RenderPlan(levels [][]*model.Issue, cyclic []*model.Issue, names Names) string {
	if len(levels) == 0 && len(cyclic) == 0 {
		return EmptyState("Nothing to plan.", "All issues are closed or none match.", false)
	}

	if !ColorsEnabled() {
		var b strings.Builder
		for i, level := range levels {
			fmt.Fprintf(&b, "Level %d (%d)\n", i+1, len(level))
			for _, issue := range level {
				fmt.Fprintf(&b, "  %s\n", planNode(issue, names, false))
			}
		}
		if len(cyclic) > 0 {
			fmt.Fprintf(&b, "In cycles (%d)\n", len(cyclic))
			for _, issue := range cyclic {
				fmt.Fprintf(&b, "  %s\n", planNode(issue, names, false))
			}
		}
		return b.String()
	}

	t := tree.New().Root(sectionStyle.Render("Plan"))
	for i, level := range levels {
		node := tree.Root(fmt.Sprintf("Level %d (%d)", i+1, len(level)))
		for _, issue := range level {
			node.Child(planNode(issue, names, true))
		}
		t.Child(node)
	}
	if len(cyclic) > 0 {
		node := tree.Root(lipgloss.NewStyle().Foreground(ColorFromName("red")).Render(
			fmt.Sprintf("In cycles (%d)", len(cyclic))))
		for _, issue := range cyclic {
			node.Child(planNode(issue, names, true))
		}
		t.Child(node)
	}
	return t.String()
}

func planNode(issue *model.Issue, names Names, color bool) string {
	id := model.FormatID(issue.ID)
	status := names.statusLabel(issue.StatusID)
	subject := truncate(issue.Subject, maxSubjectWidth)
	if color {
		status = lipgloss.NewStyle().Foreground(ColorFromName(names.statusColor(issue.StatusID))).Render(status)
		subject = lipgloss.NewStyle().Bold(true).Render(subject)
	}
	return fmt.Sprintf("%s %s %s", id, status, subject)
}
