package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"

	"github.com/charmbracelet/lipgloss"

	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

// DetailOptions carries what the detail view shows besides the issue itself.
type DetailOptions struct {
	Relations  []model.Relation
	Journals   []model.Journal // most recent first
	SpentHours float64
	Today      time.Time
}

var (
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// RenderDetail renders a full issue view: header, attributes, custom
// values, description, relations and history.
func RenderDetail(issue *model.Issue, names Names, opts DetailOptions) string {
	color := ColorsEnabled()
	section := func(title string) string {
		if color {
			return sectionStyle.Render(title)
		}
		return title
	}

	var sections []string
	sections = append(sections, renderHeader(issue, names, color))
	sections = append(sections, renderFields(issue, names, opts, color))

	if len(issue.CustomValues) > 0 {
		sections = append(sections, section("Custom fields")+"\n"+renderCustomValues(issue, names, color))
	}
	if issue.Description != "" {
		desc, err := RenderMarkdown(issue.Description)
		if err != nil {
			desc = issue.Description
		}
		sections = append(sections, section("Description")+"\n"+desc)
	}
	if len(opts.Relations) > 0 {
		sections = append(sections, section("Relations")+"\n"+renderRelations(issue.ID, opts.Relations, color))
	}
	if len(opts.Journals) > 0 {
		sections = append(sections, section("History")+"\n"+renderJournals(opts.Journals, names, color))
	}

	out := strings.Join(sections, "\n\n")
	if !color {
		out += "\n"
	}
	return out
}

func renderHeader(issue *model.Issue, names Names, color bool) string {
	id := model.FormatID(issue.ID)
	typ := lookup(names.Types, issue.TypeID)
	status := names.statusLabel(issue.StatusID)
	if !color {
		return fmt.Sprintf("%s %s  %s\n%s", typ, id, issue.Subject, status)
	}
	return fmt.Sprintf("%s %s  %s\n%s",
		lipgloss.NewStyle().Foreground(ColorFromName("magenta")).Bold(true).Render(typ),
		lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Render(id),
		lipgloss.NewStyle().Bold(true).Render(issue.Subject),
		lipgloss.NewStyle().Foreground(ColorFromName(names.statusColor(issue.StatusID))).Bold(true).Render(status),
	)
}

func renderFields(issue *model.Issue, names Names, opts DetailOptions, color bool) string {
	type field struct{ label, value string }
	fields := []field{
		{"Project", lookup(names.Projects, issue.ProjectID)},
		{"Author", lookup(names.Users, issue.AuthorID)},
		{"Assignee", lookupPtr(names.Users, issue.AssignedToID)},
		{"Category", lookupPtr(names.Categories, issue.CategoryID)},
		{"Version", lookupPtr(names.Versions, issue.FixedVersionID)},
	}
	if issue.StartDate != nil {
		fields = append(fields, field{"Start", model.FormatDate(*issue.StartDate)})
	}
	if issue.DueDate != nil {
		due := model.FormatDate(*issue.DueDate)
		if !opts.Today.IsZero() && issue.Overdue(opts.Today, names.IsClosed(issue.StatusID)) {
			due += " (overdue)"
		}
		fields = append(fields, field{"Due", due})
	}
	fields = append(fields, field{"Done", fmt.Sprintf("%d%%", issue.DoneRatio)})
	if issue.EstimatedHours != nil {
		fields = append(fields, field{"Estimated", humanize.Ftoa(*issue.EstimatedHours) + "h"})
	}
	if opts.SpentHours > 0 {
		fields = append(fields, field{"Spent", humanize.Ftoa(opts.SpentHours) + "h"})
	}
	if len(issue.WatcherIDs) > 0 {
		watchers := make([]string, len(issue.WatcherIDs))
		for i, id := range issue.WatcherIDs {
			watchers[i] = lookup(names.Users, id)
		}
		fields = append(fields, field{"Watchers", strings.Join(watchers, ", ")})
	}
	fields = append(fields,
		field{"Created", humanize.Time(issue.CreatedAt)},
		field{"Updated", humanize.Time(issue.UpdatedAt)},
	)

	var lines []string
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		label := f.label + ":"
		if color {
			label = labelStyle.Render(label)
		}
		lines = append(lines, label+" "+f.value)
	}
	return strings.Join(lines, "\n")
}

func renderCustomValues(issue *model.Issue, names Names, color bool) string {
	ids := make([]int, 0, len(issue.CustomValues))
	for id := range issue.CustomValues {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	lines := make([]string, len(ids))
	for i, id := range ids {
		label := lookup(names.Fields, id) + ":"
		if color {
			label = labelStyle.Render(label)
		}
		lines[i] = "  " + label + " " + issue.CustomValues[id]
	}
	return strings.Join(lines, "\n")
}

// RelationArrow returns a directional arrow for a relation kind as seen from
// one of its issues.
func RelationArrow(kind model.RelationKind) string {
	switch kind {
	case model.RelationRelates:
		return "↔" // ↔
	case model.RelationDuplicates, model.RelationDuplicatedBy:
		return "≡" // ≡
	case model.RelationBlockedBy, model.RelationFollows:
		return "←" // ←
	default:
		return "→" // →
	}
}

// RelationColor returns a color name for a relation kind.
func RelationColor(kind model.RelationKind) string {
	switch kind.Stored() {
	case model.RelationBlocks:
		return "red"
	case model.RelationPrecedes:
		return "yellow"
	case model.RelationRelates:
		return "blue"
	case model.RelationDuplicates:
		return "gray"
	default:
		return "white"
	}
}

func renderRelations(issueID int, relations []model.Relation, color bool) string {
	lines := make([]string, len(relations))
	for i, rel := range relations {
		kind := rel.KindFor(issueID)
		label := string(kind)
		if color {
			label = lipgloss.NewStyle().Foreground(ColorFromName(RelationColor(kind))).Render(label)
		}
		lines[i] = fmt.Sprintf("  %s %s %s", RelationArrow(kind), label, model.FormatID(rel.Other(issueID)))
	}
	return strings.Join(lines, "\n")
}

func renderJournals(journals []model.Journal, names Names, color bool) string {
	var parts []string
	for _, j := range journals {
		who := "system"
		if j.UserID != 0 {
			who = lookup(names.Users, j.UserID)
		}
		when := humanize.Time(j.CreatedAt)
		if color {
			who = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Render(who)
			when = labelStyle.Render(when)
		}

		lines := []string{"  " + who + "  " + when}
		fields := make([]string, 0, len(j.Details))
		for f := range j.Details {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			lines = append(lines, "    "+describeChange(fieldLabel(f, names), j.Details[f]))
		}
		if strings.TrimSpace(j.Notes) != "" {
			notes, err := RenderMarkdown(j.Notes)
			if err != nil {
				notes = j.Notes
			}
			lines = append(lines, "    "+strings.ReplaceAll(notes, "\n", "\n    "))
		}
		parts = append(parts, strings.Join(lines, "\n"))
	}
	return strings.Join(parts, "\n\n")
}

// fieldLabel names custom field keys after their field.
func fieldLabel(key string, names Names) string {
	for id, name := range names.Fields {
		if model.CustomFieldKey(id) == key {
			return name
		}
	}
	return key
}

func describeChange(field string, c model.Change) string {
	switch {
	case c.Old != "" && c.New != "":
		return fmt.Sprintf("%s: %s -> %s", field, c.Old, c.New)
	case c.New != "":
		return fmt.Sprintf("%s set to %s", field, c.New)
	case c.Old != "":
		return fmt.Sprintf("%s cleared (was %s)", field, c.Old)
	default:
		return field + " changed"
	}
}
