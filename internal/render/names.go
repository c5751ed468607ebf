package render

import (
	"sort"
	"strconv"

	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

// Names resolves the reference IDs an issue carries to display labels. Any
// ID missing from a map is shown as "#<id>".
type Names struct {
	Projects   map[int]string
	Types      map[int]string
	Statuses   map[int]model.IssueStatus
	Users      map[int]string
	Categories map[int]string
	Versions   map[int]string
	Fields     map[int]string
}

func lookup(m map[int]string, id int) string {
	if name, ok := m[id]; ok {
		return name
	}
	return "#" + strconv.Itoa(id)
}

func lookupPtr(m map[int]string, id *int) string {
	if id == nil {
		return ""
	}
	return lookup(m, *id)
}

// IsClosed reports whether statusID is a closed status.
func (n Names) IsClosed(statusID int) bool {
	return n.Statuses[statusID].IsClosed
}

func (n Names) status(id int) string {
	if s, ok := n.Statuses[id]; ok {
		return s.Name
	}
	return "#" + strconv.Itoa(id)
}

// StatusOrder returns the known statuses in workflow order.
func (n Names) StatusOrder() []model.IssueStatus {
	out := make([]model.IssueStatus, 0, len(n.Statuses))
	for _, s := range n.Statuses {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// statusColor returns a color name for the status: green once closed, blue
// for the default status and yellow for anything in between.
func (n Names) statusColor(id int) string {
	s := n.Statuses[id]
	switch {
	case s.IsClosed:
		return "green"
	case s.IsDefault:
		return "blue"
	default:
		return "yellow"
	}
}

// statusLabel returns the status name with an icon, e.g. "✔ Closed".
func (n Names) statusLabel(id int) string {
	icon := "○" // ○
	if n.IsClosed(id) {
		icon = "✔" // ✔
	}
	return icon + " " + n.status(id)
}
