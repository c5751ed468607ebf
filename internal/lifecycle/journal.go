package lifecycle

import (
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

// Journal returns the changed fields between two states of an issue, keyed
// by attribute name (custom fields as cf_<id>). Text fields are compared
// after line-ending normalization, so a CRLF-only edit changes nothing.
func Journal(before, after *model.Issue) map[string]model.Change {
	details := make(map[string]model.Change)
	add := func(field, old, new string) {
		if old != new {
			details[field] = model.Change{Old: old, New: new}
		}
	}

	add(AttrProject, itoa(before.ProjectID), itoa(after.ProjectID))
	add(AttrType, itoa(before.TypeID), itoa(after.TypeID))
	add(AttrStatus, itoa(before.StatusID), itoa(after.StatusID))
	add(AttrAuthor, itoa(before.AuthorID), itoa(after.AuthorID))
	add(AttrAssignedTo, ptoa(before.AssignedToID), ptoa(after.AssignedToID))
	add(AttrCategory, ptoa(before.CategoryID), ptoa(after.CategoryID))
	add(AttrFixedVersion, ptoa(before.FixedVersionID), ptoa(after.FixedVersionID))
	add(AttrSubject, before.Subject, after.Subject)
	add(AttrDescription, model.NormalizeText(before.Description), model.NormalizeText(after.Description))
	add(AttrStartDate, dtoa(before.StartDate), dtoa(after.StartDate))
	add(AttrDueDate, dtoa(before.DueDate), dtoa(after.DueDate))
	add(AttrDoneRatio, itoa(before.DoneRatio), itoa(after.DoneRatio))
	add(AttrEstimatedHours, htoa(before.EstimatedHours), htoa(after.EstimatedHours))

	ids := make(map[int]struct{})
	for id := range before.CustomValues {
		ids[id] = struct{}{}
	}
	for id := range after.CustomValues {
		ids[id] = struct{}{}
	}
	for id := range ids {
		add(model.CustomFieldKey(id), before.CustomValues[id], after.CustomValues[id])
	}

	return details
}

func (l *Lifecycle) newJournal(before, after *model.Issue, actor *model.User, changeSetID, notes string) *model.Journal {
	j := &model.Journal{
		IssueID:     after.ID,
		ChangeSetID: changeSetID,
		Notes:       notes,
		Details:     Journal(before, after),
		CreatedAt:   l.now(),
	}
	if actor != nil {
		j.UserID = actor.ID
	}
	return j
}

func itoa(n int) string { return strconv.Itoa(n) }

func ptoa(p *int) string {
	if p == nil {
		return ""
	}
	return strconv.Itoa(*p)
}

func dtoa(t *time.Time) string {
	if t == nil {
		return ""
	}
	return model.FormatDate(*t)
}

func htoa(h *float64) string {
	if h == nil {
		return ""
	}
	return strconv.FormatFloat(*h, 'f', -1, 64)
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalDate(a, b *time.Time) bool {
	return dtoa(a) == dtoa(b)
}

func isNotFound(err error) bool {
	return errors.Is(err, model.ErrNotFound)
}

// mergeByID concatenates issue lists, keeping the first of each ID, sorted
// by ID.
func mergeByID(lists ...[]*model.Issue) []*model.Issue {
	seen := make(map[int]bool)
	var out []*model.Issue
	for _, list := range lists {
		for _, issue := range list {
			if !seen[issue.ID] {
				seen[issue.ID] = true
				out = append(out, issue)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
