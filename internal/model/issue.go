package model

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// IDPrefix is the prefix used for issue IDs in display and JSON output.
const IDPrefix = "WG"

// FormatID returns the display form of an issue ID, e.g. "WG-5".
func FormatID(id int) string {
	return fmt.Sprintf("%s-%d", IDPrefix, id)
}

// ParseID accepts both "WG-5" and "5" and returns the numeric ID.
// The prefix check is case-insensitive; len(prefix) is safe to use for
// slicing because IDPrefix is ASCII and ToUpper preserves its byte length.
func ParseID(input string) (int, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return 0, fmt.Errorf("empty issue ID")
	}

	prefix := IDPrefix + "-"
	if strings.HasPrefix(strings.ToUpper(s), prefix) {
		s = s[len(prefix):]
	}

	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid issue ID %q: %w", input, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid issue ID %q: must be positive", input)
	}

	return id, nil
}

// Issue represents a tracked work item. Optional references are nil when
// unset. CustomValues maps custom field IDs to raw string values.
type Issue struct {
	ID             int
	ProjectID      int
	TypeID         int
	StatusID       int
	AuthorID       int
	AssignedToID   *int
	CategoryID     *int
	FixedVersionID *int
	Subject        string
	Description    string
	StartDate      *time.Time
	DueDate        *time.Time
	DoneRatio      int
	EstimatedHours *float64
	CustomValues   map[int]string
	WatcherIDs     []int
	LockVersion    int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsNew reports whether the issue has not been persisted yet.
func (i *Issue) IsNew() bool {
	return i.ID == 0
}

// Clone returns a deep copy of the issue so that callers can mutate the
// copy without touching the original.
func (i *Issue) Clone() *Issue {
	c := *i
	c.AssignedToID = cloneInt(i.AssignedToID)
	c.CategoryID = cloneInt(i.CategoryID)
	c.FixedVersionID = cloneInt(i.FixedVersionID)
	c.StartDate = cloneTime(i.StartDate)
	c.DueDate = cloneTime(i.DueDate)
	if i.EstimatedHours != nil {
		h := *i.EstimatedHours
		c.EstimatedHours = &h
	}
	c.CustomValues = maps.Clone(i.CustomValues)
	if c.CustomValues == nil {
		c.CustomValues = make(map[int]string)
	}
	c.WatcherIDs = slices.Clone(i.WatcherIDs)
	return &c
}

// IsAssignedTo reports whether the issue is assigned to the given user.
func (i *Issue) IsAssignedTo(userID int) bool {
	return i.AssignedToID != nil && *i.AssignedToID == userID
}

// IsWatchedBy reports whether the user watches the issue.
func (i *Issue) IsWatchedBy(userID int) bool {
	return slices.Contains(i.WatcherIDs, userID)
}

// Overdue reports whether the due date has passed. Closed issues are never
// overdue.
func (i *Issue) Overdue(today time.Time, closed bool) bool {
	if i.DueDate == nil || closed {
		return false
	}
	return i.DueDate.Before(DateOnly(today))
}

// BehindSchedule reports whether the issue has used more calendar time than
// its done ratio accounts for. Issues without both dates are never behind.
func (i *Issue) BehindSchedule(today time.Time) bool {
	if i.StartDate == nil || i.DueDate == nil {
		return false
	}
	span := DaysBetween(*i.StartDate, *i.DueDate) + 1
	doneDate := AddDays(*i.StartDate, span*i.DoneRatio/100)
	return !doneDate.After(DateOnly(today))
}

// issueJSON is the JSON wire format for Issue.
type issueJSON struct {
	ID             string            `json:"id"`
	ProjectID      int               `json:"project_id"`
	TypeID         int               `json:"type_id"`
	StatusID       int               `json:"status_id"`
	AuthorID       int               `json:"author_id"`
	AssignedToID   *int              `json:"assigned_to_id,omitempty"`
	CategoryID     *int              `json:"category_id,omitempty"`
	FixedVersionID *int              `json:"fixed_version_id,omitempty"`
	Subject        string            `json:"subject"`
	Description    string            `json:"description"`
	StartDate      *string           `json:"start_date,omitempty"`
	DueDate        *string           `json:"due_date,omitempty"`
	DoneRatio      int               `json:"done_ratio"`
	EstimatedHours *float64          `json:"estimated_hours,omitempty"`
	CustomValues   map[string]string `json:"custom_field_values,omitempty"`
	WatcherIDs     []int             `json:"watcher_ids,omitempty"`
	LockVersion    int               `json:"lock_version"`
	CreatedAt      string            `json:"created_at"`
	UpdatedAt      string            `json:"updated_at"`
}

// MarshalJSON implements custom JSON serialization for Issue.
func (i Issue) MarshalJSON() ([]byte, error) {
	j := issueJSON{
		ID:             FormatID(i.ID),
		ProjectID:      i.ProjectID,
		TypeID:         i.TypeID,
		StatusID:       i.StatusID,
		AuthorID:       i.AuthorID,
		AssignedToID:   i.AssignedToID,
		CategoryID:     i.CategoryID,
		FixedVersionID: i.FixedVersionID,
		Subject:        i.Subject,
		Description:    i.Description,
		DoneRatio:      i.DoneRatio,
		EstimatedHours: i.EstimatedHours,
		WatcherIDs:     i.WatcherIDs,
		LockVersion:    i.LockVersion,
		CreatedAt:      i.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      i.UpdatedAt.UTC().Format(time.RFC3339),
	}

	if i.StartDate != nil {
		s := FormatDate(*i.StartDate)
		j.StartDate = &s
	}
	if i.DueDate != nil {
		s := FormatDate(*i.DueDate)
		j.DueDate = &s
	}
	if len(i.CustomValues) > 0 {
		j.CustomValues = make(map[string]string, len(i.CustomValues))
		for id, v := range i.CustomValues {
			j.CustomValues[strconv.Itoa(id)] = v
		}
	}

	return json.Marshal(j)
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
