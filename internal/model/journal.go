package model

import (
	"strings"
	"time"
)

// Change is the old and new value of a single journaled field.
type Change struct {
	Old string `json:"old"`
	New string `json:"new"`
}

// Journal is a change record for one issue. ChangeSetID groups the journals
// written by a single engine operation (for example a close and the
// duplicates it cascaded to).
type Journal struct {
	ID          int               `json:"id"`
	IssueID     int               `json:"issue_id"`
	UserID      int               `json:"user_id"`
	ChangeSetID string            `json:"change_set_id"`
	Notes       string            `json:"notes,omitempty"`
	Details     map[string]Change `json:"details"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Empty reports whether the journal carries neither notes nor changes.
func (j *Journal) Empty() bool {
	return strings.TrimSpace(j.Notes) == "" && len(j.Details) == 0
}

// NormalizeText converts CRLF and lone CR line endings to LF.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
