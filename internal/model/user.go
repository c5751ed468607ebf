package model

import (
	"fmt"
	"slices"
	"time"
)

// NotificationPolicy is a user's mail notification preference.
type NotificationPolicy string

const (
	NotifyAll          NotificationPolicy = "all"
	NotifyNone         NotificationPolicy = "none"
	NotifyOnlyAssigned NotificationPolicy = "only_assigned"
	NotifyOnlyOwner    NotificationPolicy = "only_owner"
)

var validNotificationPolicies = []NotificationPolicy{
	NotifyAll,
	NotifyNone,
	NotifyOnlyAssigned,
	NotifyOnlyOwner,
}

// ValidateNotificationPolicy returns an error if p is not a recognized policy.
func ValidateNotificationPolicy(p NotificationPolicy) error {
	if slices.Contains(validNotificationPolicies, p) {
		return nil
	}
	return fmt.Errorf("invalid notification policy %q: must be one of %v", p, validNotificationPolicies)
}

// User is an account that authors, is assigned to, or watches issues.
type User struct {
	ID           int                `json:"id" toml:"id"`
	Login        string             `json:"login" toml:"login"`
	Mail         string             `json:"mail" toml:"mail"`
	Active       bool               `json:"active" toml:"active"`
	Admin        bool               `json:"admin" toml:"admin"`
	Notification NotificationPolicy `json:"notification" toml:"notification"`
}

// Member ties a user to a project. CanView is false when the user's roles in
// the project lack the permission to view issues.
type Member struct {
	UserID    int  `json:"user_id" toml:"user"`
	ProjectID int  `json:"project_id" toml:"project"`
	CanView   bool `json:"can_view" toml:"can_view"`
}

// TimeEntry is logged time. IssueID is nil once its issue is destroyed.
type TimeEntry struct {
	ID        int       `json:"id"`
	IssueID   *int      `json:"issue_id,omitempty"`
	ProjectID int       `json:"project_id"`
	UserID    int       `json:"user_id"`
	Hours     float64   `json:"hours"`
	CreatedAt time.Time `json:"created_at"`
}
