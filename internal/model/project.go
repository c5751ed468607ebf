package model

import (
	"fmt"
	"slices"
)

// Project groups issues and owns categories and versions.
type Project struct {
	ID             int    `json:"id" toml:"id"`
	Name           string `json:"name" toml:"name"`
	Identifier     string `json:"identifier" toml:"identifier"`
	ParentID       *int   `json:"parent_id,omitempty" toml:"parent_id"`
	IsPublic       bool   `json:"is_public" toml:"public"`
	TypeIDs        []int  `json:"type_ids" toml:"types"`
	CustomFieldIDs []int  `json:"custom_field_ids" toml:"custom_fields"`
}

// HasType reports whether typeID is enabled for the project.
func (p *Project) HasType(typeID int) bool {
	return slices.Contains(p.TypeIDs, typeID)
}

// Type is an issue type (tracker); it decides which custom fields apply.
type Type struct {
	ID             int    `json:"id" toml:"id"`
	Name           string `json:"name" toml:"name"`
	CustomFieldIDs []int  `json:"custom_field_ids" toml:"custom_fields"`
}

// Category is a per-project issue category with an optional default assignee.
type Category struct {
	ID           int    `json:"id" toml:"id"`
	ProjectID    int    `json:"project_id" toml:"project"`
	Name         string `json:"name" toml:"name"`
	AssignedToID *int   `json:"assigned_to_id,omitempty" toml:"assigned_to"`
}

// IssueStatus is a workflow state. DefaultDoneRatio is used when the done
// ratio is derived from the status.
type IssueStatus struct {
	ID               int    `json:"id" toml:"id"`
	Name             string `json:"name" toml:"name"`
	IsClosed         bool   `json:"is_closed" toml:"closed"`
	IsDefault        bool   `json:"is_default" toml:"default"`
	DefaultDoneRatio *int   `json:"default_done_ratio,omitempty" toml:"default_done_ratio"`
	Position         int    `json:"position" toml:"position"`
}

// VersionStatus is the state of a fix version.
type VersionStatus string

const (
	VersionOpen   VersionStatus = "open"
	VersionLocked VersionStatus = "locked"
	VersionClosed VersionStatus = "closed"
)

var validVersionStatuses = []VersionStatus{VersionOpen, VersionLocked, VersionClosed}

// ValidateVersionStatus returns an error if s is not a recognized version status.
func ValidateVersionStatus(s VersionStatus) error {
	if slices.Contains(validVersionStatuses, s) {
		return nil
	}
	return fmt.Errorf("invalid version status %q: must be one of %v", s, validVersionStatuses)
}

// VersionSharing controls which projects may assign issues to a version.
type VersionSharing string

const (
	SharingNone        VersionSharing = "none"
	SharingDescendants VersionSharing = "descendants"
	SharingHierarchy   VersionSharing = "hierarchy"
	SharingTree        VersionSharing = "tree"
	SharingSystem      VersionSharing = "system"
)

var validVersionSharings = []VersionSharing{
	SharingNone,
	SharingDescendants,
	SharingHierarchy,
	SharingTree,
	SharingSystem,
}

// ValidateVersionSharing returns an error if s is not a recognized sharing scope.
func ValidateVersionSharing(s VersionSharing) error {
	if slices.Contains(validVersionSharings, s) {
		return nil
	}
	return fmt.Errorf("invalid version sharing %q: must be one of %v", s, validVersionSharings)
}

// Version is a fix version (milestone).
type Version struct {
	ID        int            `json:"id" toml:"id"`
	ProjectID int            `json:"project_id" toml:"project"`
	Name      string         `json:"name" toml:"name"`
	Status    VersionStatus  `json:"status" toml:"status"`
	Sharing   VersionSharing `json:"sharing" toml:"sharing"`
}

// IsOpen reports whether issues may be newly assigned to the version.
func (v *Version) IsOpen() bool {
	return v.Status == VersionOpen || v.Status == ""
}

// IsClosed reports whether the version is closed.
func (v *Version) IsClosed() bool {
	return v.Status == VersionClosed
}

// Hierarchy resolves project ancestry for sharing checks.
type Hierarchy map[int]*Project

// Ancestors returns the IDs of the ancestors of projectID, nearest first.
// A parent loop stops the walk instead of recursing forever.
func (h Hierarchy) Ancestors(projectID int) []int {
	var out []int
	seen := map[int]bool{projectID: true}
	p, ok := h[projectID]
	for ok && p.ParentID != nil && !seen[*p.ParentID] {
		seen[*p.ParentID] = true
		out = append(out, *p.ParentID)
		p, ok = h[*p.ParentID]
	}
	return out
}

// Root returns the top-most ancestor of projectID (itself when it has none).
func (h Hierarchy) Root(projectID int) int {
	anc := h.Ancestors(projectID)
	if len(anc) == 0 {
		return projectID
	}
	return anc[len(anc)-1]
}

// IsAncestor reports whether ancestorID is a strict ancestor of projectID.
func (h Hierarchy) IsAncestor(ancestorID, projectID int) bool {
	return slices.Contains(h.Ancestors(projectID), ancestorID)
}

// SharedWith reports whether version v may be used by issues of projectID
// according to its sharing scope.
func (h Hierarchy) SharedWith(v *Version, projectID int) bool {
	if v.ProjectID == projectID || v.Sharing == SharingSystem {
		return true
	}
	switch v.Sharing {
	case SharingDescendants:
		return h.IsAncestor(v.ProjectID, projectID)
	case SharingHierarchy:
		return h.IsAncestor(v.ProjectID, projectID) || h.IsAncestor(projectID, v.ProjectID)
	case SharingTree:
		return h.Root(v.ProjectID) == h.Root(projectID)
	default:
		return false
	}
}
