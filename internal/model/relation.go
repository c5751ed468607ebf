package model

import (
	"fmt"
	"strings"
	"time"
)

// RelationKind represents the kind of relationship between two issues.
type RelationKind string

const (
	RelationRelates      RelationKind = "relates"
	RelationDuplicates   RelationKind = "duplicates"
	RelationDuplicatedBy RelationKind = "duplicated_by"
	RelationBlocks       RelationKind = "blocks"
	RelationBlockedBy    RelationKind = "blocked_by"
	RelationPrecedes     RelationKind = "precedes"
	RelationFollows      RelationKind = "follows"
)

var validRelationKinds = []RelationKind{
	RelationRelates,
	RelationDuplicates,
	RelationDuplicatedBy,
	RelationBlocks,
	RelationBlockedBy,
	RelationPrecedes,
	RelationFollows,
}

// ValidateRelationKind returns an error if rk is not a recognized relation kind.
func ValidateRelationKind(rk RelationKind) error {
	for _, v := range validRelationKinds {
		if rk == v {
			return nil
		}
	}
	return fmt.Errorf("invalid relation kind %q: must be one of %v", rk, validRelationKinds)
}

// ParseRelationKind accepts both hyphenated ("blocked-by") and underscored
// ("blocked_by") forms and returns the canonical underscored RelationKind.
func ParseRelationKind(input string) (RelationKind, error) {
	normalized := RelationKind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(input)), "-", "_"))
	if err := ValidateRelationKind(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// Inverse returns the kind seen from the other end of the relation.
// "relates" is symmetric and returns itself.
func (rk RelationKind) Inverse() RelationKind {
	switch rk {
	case RelationDuplicates:
		return RelationDuplicatedBy
	case RelationDuplicatedBy:
		return RelationDuplicates
	case RelationBlocks:
		return RelationBlockedBy
	case RelationBlockedBy:
		return RelationBlocks
	case RelationPrecedes:
		return RelationFollows
	case RelationFollows:
		return RelationPrecedes
	default:
		return rk
	}
}

// IsDerived reports whether rk is a view kind that is never stored.
func (rk RelationKind) IsDerived() bool {
	return rk == RelationDuplicatedBy || rk == RelationBlockedBy || rk == RelationFollows
}

// Stored returns the kind under which relations of rk are persisted.
func (rk RelationKind) Stored() RelationKind {
	if rk.IsDerived() {
		return rk.Inverse()
	}
	return rk
}

// IsOrdering reports whether relations of rk must not form same-kind cycles.
func (rk RelationKind) IsOrdering() bool {
	switch rk.Stored() {
	case RelationPrecedes, RelationBlocks:
		return true
	default:
		return false
	}
}

// Relation is a directed typed edge between two issues.
type Relation struct {
	ID        int          `json:"id"`
	FromID    int          `json:"from_id"`
	ToID      int          `json:"to_id"`
	Kind      RelationKind `json:"kind"`
	CreatedAt time.Time    `json:"created_at"`
}

// Normalize returns the relation in its stored direction: derived kinds are
// flipped so that "B follows A" becomes "A precedes B".
func (r Relation) Normalize() Relation {
	if !r.Kind.IsDerived() {
		return r
	}
	r.FromID, r.ToID = r.ToID, r.FromID
	r.Kind = r.Kind.Inverse()
	return r
}

// Other returns the issue on the opposite end from issueID.
func (r Relation) Other(issueID int) int {
	if r.FromID == issueID {
		return r.ToID
	}
	return r.FromID
}

// KindFor returns the relation kind as seen from issueID.
func (r Relation) KindFor(issueID int) RelationKind {
	if r.FromID == issueID {
		return r.Kind
	}
	return r.Kind.Inverse()
}

// Journals records the relation on both of its issues, each seeing the kind
// from its own side. With removed set the relation is recorded as gone.
func (r Relation) Journals(changeSetID string, userID int, removed bool, at time.Time) []*Journal {
	out := make([]*Journal, 0, 2)
	for _, issueID := range []int{r.FromID, r.ToID} {
		other := FormatID(r.Other(issueID))
		change := Change{New: other}
		if removed {
			change = Change{Old: other}
		}
		out = append(out, &Journal{
			IssueID:     issueID,
			UserID:      userID,
			ChangeSetID: changeSetID,
			Details:     map[string]Change{"relation." + string(r.KindFor(issueID)): change},
			CreatedAt:   at,
		})
	}
	return out
}
