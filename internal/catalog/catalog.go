// Package catalog reads the reference data an issue store is seeded with:
// projects, types, statuses, versions, categories, custom fields, users and
// project memberships, from a single TOML file.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

// File is the decoded catalog. Each record kind is an array of tables:
//
//	[[project]]
//	id = 1
//	identifier = "core"
//	types = [1, 2]
type File struct {
	Projects     []model.Project     `toml:"project"`
	Types        []model.Type        `toml:"type"`
	Statuses     []model.IssueStatus `toml:"status"`
	Versions     []model.Version     `toml:"version"`
	Categories   []model.Category    `toml:"category"`
	CustomFields []model.CustomField `toml:"custom_field"`
	Users        []model.User        `toml:"user"`
	Members      []model.Member      `toml:"member"`
}

// Load reads and validates the catalog at path.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a catalog from r and validates it. Unknown keys are rejected
// so that typos do not silently drop data.
func Decode(r io.Reader) (*File, error) {
	var c File
	md, err := toml.NewDecoder(r).Decode(&c)
	if err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("decoding catalog: unknown keys %s", strings.Join(keys, ", "))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks IDs, enum values and cross references. All problems are
// reported together.
func (c *File) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	projects := make(map[int]*model.Project)
	for i := range c.Projects {
		p := &c.Projects[i]
		if p.ID <= 0 {
			fail("project %q: id must be positive", p.Identifier)
			continue
		}
		if _, dup := projects[p.ID]; dup {
			fail("project %d: duplicate id", p.ID)
		}
		if p.Identifier == "" {
			fail("project %d: identifier is required", p.ID)
		}
		projects[p.ID] = p
	}

	types := ids(c.Types, func(t model.Type) int { return t.ID }, "type", fail)
	fields := ids(c.CustomFields, func(f model.CustomField) int { return f.ID }, "custom field", fail)
	users := ids(c.Users, func(u model.User) int { return u.ID }, "user", fail)
	ids(c.Statuses, func(s model.IssueStatus) int { return s.ID }, "status", fail)
	ids(c.Versions, func(v model.Version) int { return v.ID }, "version", fail)
	ids(c.Categories, func(cat model.Category) int { return cat.ID }, "category", fail)

	for _, p := range projects {
		if p.ParentID != nil {
			if _, ok := projects[*p.ParentID]; !ok {
				fail("project %d: unknown parent %d", p.ID, *p.ParentID)
			}
		}
		for _, id := range p.TypeIDs {
			if !types[id] {
				fail("project %d: unknown type %d", p.ID, id)
			}
		}
		for _, id := range p.CustomFieldIDs {
			if !fields[id] {
				fail("project %d: unknown custom field %d", p.ID, id)
			}
		}
	}
	h := make(model.Hierarchy, len(projects))
	for id, p := range projects {
		h[id] = p
	}
	for id := range projects {
		if p, ok := h[h.Root(id)]; ok && p.ParentID != nil {
			fail("project %d: parent chain loops", id)
		}
	}

	for _, t := range c.Types {
		for _, id := range t.CustomFieldIDs {
			if !fields[id] {
				fail("type %d: unknown custom field %d", t.ID, id)
			}
		}
	}

	defaults := 0
	for _, s := range c.Statuses {
		if s.IsDefault {
			defaults++
			if s.IsClosed {
				fail("status %d: the default status cannot be closed", s.ID)
			}
		}
		if r := s.DefaultDoneRatio; r != nil && (*r < 0 || *r > 100) {
			fail("status %d: default_done_ratio must be between 0 and 100", s.ID)
		}
	}
	if defaults > 1 {
		fail("%d statuses are marked default, want at most one", defaults)
	}

	for i := range c.Versions {
		v := &c.Versions[i]
		if v.Status == "" {
			v.Status = model.VersionOpen
		}
		if v.Sharing == "" {
			v.Sharing = model.SharingNone
		}
		if _, ok := projects[v.ProjectID]; !ok {
			fail("version %d: unknown project %d", v.ID, v.ProjectID)
		}
		if err := model.ValidateVersionStatus(v.Status); err != nil {
			fail("version %d: %w", v.ID, err)
		}
		if err := model.ValidateVersionSharing(v.Sharing); err != nil {
			fail("version %d: %w", v.ID, err)
		}
	}

	for _, cat := range c.Categories {
		if _, ok := projects[cat.ProjectID]; !ok {
			fail("category %d: unknown project %d", cat.ID, cat.ProjectID)
		}
		if cat.AssignedToID != nil && !users[*cat.AssignedToID] {
			fail("category %d: unknown assignee %d", cat.ID, *cat.AssignedToID)
		}
	}

	for _, f := range c.CustomFields {
		if err := model.ValidateFieldFormat(f.Format); err != nil {
			fail("custom field %d: %w", f.ID, err)
		}
		if f.Format == model.FormatList && len(f.PossibleValues) == 0 {
			fail("custom field %d: list fields need possible_values", f.ID)
		}
	}

	for i := range c.Users {
		u := &c.Users[i]
		if u.Notification == "" {
			u.Notification = model.NotifyAll
		}
		if u.Login == "" {
			fail("user %d: login is required", u.ID)
		}
		if err := model.ValidateNotificationPolicy(u.Notification); err != nil {
			fail("user %d: %w", u.ID, err)
		}
	}

	for _, m := range c.Members {
		if !users[m.UserID] {
			fail("member: unknown user %d", m.UserID)
		}
		if _, ok := projects[m.ProjectID]; !ok {
			fail("member: unknown project %d", m.ProjectID)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid catalog: %w", errors.Join(errs...))
	}
	return nil
}

// ids collects the positive, unique IDs of records, reporting the rest.
func ids[T any](records []T, id func(T) int, what string, fail func(string, ...any)) map[int]bool {
	seen := make(map[int]bool, len(records))
	for _, r := range records {
		n := id(r)
		switch {
		case n <= 0:
			fail("%s: id must be positive, got %d", what, n)
		case seen[n]:
			fail("%s %d: duplicate id", what, n)
		default:
			seen[n] = true
		}
	}
	return seen
}
