package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ALT-F4-LLC/workgraph/internal/db"
	"github.com/ALT-F4-LLC/workgraph/internal/lifecycle"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
	"github.com/ALT-F4-LLC/workgraph/internal/output"
	"github.com/ALT-F4-LLC/workgraph/internal/render"
)

// catalogReader is the part of the store the CLI resolves names against.
type catalogReader interface {
	ProjectByIdentifier(ctx context.Context, identifier string) (*model.Project, error)
	Projects(ctx context.Context) (model.Hierarchy, error)
	Types(ctx context.Context) ([]model.Type, error)
	Statuses(ctx context.Context) ([]model.IssueStatus, error)
	Versions(ctx context.Context) ([]model.Version, error)
	Categories(ctx context.Context) ([]model.Category, error)
	CustomFields(ctx context.Context) ([]model.CustomField, error)
	Users(ctx context.Context) ([]model.User, error)
}

var _ catalogReader = (*db.Store)(nil)

// resolver turns user input into catalog IDs. Every lookup accepts a numeric
// ID as well as the record's name.
type resolver struct {
	ctx context.Context
	cat catalogReader
}

func newResolver(ctx context.Context, cat catalogReader) *resolver {
	return &resolver{ctx: ctx, cat: cat}
}

func notFound(what, input string) error {
	return cmdErr(fmt.Errorf("unknown %s %q", what, input), output.ErrNotFound)
}

func (r *resolver) project(input string) (int, error) {
	if id, err := strconv.Atoi(input); err == nil {
		return id, nil
	}
	p, err := r.cat.ProjectByIdentifier(r.ctx, input)
	if err != nil {
		return 0, notFound("project", input)
	}
	return p.ID, nil
}

func (r *resolver) issueType(input string) (int, error) {
	if id, err := strconv.Atoi(input); err == nil {
		return id, nil
	}
	types, err := r.cat.Types(r.ctx)
	if err != nil {
		return 0, err
	}
	for _, t := range types {
		if strings.EqualFold(t.Name, input) {
			return t.ID, nil
		}
	}
	return 0, notFound("type", input)
}

func (r *resolver) status(input string) (int, error) {
	if id, err := strconv.Atoi(input); err == nil {
		return id, nil
	}
	statuses, err := r.cat.Statuses(r.ctx)
	if err != nil {
		return 0, err
	}
	for _, s := range statuses {
		if strings.EqualFold(s.Name, input) {
			return s.ID, nil
		}
	}
	return 0, notFound("status", input)
}

func (r *resolver) user(input string) (int, error) {
	if id, err := strconv.Atoi(input); err == nil {
		return id, nil
	}
	users, err := r.cat.Users(r.ctx)
	if err != nil {
		return 0, err
	}
	login := strings.TrimPrefix(input, "@")
	for _, u := range users {
		if u.Login == login {
			return u.ID, nil
		}
	}
	return 0, notFound("user", input)
}

func (r *resolver) users(input string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := r.user(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *resolver) version(input string) (int, error) {
	if id, err := strconv.Atoi(input); err == nil {
		return id, nil
	}
	versions, err := r.cat.Versions(r.ctx)
	if err != nil {
		return 0, err
	}
	var matches []int
	for _, v := range versions {
		if v.Name == input {
			matches = append(matches, v.ID)
		}
	}
	return single("version", input, matches)
}

func (r *resolver) category(input string) (int, error) {
	if id, err := strconv.Atoi(input); err == nil {
		return id, nil
	}
	categories, err := r.cat.Categories(r.ctx)
	if err != nil {
		return 0, err
	}
	var matches []int
	for _, c := range categories {
		if strings.EqualFold(c.Name, input) {
			matches = append(matches, c.ID)
		}
	}
	return single("category", input, matches)
}

func (r *resolver) customField(input string) (int, error) {
	if id, err := strconv.Atoi(strings.TrimPrefix(input, "cf_")); err == nil {
		return id, nil
	}
	fields, err := r.cat.CustomFields(r.ctx)
	if err != nil {
		return 0, err
	}
	for _, f := range fields {
		if strings.EqualFold(f.Name, input) {
			return f.ID, nil
		}
	}
	return 0, notFound("custom field", input)
}

func single(what, input string, matches []int) (int, error) {
	switch len(matches) {
	case 0:
		return 0, notFound(what, input)
	case 1:
		return matches[0], nil
	default:
		return 0, cmdErr(fmt.Errorf("%s %q is ambiguous, use its ID", what, input), output.ErrValidation)
	}
}

// attributeAliases maps the short keys accepted on the command line to
// attribute names.
var attributeAliases = map[string]string{
	"project":       lifecycle.AttrProject,
	"type":          lifecycle.AttrType,
	"tracker":       lifecycle.AttrType,
	"status":        lifecycle.AttrStatus,
	"author":        lifecycle.AttrAuthor,
	"assignee":      lifecycle.AttrAssignedTo,
	"assigned_to":   lifecycle.AttrAssignedTo,
	"category":      lifecycle.AttrCategory,
	"version":       lifecycle.AttrFixedVersion,
	"start":         lifecycle.AttrStartDate,
	"due":           lifecycle.AttrDueDate,
	"done":          lifecycle.AttrDoneRatio,
	"estimate":      lifecycle.AttrEstimatedHours,
	"estimated":     lifecycle.AttrEstimatedHours,
	"watchers":      lifecycle.AttrWatchers,
	"notes":         lifecycle.AttrNotes,
	"subject":       lifecycle.AttrSubject,
	"description":   lifecycle.AttrDescription,
	"title":         lifecycle.AttrSubject,
	"fixed_version": lifecycle.AttrFixedVersion,
}

// attributes parses key=value assignments. Reference values are resolved
// by name; an empty value is passed through so it clears the attribute.
func (r *resolver) attributes(pairs []string) (lifecycle.Attributes, error) {
	attrs := lifecycle.Attributes{}
	custom := map[int]string{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, cmdErr(fmt.Errorf("invalid assignment %q: want key=value", pair), output.ErrValidation)
		}
		key = strings.ToLower(strings.TrimSpace(key))

		if name, ok := strings.CutPrefix(key, "cf."); ok {
			id, err := r.customField(name)
			if err != nil {
				return nil, err
			}
			custom[id] = value
			continue
		}
		if strings.HasPrefix(key, "cf_") {
			id, err := r.customField(key)
			if err != nil {
				return nil, err
			}
			custom[id] = value
			continue
		}

		if alias, ok := attributeAliases[key]; ok {
			key = alias
		}
		v, err := r.attributeValue(key, value)
		if err != nil {
			return nil, err
		}
		attrs[key] = v
	}
	if len(custom) > 0 {
		attrs[lifecycle.AttrCustomFields] = custom
	}
	return attrs, nil
}

func (r *resolver) attributeValue(key, value string) (any, error) {
	if strings.TrimSpace(value) == "" {
		return "", nil
	}
	var resolve func(string) (int, error)
	switch key {
	case lifecycle.AttrProject:
		resolve = r.project
	case lifecycle.AttrType:
		resolve = r.issueType
	case lifecycle.AttrStatus:
		resolve = r.status
	case lifecycle.AttrAuthor, lifecycle.AttrAssignedTo:
		resolve = r.user
	case lifecycle.AttrCategory:
		resolve = r.category
	case lifecycle.AttrFixedVersion:
		resolve = r.version
	case lifecycle.AttrWatchers:
		return r.users(value)
	default:
		return value, nil
	}
	return resolve(strings.TrimSpace(value))
}

// names loads the labels render uses for IDs.
func (r *resolver) names() (render.Names, error) {
	n := render.Names{
		Projects:   map[int]string{},
		Types:      map[int]string{},
		Statuses:   map[int]model.IssueStatus{},
		Users:      map[int]string{},
		Categories: map[int]string{},
		Versions:   map[int]string{},
		Fields:     map[int]string{},
	}

	projects, err := r.cat.Projects(r.ctx)
	if err != nil {
		return n, err
	}
	for id, p := range projects {
		n.Projects[id] = p.Identifier
	}
	types, err := r.cat.Types(r.ctx)
	if err != nil {
		return n, err
	}
	for _, t := range types {
		n.Types[t.ID] = t.Name
	}
	statuses, err := r.cat.Statuses(r.ctx)
	if err != nil {
		return n, err
	}
	for _, s := range statuses {
		n.Statuses[s.ID] = s
	}
	users, err := r.cat.Users(r.ctx)
	if err != nil {
		return n, err
	}
	for _, u := range users {
		n.Users[u.ID] = u.Login
	}
	categories, err := r.cat.Categories(r.ctx)
	if err != nil {
		return n, err
	}
	for _, c := range categories {
		n.Categories[c.ID] = c.Name
	}
	versions, err := r.cat.Versions(r.ctx)
	if err != nil {
		return n, err
	}
	for _, v := range versions {
		n.Versions[v.ID] = v.Name
	}
	fields, err := r.cat.CustomFields(r.ctx)
	if err != nil {
		return n, err
	}
	for _, f := range fields {
		n.Fields[f.ID] = f.Name
	}
	return n, nil
}
