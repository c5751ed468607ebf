package lifecycle

import (
	"context"
	"fmt"
	"maps"

	"github.com/ALT-F4-LLC/workgraph/internal/customfield"
	"github.com/ALT-F4-LLC/workgraph/internal/graph"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

// validate checks the working copy against its state before the operation.
// Every failure is collected; nothing short-circuits except infrastructure
// errors.
func (o *op) validate(ctx context.Context) {
	w, orig := o.work, o.orig
	isNew := orig.IsNew()

	if w.Subject == "" {
		o.errs.Add(AttrSubject, model.ErrRequired, "subject")
	}

	var project *model.Project
	switch {
	case w.ProjectID == 0:
		o.errs.Add(AttrProject, model.ErrRequired, "project")
	case len(o.errs.On(AttrProject)) == 0:
		p, err := o.l.catalog.Project(ctx, w.ProjectID)
		if o.lookup(AttrProject, err, "project") {
			project = p
		}
	}

	typeChanged := isNew || w.TypeID != orig.TypeID
	if w.TypeID == 0 {
		o.errs.Add(AttrType, model.ErrRequired, "type")
	} else {
		_, err := o.l.catalog.Type(ctx, w.TypeID)
		// A type that has since been disabled may be kept, but not assigned.
		if o.lookup(AttrType, err, "type") && project != nil && (typeChanged || o.projectChanged) && !project.HasType(w.TypeID) {
			o.errs.Add(AttrType, model.ErrDisabledType, fmt.Sprintf("type %d is disabled for project %s", w.TypeID, project.Identifier))
		}
	}

	o.validateUsers(ctx)
	o.validateCategory(ctx)
	o.validateDates(ctx)

	if isNew || typeChanged || o.projectChanged || !sameValues(orig.CustomValues, w.CustomValues) {
		o.errs.Merge(o.l.validator.Validate(o.applicable(ctx), w.CustomValues))
	}

	if err := o.loadStatuses(ctx); err != nil {
		o.err = err
		return
	}
	status, ok := o.statuses[w.StatusID]
	if !ok {
		if w.StatusID == 0 {
			o.errs.Add(AttrStatus, model.ErrRequired, "status")
		} else {
			o.errs.Add(AttrStatus, model.ErrInvalidValue, "status does not exist")
		}
	}
	wasClosed := !isNew && o.statuses[orig.StatusID].IsClosed
	closing := ok && status.IsClosed && !wasClosed
	reopening := ok && wasClosed && !status.IsClosed

	if closing && !isNew {
		blocked, err := o.blocked(ctx)
		if err != nil {
			o.err = err
			return
		}
		if blocked {
			o.errs.Add(model.BaseField, model.ErrBlocked, "an open issue blocks this one")
		}
	}

	o.validateVersion(ctx, isNew, reopening)
}

func (o *op) validateUsers(ctx context.Context) {
	w := o.work
	if w.AuthorID == 0 {
		o.errs.Add(AttrAuthor, model.ErrRequired, "author")
	} else if w.AuthorID != o.orig.AuthorID {
		_, err := o.l.catalog.User(ctx, w.AuthorID)
		o.lookup(AttrAuthor, err, "author")
	}
	if w.AssignedToID != nil && !equalIntPtr(w.AssignedToID, o.orig.AssignedToID) {
		_, err := o.l.catalog.User(ctx, *w.AssignedToID)
		o.lookup(AttrAssignedTo, err, "assignee")
	}
	for _, id := range w.WatcherIDs {
		_, err := o.l.catalog.User(ctx, id)
		if !o.lookup(AttrWatchers, err, fmt.Sprintf("user %d", id)) {
			break
		}
	}
}

func (o *op) validateCategory(ctx context.Context) {
	w := o.work
	if w.CategoryID == nil {
		return
	}
	cat, err := o.l.catalog.Category(ctx, *w.CategoryID)
	if !o.lookup(AttrCategory, err, "category") {
		return
	}
	if cat.ProjectID != w.ProjectID {
		o.errs.Add(AttrCategory, model.ErrInvalidValue, "category belongs to another project")
	}
}

// validateDates rejects a due date before the start date, and a start date
// moved before the end of a preceding issue.
func (o *op) validateDates(ctx context.Context) {
	w := o.work
	if w.StartDate != nil && w.DueDate != nil && w.DueDate.Before(*w.StartDate) {
		o.errs.Add(AttrDueDate, model.ErrInvalidValue, "due date is before the start date")
	}
	if o.orig.IsNew() || w.StartDate == nil || equalDate(w.StartDate, o.orig.StartDate) {
		return
	}

	rels, err := o.loadRelations(ctx)
	if err != nil {
		o.err = err
		return
	}
	g := graph.New(rels)
	for _, predID := range g.Neighbors(w.ID, model.RelationFollows) {
		pred, err := o.l.store.LoadIssue(ctx, predID)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			o.err = err
			return
		}
		end := pred.DueDate
		if end == nil {
			end = pred.StartDate
		}
		if end == nil {
			continue
		}
		if soonest := model.AddDays(*end, 1); w.StartDate.Before(soonest) {
			o.errs.Add(AttrStartDate, model.ErrInvalidValue,
				fmt.Sprintf("cannot start before %s, the day after %s ends", model.FormatDate(soonest), model.FormatID(predID)))
			return
		}
	}
}

// validateVersion enforces that a version is only newly assigned while open
// and shared with the issue's project, and that an issue is not reopened on
// a closed version.
func (o *op) validateVersion(ctx context.Context, isNew, reopening bool) {
	w := o.work
	if w.FixedVersionID == nil {
		return
	}
	v, err := o.l.catalog.Version(ctx, *w.FixedVersionID)
	if !o.lookup(AttrFixedVersion, err, "version") {
		return
	}

	if isNew || !equalIntPtr(w.FixedVersionID, o.orig.FixedVersionID) {
		if !v.IsOpen() {
			o.errs.Add(AttrFixedVersion, model.ErrInvalidVersionAssignment, fmt.Sprintf("version %s is %s", v.Name, v.Status))
			return
		}
		h, err := o.l.catalog.Projects(ctx)
		if err != nil {
			o.err = err
			return
		}
		if !h.SharedWith(v, w.ProjectID) {
			o.errs.Add(AttrFixedVersion, model.ErrInvalidVersionAssignment, fmt.Sprintf("version %s is not shared with this project", v.Name))
		}
		return
	}

	if reopening && v.IsClosed() {
		o.errs.Add(model.BaseField, model.ErrVersionNotReassignable, fmt.Sprintf("version %s is closed", v.Name))
	}
}

// blocked reports whether an open issue blocks the working copy.
func (o *op) blocked(ctx context.Context) (bool, error) {
	rels, err := o.loadRelations(ctx)
	if err != nil {
		return false, err
	}
	var lookupErr error
	isClosed := func(id int) bool {
		issue, err := o.l.store.LoadIssue(ctx, id)
		if err != nil {
			if lookupErr == nil && !isNotFound(err) {
				lookupErr = err
			}
			return true
		}
		return o.statuses[issue.StatusID].IsClosed
	}
	blocked := graph.New(rels).Blocked(o.work.ID, isClosed)
	return blocked, lookupErr
}

func (o *op) loadRelations(ctx context.Context) ([]model.Relation, error) {
	if o.relationsLoaded || o.work.IsNew() {
		return o.relations, nil
	}
	rels, err := o.l.store.LoadRelationsFor(ctx, o.work.ID)
	if err != nil {
		return nil, fmt.Errorf("loading relations of %s: %w", model.FormatID(o.work.ID), err)
	}
	o.relations = rels
	o.relationsLoaded = true
	return rels, nil
}

func (o *op) loadStatuses(ctx context.Context) error {
	if o.statuses != nil {
		return nil
	}
	statuses, err := o.l.catalog.Statuses(ctx)
	if err != nil {
		return fmt.Errorf("loading statuses: %w", err)
	}
	o.statuses = make(map[int]model.IssueStatus, len(statuses))
	for _, s := range statuses {
		o.statuses[s.ID] = s
	}
	return nil
}

// sameValues compares custom values, treating blank values as absent.
func sameValues(a, b map[int]string) bool {
	return maps.Equal(compact(a), compact(b))
}

func compact(values map[int]string) map[int]string {
	out := make(map[int]string, len(values))
	for id, v := range values {
		if !customfield.IsBlank(v) {
			out[id] = v
		}
	}
	return out
}
