package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/ALT-F4-LLC/workgraph/internal/cascade"
	"github.com/ALT-F4-LLC/workgraph/internal/config"
	"github.com/ALT-F4-LLC/workgraph/internal/customfield"
	"github.com/ALT-F4-LLC/workgraph/internal/graph"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
	"github.com/ALT-F4-LLC/workgraph/internal/scheduler"
)

// MoveOptions controls Move. With Copy set a new issue is created in the
// target project and the original is left alone. Attributes are applied
// after the move or copy and may set any attribute but the project and
// type.
type MoveOptions struct {
	Copy       bool
	Attributes Attributes
}

// ValidateAndApply assigns attrs to a copy of issue, validates it and, when
// valid, saves it together with the derived changes: successors rescheduled
// after a date change and duplicates closed after a closing status change.
// issue itself is never modified.
//
// When validation fails the returned Result carries the errors and the
// returned error is that same *model.Errors. A stale save returns an error
// wrapping model.ErrStaleWrite and no Result.
func (l *Lifecycle) ValidateAndApply(ctx context.Context, actor *model.User, issue *model.Issue, attrs Attributes) (*Result, error) {
	ctx, span := l.tel.Start(ctx, "update", issue.ID)
	res, err := l.run(ctx, actor, issue, issue.Clone(), attrs)
	l.tel.End(ctx, span, "update", err)
	return res, err
}

// Create builds a new issue from attrs. The actor is the author and the
// default status applies unless attrs say otherwise.
func (l *Lifecycle) Create(ctx context.Context, actor *model.User, attrs Attributes) (*Result, error) {
	ctx, span := l.tel.Start(ctx, "create", 0)
	res, err := l.create(ctx, actor, attrs)
	l.tel.End(ctx, span, "create", err)
	return res, err
}

func (l *Lifecycle) create(ctx context.Context, actor *model.User, attrs Attributes) (*Result, error) {
	work := &model.Issue{CustomValues: make(map[int]string)}
	if actor != nil {
		work.AuthorID = actor.ID
	}
	statuses, err := l.catalog.Statuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading statuses: %w", err)
	}
	for _, s := range statuses {
		if s.IsDefault {
			work.StatusID = s.ID
			break
		}
	}
	return l.run(ctx, actor, &model.Issue{}, work, attrs)
}

// Close moves issue to statusID, which must be a closed status, and closes
// its open duplicates transitively. Result.Cascaded lists them.
func (l *Lifecycle) Close(ctx context.Context, actor *model.User, issue *model.Issue, statusID int, notes string) (*Result, error) {
	ctx, span := l.tel.Start(ctx, "close", issue.ID)
	res, err := l.close(ctx, actor, issue, statusID, notes)
	l.tel.End(ctx, span, "close", err)
	return res, err
}

func (l *Lifecycle) close(ctx context.Context, actor *model.User, issue *model.Issue, statusID int, notes string) (*Result, error) {
	status, err := l.catalog.Status(ctx, statusID)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	if err != nil || !status.IsClosed {
		errs := &model.Errors{}
		errs.Add(AttrStatus, model.ErrInvalidValue, fmt.Sprintf("status %d is not a closed status", statusID))
		return &Result{Issue: issue, Errors: errs}, errs
	}
	attrs := Attributes{AttrStatus: statusID}
	if notes != "" {
		attrs[AttrNotes] = notes
	}
	return l.run(ctx, actor, issue, issue.Clone(), attrs)
}

// Move reassigns issue to projectID and typeID (zero keeps the current
// type), or copies it there when opts.Copy is set. It fails with
// model.ErrDisabledType when the type is not enabled in the target project.
// Result.Issue is the moved issue or the copy.
func (l *Lifecycle) Move(ctx context.Context, actor *model.User, issue *model.Issue, projectID, typeID int, opts MoveOptions) (*Result, error) {
	ctx, span := l.tel.Start(ctx, "move", issue.ID)
	res, err := l.move(ctx, actor, issue, projectID, typeID, opts)
	l.tel.End(ctx, span, "move", err)
	return res, err
}

func (l *Lifecycle) move(ctx context.Context, actor *model.User, issue *model.Issue, projectID, typeID int, opts MoveOptions) (*Result, error) {
	if typeID == 0 {
		typeID = issue.TypeID
	}

	errs := &model.Errors{}
	target, err := l.catalog.Project(ctx, projectID)
	switch {
	case isNotFound(err):
		errs.Add(AttrProject, model.ErrInvalidValue, "project does not exist")
	case err != nil:
		return nil, err
	case !target.HasType(typeID):
		errs.Add(AttrType, model.ErrDisabledType, fmt.Sprintf("type %d is disabled for project %s", typeID, target.Identifier))
	}
	if !errs.Empty() {
		return &Result{Issue: issue, Errors: errs}, errs
	}

	attrs := make(Attributes, len(opts.Attributes)+2)
	maps.Copy(attrs, opts.Attributes)
	attrs[AttrProject] = projectID
	attrs[AttrType] = typeID

	if !opts.Copy {
		return l.run(ctx, actor, issue, issue.Clone(), attrs)
	}

	c := issue.Clone()
	c.ID = 0
	c.LockVersion = 0
	c.WatcherIDs = nil
	c.CreatedAt, c.UpdatedAt = time.Time{}, time.Time{}
	return l.run(ctx, actor, &model.Issue{}, c, attrs)
}

// Relate creates a relation from fromID to toID. Same-kind cycles through
// precedes or blocks are rejected with a *graph.CycleError unless force is
// set. A new precedes relation reschedules its target and the target's
// successors.
func (l *Lifecycle) Relate(ctx context.Context, actor *model.User, fromID, toID int, kind model.RelationKind, force bool) (*Result, error) {
	ctx, span := l.tel.Start(ctx, "relate", fromID)
	res, err := l.relate(ctx, actor, fromID, toID, kind, force)
	l.tel.End(ctx, span, "relate", err)
	return res, err
}

func (l *Lifecycle) relate(ctx context.Context, actor *model.User, fromID, toID int, kind model.RelationKind, force bool) (*Result, error) {
	rel := model.Relation{FromID: fromID, ToID: toID, Kind: kind}
	if err := model.ValidateRelationKind(kind); err != nil {
		return nil, err
	}
	rel = rel.Normalize()

	from, err := l.store.LoadIssue(ctx, rel.FromID)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", model.FormatID(rel.FromID), err)
	}
	to, err := l.store.LoadIssue(ctx, rel.ToID)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", model.FormatID(rel.ToID), err)
	}

	if !l.settings.CrossProjectRelations && from.ProjectID != to.ProjectID {
		errs := &model.Errors{}
		errs.Add("to_id", model.ErrInvalidValue, "issues belong to different projects")
		return &Result{Issue: from, Errors: errs}, errs
	}

	follow := func(r model.Relation, id int) bool {
		return r.FromID == id && (r.Kind == rel.Kind || r.Kind == model.RelationPrecedes)
	}
	g, err := l.subgraph(ctx, []int{rel.FromID, rel.ToID}, follow)
	if err != nil {
		return nil, err
	}

	stored, err := g.Add(rel, force)
	if err != nil {
		return nil, err
	}
	stored.CreatedAt = l.now()

	cs := &ChangeSet{ID: l.newID(), AddedRelations: []*model.Relation{&stored}}
	userID := 0
	if actor != nil {
		userID = actor.ID
	}
	cs.Journals = stored.Journals(cs.ID, userID, false, l.now())

	res := &Result{Issue: from, Errors: &model.Errors{}, Relation: &stored}
	if stored.Kind == model.RelationPrecedes {
		// Only issues reachable from the new target can move.
		originals, issues, err := l.loadIssues(ctx, g, from)
		if err != nil {
			return nil, err
		}
		res.Rescheduled = scheduler.Reschedule(issues, g, from.ID)
		cs.Derived = res.Rescheduled
		cs.Journals = mergeJournals(cs.Journals, l.derivedJournals(originals, res.Rescheduled, actor, cs.ID))
	}

	if err := l.save(ctx, cs, from.ID); err != nil {
		return nil, err
	}
	l.logger.Info("relation created", "from", model.FormatID(stored.FromID), "kind", stored.Kind, "to", model.FormatID(stored.ToID), "forced", force)
	res.Journals = cs.Journals
	if len(res.Rescheduled) > 0 {
		l.tel.Rescheduled(ctx, len(res.Rescheduled))
		l.notifyDerived(ctx, res.Rescheduled, cs.Journals)
	}
	return res, nil
}

// Destroy deletes issue, removes its relations and releases its time
// entries.
func (l *Lifecycle) Destroy(ctx context.Context, actor *model.User, issue *model.Issue) (*Result, error) {
	ctx, span := l.tel.Start(ctx, "destroy", issue.ID)
	res, err := l.destroy(ctx, issue)
	l.tel.End(ctx, span, "destroy", err)
	return res, err
}

func (l *Lifecycle) destroy(ctx context.Context, issue *model.Issue) (*Result, error) {
	rels, err := l.store.LoadRelationsFor(ctx, issue.ID)
	if err != nil {
		return nil, fmt.Errorf("loading relations of %s: %w", model.FormatID(issue.ID), err)
	}
	cs := &ChangeSet{ID: l.newID(), Issue: issue.Clone(), Destroy: true}
	for _, r := range graph.New(rels).RemoveIssue(issue.ID) {
		cs.RemovedRelations = append(cs.RemovedRelations, r.ID)
	}
	if err := l.save(ctx, cs, issue.ID); err != nil {
		return nil, err
	}
	l.logger.Info("issue destroyed", "issue", model.FormatID(issue.ID), "relations", len(cs.RemovedRelations))
	return &Result{Issue: cs.Issue, Errors: &model.Errors{}}, nil
}

// run is the shared assign, validate, derive, save, notify sequence.
func (l *Lifecycle) run(ctx context.Context, actor *model.User, orig, work *model.Issue, attrs Attributes) (*Result, error) {
	o := l.newOp(actor, orig, work)

	o.apply(ctx, attrs)
	if o.err != nil {
		return nil, o.err
	}
	o.validate(ctx)
	if o.err != nil {
		return nil, o.err
	}

	res := &Result{Issue: o.work, Errors: o.errs}
	if !o.errs.Empty() {
		l.logger.Debug("validation failed", "issue", model.FormatID(work.ID), "fields", o.errs.Fields())
		return res, o.errs
	}

	o.finalize(ctx)

	cs := &ChangeSet{ID: l.newID(), Issue: o.work, MoveTimeEntries: o.moveTimeEntries}
	originals, err := o.derive(ctx, cs, res)
	if err != nil {
		return nil, err
	}
	cs.Derived = res.Mutated()

	var mainJournal *model.Journal
	if !orig.IsNew() {
		mainJournal = l.newJournal(orig, o.work, actor, cs.ID, o.notes)
		if !mainJournal.Empty() {
			cs.Journals = append(cs.Journals, mainJournal)
		}
	}
	cs.Journals = append(cs.Journals, l.derivedJournals(originals, cs.Derived, actor, cs.ID)...)

	if err := l.save(ctx, cs, work.ID); err != nil {
		return nil, err
	}
	res.Journals = cs.Journals

	l.tel.Rescheduled(ctx, len(res.Rescheduled))
	l.tel.Cascaded(ctx, len(res.Cascaded))
	if len(res.Cascaded) > 0 {
		l.logger.Info("closed duplicates", "issue", model.FormatID(o.work.ID), "count", len(res.Cascaded))
	}
	if len(res.Rescheduled) > 0 {
		l.logger.Info("rescheduled successors", "issue", model.FormatID(o.work.ID), "count", len(res.Rescheduled))
	}

	if orig.IsNew() {
		res.Recipients, res.Watchers = l.notify(ctx, EventIssueAdded, o.work, nil)
	} else {
		res.Recipients, res.Watchers = l.notify(ctx, EventIssueUpdated, o.work, mainJournal)
	}
	l.notifyDerived(ctx, cs.Derived, cs.Journals)
	return res, nil
}

// finalize fills the values derived at save time.
func (o *op) finalize(ctx context.Context) {
	w := o.work
	now := o.l.now()

	if o.l.settings.DoneRatio == config.DoneRatioStatus {
		if s, ok := o.statuses[w.StatusID]; ok && s.DefaultDoneRatio != nil {
			w.DoneRatio = *s.DefaultDoneRatio
		}
	}

	if o.orig.IsNew() {
		if w.AssignedToID == nil && w.CategoryID != nil {
			if cat, err := o.l.catalog.Category(ctx, *w.CategoryID); err == nil && cat.AssignedToID != nil {
				id := *cat.AssignedToID
				w.AssignedToID = &id
			}
		}
		w.CreatedAt = now
	}

	fields := o.applicable(ctx)
	w.CustomValues = customfield.Compact(w.CustomValues, fields)
	w.UpdatedAt = now
}

// derive computes the changes that follow from the working copy: relations
// dropped by a project move, successors rescheduled by a date change and
// duplicates closed by a closing status. It returns the loaded originals of
// the derived issues for journaling.
func (o *op) derive(ctx context.Context, cs *ChangeSet, res *Result) (map[int]*model.Issue, error) {
	if o.orig.IsNew() {
		return nil, nil
	}
	w := o.work
	datesChanged := !equalDate(o.orig.StartDate, w.StartDate) || !equalDate(o.orig.DueDate, w.DueDate)
	closing := o.statuses[w.StatusID].IsClosed && !o.statuses[o.orig.StatusID].IsClosed
	dropForeign := o.projectChanged && !o.l.settings.CrossProjectRelations
	if !datesChanged && !closing && !dropForeign {
		return nil, nil
	}

	follow := func(r model.Relation, id int) bool {
		return (r.Kind == model.RelationPrecedes && r.FromID == id) ||
			(r.Kind == model.RelationDuplicates && r.ToID == id)
	}
	g, err := o.l.subgraph(ctx, []int{w.ID}, follow)
	if err != nil {
		return nil, err
	}
	originals, issues, err := o.l.loadIssues(ctx, g, w)
	if err != nil {
		return nil, err
	}

	if dropForeign {
		for _, r := range g.For(w.ID) {
			other, ok := originals[r.Other(w.ID)]
			if ok && other.ProjectID == w.ProjectID {
				continue
			}
			cs.RemovedRelations = append(cs.RemovedRelations, r.ID)
			g.Remove(r.ID)
		}
	}

	if datesChanged {
		res.Rescheduled = scheduler.Reschedule(issues, g, w.ID)
	}

	if closing {
		statusID := o.l.settings.DefaultClosedStatus
		if statusID == 0 {
			statusID = w.StatusID
		}
		isClosed := func(i *model.Issue) bool { return o.statuses[i.StatusID].IsClosed }
		res.Cascaded = cascade.Close(issues, g, w.ID, statusID, isClosed)
		if o.l.settings.DoneRatio == config.DoneRatioStatus {
			if s := o.statuses[statusID]; s.DefaultDoneRatio != nil {
				for _, d := range res.Cascaded {
					d.DoneRatio = *s.DefaultDoneRatio
				}
			}
		}
	}

	now := o.l.now()
	for _, d := range mergeByID(res.Rescheduled, res.Cascaded) {
		d.UpdatedAt = now
	}
	return originals, nil
}

// subgraph loads the relations reachable from roots. Every relation touching
// a visited issue is kept; traversal continues only across relations for
// which follow returns true, given the issue it was reached from.
func (l *Lifecycle) subgraph(ctx context.Context, roots []int, follow func(r model.Relation, id int) bool) (*graph.Graph, error) {
	visited := make(map[int]bool)
	kept := make(map[int]bool)
	var rels []model.Relation

	queue := append([]int(nil), roots...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		touching, err := l.store.LoadRelationsFor(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading relations of %s: %w", model.FormatID(id), err)
		}
		for _, r := range touching {
			if !kept[r.ID] {
				kept[r.ID] = true
				rels = append(rels, r)
			}
			if follow(r, id) {
				queue = append(queue, r.Other(id))
			}
		}
	}
	return graph.New(rels), nil
}

// loadIssues loads every issue at an end of a relation in g except root,
// which is used as given. It returns the stored originals and working
// clones, both keyed by ID. Issues that no longer exist are skipped.
func (l *Lifecycle) loadIssues(ctx context.Context, g *graph.Graph, root *model.Issue) (originals, working map[int]*model.Issue, err error) {
	originals = make(map[int]*model.Issue)
	working = map[int]*model.Issue{root.ID: root}
	for _, r := range g.Relations() {
		for _, id := range []int{r.FromID, r.ToID} {
			if _, ok := working[id]; ok {
				continue
			}
			issue, err := l.store.LoadIssue(ctx, id)
			if err != nil {
				if isNotFound(err) {
					continue
				}
				return nil, nil, fmt.Errorf("loading %s: %w", model.FormatID(id), err)
			}
			originals[id] = issue
			working[id] = issue.Clone()
		}
	}
	return originals, working, nil
}

func (l *Lifecycle) derivedJournals(originals map[int]*model.Issue, derived []*model.Issue, actor *model.User, changeSetID string) []*model.Journal {
	var out []*model.Journal
	for _, d := range derived {
		before, ok := originals[d.ID]
		if !ok {
			continue
		}
		if j := l.newJournal(before, d, actor, changeSetID, ""); !j.Empty() {
			out = append(out, j)
		}
	}
	return out
}

// mergeJournals folds the details of each journal in extra into the journal
// of the same issue in base, appending those without one.
func mergeJournals(base, extra []*model.Journal) []*model.Journal {
	byIssue := make(map[int]*model.Journal, len(base))
	for _, j := range base {
		byIssue[j.IssueID] = j
	}
	for _, j := range extra {
		if b, ok := byIssue[j.IssueID]; ok {
			maps.Copy(b.Details, j.Details)
			continue
		}
		base = append(base, j)
	}
	return base
}

func (l *Lifecycle) notifyDerived(ctx context.Context, derived []*model.Issue, journals []*model.Journal) {
	byIssue := make(map[int]*model.Journal, len(journals))
	for _, j := range journals {
		byIssue[j.IssueID] = j
	}
	for _, d := range derived {
		l.notify(ctx, EventIssueUpdated, d, byIssue[d.ID])
	}
}

func (l *Lifecycle) save(ctx context.Context, cs *ChangeSet, issueID int) error {
	if err := l.store.Save(ctx, cs); err != nil {
		if errors.Is(err, model.ErrStaleWrite) {
			l.tel.StaleWrite(ctx)
			l.logger.Warn("stale write rejected", "issue", model.FormatID(issueID), "change_set", cs.ID)
		}
		return fmt.Errorf("saving %s: %w", model.FormatID(issueID), err)
	}
	return nil
}
