package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ALT-F4-LLC/workgraph/internal/config"
	"github.com/ALT-F4-LLC/workgraph/internal/customfield"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

// Attribute keys accepted in Attributes.
const (
	AttrType           = "type_id"
	AttrProject        = "project_id"
	AttrStatus         = "status_id"
	AttrAuthor         = "author_id"
	AttrAssignedTo     = "assigned_to_id"
	AttrCategory       = "category_id"
	AttrFixedVersion   = "fixed_version_id"
	AttrSubject        = "subject"
	AttrDescription    = "description"
	AttrStartDate      = "start_date"
	AttrDueDate        = "due_date"
	AttrDoneRatio      = "done_ratio"
	AttrEstimatedHours = "estimated_hours"
	AttrCustomFields   = "custom_field_values"
	AttrWatchers       = "watcher_ids"
	AttrNotes          = "notes"
)

// Attributes is a proposed mutation keyed by attribute name. Integers may be
// given as numbers or decimal strings, dates as time.Time or YYYY-MM-DD, and
// nil or "" clears an optional attribute.
type Attributes map[string]any

// keys returns the keys in application order: type_id, then project_id, the
// remaining attributes sorted by name, and custom_field_values last.
func (a Attributes) keys() []string {
	var rest []string
	for k := range a {
		switch k {
		case AttrType, AttrProject, AttrCustomFields:
		default:
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)

	var out []string
	for _, k := range []string{AttrType, AttrProject} {
		if _, ok := a[k]; ok {
			out = append(out, k)
		}
	}
	out = append(out, rest...)
	if _, ok := a[AttrCustomFields]; ok {
		out = append(out, AttrCustomFields)
	}
	return out
}

// op is the state of one operation on one issue.
type op struct {
	l     *Lifecycle
	actor *model.User
	orig  *model.Issue // state before the operation; a zero Issue for new issues
	work  *model.Issue
	errs  *model.Errors
	err   error // first infrastructure failure
	notes string

	projectChanged  bool
	moveTimeEntries bool
	statuses        map[int]model.IssueStatus
	relations       []model.Relation
	relationsLoaded bool
}

func (l *Lifecycle) newOp(actor *model.User, orig, work *model.Issue) *op {
	if work.CustomValues == nil {
		work.CustomValues = make(map[int]string)
	}
	return &op{l: l, actor: actor, orig: orig, work: work, errs: &model.Errors{}}
}

// lookup records err as an infrastructure failure unless it is a not-found,
// which it reports as an invalid value on field instead. It returns whether
// the lookup succeeded.
func (o *op) lookup(field string, err error, what string) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, model.ErrNotFound) {
		o.errs.Add(field, model.ErrInvalidValue, what+" does not exist")
	} else if o.err == nil {
		o.err = err
	}
	return false
}

func (o *op) invalid(field string, err error) {
	o.errs.Add(field, model.ErrInvalidValue, err.Error())
}

// apply assigns attrs to the working copy. Failures are collected in o.errs;
// assignment continues past them.
func (o *op) apply(ctx context.Context, attrs Attributes) {
	materialized := false
	for _, key := range attrs.keys() {
		if !materialized && key != AttrType && key != AttrProject {
			o.materialize(ctx)
			materialized = true
		}
		o.applyOne(ctx, key, attrs[key])
		if o.err != nil {
			return
		}
	}
	if !materialized {
		o.materialize(ctx)
	}
}

func (o *op) applyOne(ctx context.Context, key string, v any) {
	w := o.work
	switch key {
	case AttrType:
		if id, err := parseInt(v); err != nil {
			o.invalid(key, err)
		} else {
			w.TypeID = id
		}
	case AttrProject:
		if id, err := parseInt(v); err != nil {
			o.invalid(key, err)
		} else if id != w.ProjectID {
			o.changeProject(ctx, id)
		}
	case AttrStatus:
		if id, err := parseInt(v); err != nil {
			o.invalid(key, err)
		} else {
			w.StatusID = id
		}
	case AttrAuthor:
		if id, err := parseInt(v); err != nil {
			o.invalid(key, err)
		} else {
			w.AuthorID = id
		}
	case AttrAssignedTo, AttrCategory, AttrFixedVersion:
		id, err := parseOptionalInt(v)
		if err != nil {
			o.invalid(key, err)
			return
		}
		switch key {
		case AttrAssignedTo:
			w.AssignedToID = id
		case AttrCategory:
			w.CategoryID = id
		default:
			w.FixedVersionID = id
		}
	case AttrSubject:
		if s, err := parseString(v); err != nil {
			o.invalid(key, err)
		} else {
			w.Subject = strings.TrimSpace(s)
		}
	case AttrDescription:
		s, err := parseString(v)
		if err != nil {
			o.invalid(key, err)
			return
		}
		// Line-ending-only edits keep the stored text.
		if model.NormalizeText(s) != model.NormalizeText(w.Description) {
			w.Description = model.NormalizeText(s)
		}
	case AttrStartDate, AttrDueDate:
		d, err := parseOptionalDate(v)
		if err != nil {
			o.invalid(key, err)
			return
		}
		if key == AttrStartDate {
			w.StartDate = d
		} else {
			w.DueDate = d
		}
	case AttrDoneRatio:
		if o.l.settings.DoneRatio != config.DoneRatioField {
			o.l.logger.Debug("done_ratio ignored: derived from status", "issue", model.FormatID(w.ID))
			return
		}
		n, err := parseInt(v)
		if err != nil {
			o.invalid(key, err)
		} else if n < 0 || n > 100 {
			o.errs.Add(key, model.ErrInvalidValue, "must be between 0 and 100")
		} else {
			w.DoneRatio = n
		}
	case AttrEstimatedHours:
		h, err := parseHours(v)
		if err != nil {
			o.invalid(key, err)
		} else {
			w.EstimatedHours = h
		}
	case AttrWatchers:
		ids, err := parseIntList(v)
		if err != nil {
			o.invalid(key, err)
		} else {
			w.WatcherIDs = ids
		}
	case AttrCustomFields:
		o.applyCustomValues(ctx, v)
	case AttrNotes:
		if s, err := parseString(v); err != nil {
			o.invalid(key, err)
		} else {
			o.notes = model.NormalizeText(s)
		}
	default:
		o.errs.Add(key, model.ErrInvalidValue, "unknown attribute")
	}
}

// changeProject moves the working copy to projectID. The category maps to
// the same-named category of the target project, the fixed version is kept
// only when shared with the target, and an existing issue takes its time
// entries along.
func (o *op) changeProject(ctx context.Context, projectID int) {
	w := o.work
	w.ProjectID = projectID
	o.projectChanged = true

	if _, err := o.l.catalog.Project(ctx, projectID); !o.lookup(AttrProject, err, "project") {
		return
	}

	if w.CategoryID != nil {
		w.CategoryID = o.mapCategory(ctx, *w.CategoryID, projectID)
	}
	if w.FixedVersionID != nil && !o.versionShared(ctx, *w.FixedVersionID, projectID) {
		w.FixedVersionID = nil
	}
	if !o.orig.IsNew() {
		o.moveTimeEntries = true
	}
}

func (o *op) mapCategory(ctx context.Context, categoryID, projectID int) *int {
	cat, err := o.l.catalog.Category(ctx, categoryID)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) && o.err == nil {
			o.err = err
		}
		return nil
	}
	if cat.ProjectID == projectID {
		id := cat.ID
		return &id
	}
	cats, err := o.l.catalog.CategoriesFor(ctx, projectID)
	if err != nil {
		o.err = err
		return nil
	}
	for _, c := range cats {
		if c.Name == cat.Name {
			id := c.ID
			return &id
		}
	}
	return nil
}

func (o *op) versionShared(ctx context.Context, versionID, projectID int) bool {
	v, err := o.l.catalog.Version(ctx, versionID)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) && o.err == nil {
			o.err = err
		}
		return false
	}
	h, err := o.l.catalog.Projects(ctx)
	if err != nil {
		o.err = err
		return false
	}
	return h.SharedWith(v, projectID)
}

// applicable returns the custom fields of the working copy's project and
// type. Unknown projects or types carry none.
func (o *op) applicable(ctx context.Context) []model.CustomField {
	project, err := o.l.catalog.Project(ctx, o.work.ProjectID)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) && o.err == nil {
			o.err = err
		}
		return nil
	}
	typ, err := o.l.catalog.Type(ctx, o.work.TypeID)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) && o.err == nil {
			o.err = err
		}
		return nil
	}
	fields, err := o.l.catalog.CustomFields(ctx)
	if err != nil {
		o.err = err
		return nil
	}
	return customfield.Applicable(project, typ, fields)
}

// materialize recomputes the active custom values for the current project
// and type.
func (o *op) materialize(ctx context.Context) {
	o.work.CustomValues = customfield.Materialize(o.work.CustomValues, o.orig.CustomValues, o.applicable(ctx))
}

// applyCustomValues assigns raw values to applicable fields. Values for
// fields that do not apply are ignored.
func (o *op) applyCustomValues(ctx context.Context, v any) {
	values, err := parseCustomValues(v)
	if err != nil {
		o.invalid(AttrCustomFields, err)
		return
	}
	applies := make(map[int]bool)
	for _, f := range o.applicable(ctx) {
		applies[f.ID] = true
	}
	for id, value := range values {
		if applies[id] {
			o.work.CustomValues[id] = value
		}
	}
}

func parseInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x == math.Trunc(x) {
			return int(x), nil
		}
	case json.Number:
		n, err := x.Int64()
		if err == nil {
			return int(n), nil
		}
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("%v is not an integer", v)
}

func parseOptionalInt(v any) (*int, error) {
	if isBlankValue(v) {
		return nil, nil
	}
	n, err := parseInt(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func parseIntList(v any) ([]int, error) {
	var items []any
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []int:
		return append([]int(nil), x...), nil
	case []string:
		for _, s := range x {
			items = append(items, s)
		}
	case []any:
		items = x
	case string:
		for _, s := range strings.Split(x, ",") {
			if strings.TrimSpace(s) != "" {
				items = append(items, s)
			}
		}
	default:
		return nil, fmt.Errorf("%v is not a list of IDs", v)
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		n, err := parseInt(item)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func parseString(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	}
	return "", fmt.Errorf("%v is not text", v)
}

func parseOptionalDate(v any) (*time.Time, error) {
	if isBlankValue(v) {
		return nil, nil
	}
	switch x := v.(type) {
	case time.Time:
		d := model.DateOnly(x)
		return &d, nil
	case *time.Time:
		if x == nil {
			return nil, nil
		}
		d := model.DateOnly(*x)
		return &d, nil
	case string:
		d, err := model.ParseDate(x)
		if err != nil {
			return nil, err
		}
		return &d, nil
	}
	return nil, fmt.Errorf("%v is not a date", v)
}

func parseHours(v any) (*float64, error) {
	if isBlankValue(v) {
		return nil, nil
	}
	var h float64
	switch x := v.(type) {
	case float64:
		h = x
	case int:
		h = float64(x)
	case string:
		parsed, err := model.ParseHours(x)
		if err != nil {
			return nil, err
		}
		h = parsed
	default:
		return nil, fmt.Errorf("%v is not a duration", v)
	}
	if h < 0 {
		return nil, fmt.Errorf("%v is negative", v)
	}
	return &h, nil
}

// parseCustomValues accepts map[int]string, or string-keyed maps whose keys
// are field IDs with or without the "cf_" prefix.
func parseCustomValues(v any) (map[int]string, error) {
	out := make(map[int]string)
	switch x := v.(type) {
	case map[int]string:
		for id, s := range x {
			out[id] = s
		}
		return out, nil
	case map[string]string:
		for k, s := range x {
			id, err := parseFieldKey(k)
			if err != nil {
				return nil, err
			}
			out[id] = s
		}
		return out, nil
	case map[string]any:
		for k, raw := range x {
			id, err := parseFieldKey(k)
			if err != nil {
				return nil, err
			}
			if raw == nil {
				out[id] = ""
				continue
			}
			out[id] = fmt.Sprint(raw)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%v is not a custom field value map", v)
}

func parseFieldKey(k string) (int, error) {
	id, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(k), "cf_"))
	if err != nil {
		return 0, fmt.Errorf("invalid custom field key %q", k)
	}
	return id, nil
}

func isBlankValue(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}
