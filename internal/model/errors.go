package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// BaseField is the field key for errors that concern the issue as a whole
// rather than a single attribute.
const BaseField = "base"

// ErrNotFound is returned by collaborators when a referenced record does not
// exist.
var ErrNotFound = errors.New("not found")

// Error kinds produced by the engine. Each is a sentinel so callers can use
// errors.Is on individual errors and on an aggregated *Errors.
var (
	ErrRequired                 = errors.New("required")
	ErrInvalidValue             = errors.New("invalid value")
	ErrDisabledType             = errors.New("type is disabled for the project")
	ErrInvalidVersionAssignment = errors.New("version cannot be assigned")
	ErrVersionNotReassignable   = errors.New("issue on a closed version cannot be reopened")
	ErrBlocked                  = errors.New("issue is blocked by an open issue")
	ErrStaleWrite               = errors.New("issue was modified concurrently")
	ErrCyclicRelation           = errors.New("relation would create a cycle")
)

var kindNames = map[error]string{
	ErrRequired:                 "Required",
	ErrInvalidValue:             "InvalidValue",
	ErrDisabledType:             "DisabledType",
	ErrInvalidVersionAssignment: "InvalidVersionAssignment",
	ErrVersionNotReassignable:   "VersionNotReassignable",
	ErrBlocked:                  "Blocked",
	ErrStaleWrite:               "StaleWrite",
	ErrCyclicRelation:           "CyclicRelation",
}

// KindName returns the symbolic name of the error kind err wraps, or "" if
// err does not wrap a known kind.
func KindName(err error) string {
	for sentinel, name := range kindNames {
		if errors.Is(err, sentinel) {
			return name
		}
	}
	return ""
}

// ValidationError is a single validation failure attached to a field.
type ValidationError struct {
	Field  string
	Err    error
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %v (%s)", e.Field, e.Err, e.Detail)
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Errors collects validation failures without short-circuiting.
type Errors struct {
	list []*ValidationError
}

// Add records a failure of kind err on field.
func (e *Errors) Add(field string, err error, detail string) {
	e.list = append(e.list, &ValidationError{Field: field, Err: err, Detail: detail})
}

// Merge appends all failures from other.
func (e *Errors) Merge(other *Errors) {
	if other == nil {
		return
	}
	e.list = append(e.list, other.list...)
}

// Empty reports whether no failure was recorded.
func (e *Errors) Empty() bool {
	return e == nil || len(e.list) == 0
}

// Len returns the number of recorded failures.
func (e *Errors) Len() int {
	if e == nil {
		return 0
	}
	return len(e.list)
}

// On returns the failures attached to field.
func (e *Errors) On(field string) []*ValidationError {
	if e == nil {
		return nil
	}
	var out []*ValidationError
	for _, ve := range e.list {
		if ve.Field == field {
			out = append(out, ve)
		}
	}
	return out
}

// Base returns the failures of cross-field rules.
func (e *Errors) Base() []*ValidationError {
	return e.On(BaseField)
}

// All returns every recorded failure in insertion order.
func (e *Errors) All() []*ValidationError {
	if e == nil {
		return nil
	}
	return e.list
}

// Fields returns the sorted set of fields that carry failures.
func (e *Errors) Fields() []string {
	seen := make(map[string]struct{})
	for _, ve := range e.All() {
		seen[ve.Field] = struct{}{}
	}
	fields := make([]string, 0, len(seen))
	for f := range seen {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Err returns e as an error, or nil when nothing was recorded.
func (e *Errors) Err() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *Errors) Error() string {
	parts := make([]string, len(e.list))
	for i, ve := range e.list {
		parts[i] = ve.Error()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *Errors) Unwrap() []error {
	errs := make([]error, len(e.list))
	for i, ve := range e.list {
		errs[i] = ve
	}
	return errs
}
