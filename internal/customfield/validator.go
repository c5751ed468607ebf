// Package customfield decides which custom fields apply to an issue and
// validates their raw string values.
package customfield

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

var intPattern = regexp.MustCompile(`^[+-]?\d+$`)

// Applicable returns the fields an issue of typ in project carries: the type
// must list the field, and the field must be for all projects or enabled on
// project. Order follows fields.
func Applicable(project *model.Project, typ *model.Type, fields []model.CustomField) []model.CustomField {
	if project == nil || typ == nil {
		return nil
	}
	var out []model.CustomField
	for _, f := range fields {
		if !slices.Contains(typ.CustomFieldIDs, f.ID) {
			continue
		}
		if f.IsForAll || slices.Contains(project.CustomFieldIDs, f.ID) {
			out = append(out, f)
		}
	}
	return out
}

// IsBlank reports whether a raw value counts as empty.
func IsBlank(value string) bool {
	return strings.TrimSpace(value) == ""
}

// Validator checks custom values. It caches compiled field patterns, so a
// single Validator should be reused across calls.
type Validator struct {
	patterns map[string]*regexp.Regexp
}

// NewValidator returns a Validator with an empty pattern cache.
func NewValidator() *Validator {
	return &Validator{patterns: make(map[string]*regexp.Regexp)}
}

// ValidateValue checks a single value against field using a throwaway
// Validator.
func ValidateValue(field model.CustomField, value string) error {
	return NewValidator().ValidateValue(field, value)
}

// ValidateValue returns a *model.ValidationError wrapping model.ErrRequired
// for a blank required value, or model.ErrInvalidValue for a non-blank value
// that fails its format, list, pattern or length rules. Blank optional values
// are valid.
func (v *Validator) ValidateValue(field model.CustomField, value string) error {
	key := model.CustomFieldKey(field.ID)
	if IsBlank(value) {
		if field.IsRequired {
			return &model.ValidationError{Field: key, Err: model.ErrRequired, Detail: field.Name}
		}
		return nil
	}

	invalid := func(format string, args ...any) error {
		return &model.ValidationError{Field: key, Err: model.ErrInvalidValue, Detail: fmt.Sprintf(format, args...)}
	}

	switch field.Format {
	case model.FormatInt:
		if !intPattern.MatchString(strings.TrimSpace(value)) {
			return invalid("%s is not an integer", field.Name)
		}
	case model.FormatFloat:
		if _, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err != nil {
			return invalid("%s is not a number", field.Name)
		}
	case model.FormatDateField:
		if _, err := model.ParseDate(value); err != nil {
			return invalid("%s is not a YYYY-MM-DD date", field.Name)
		}
	case model.FormatBool:
		if value != "0" && value != "1" {
			return invalid("%s must be 0 or 1", field.Name)
		}
	case model.FormatList:
		if !slices.Contains(field.PossibleValues, value) {
			return invalid("%s is not one of %v", field.Name, field.PossibleValues)
		}
	}

	if field.Regexp != "" {
		re, err := v.pattern(field.Regexp)
		if err != nil {
			return invalid("%s has an unusable pattern: %v", field.Name, err)
		}
		if !re.MatchString(value) {
			return invalid("%s does not match %s", field.Name, field.Regexp)
		}
	}

	n := utf8.RuneCountInString(value)
	if field.MinLength > 0 && n < field.MinLength {
		return invalid("%s is shorter than %d characters", field.Name, field.MinLength)
	}
	if field.MaxLength > 0 && n > field.MaxLength {
		return invalid("%s is longer than %d characters", field.Name, field.MaxLength)
	}
	return nil
}

func (v *Validator) pattern(expr string) (*regexp.Regexp, error) {
	if re, ok := v.patterns[expr]; ok {
		return re, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	v.patterns[expr] = re
	return re, nil
}

// Validate checks the value of every field in fields and collects all
// failures keyed by field. A field missing from values is treated as blank.
func (v *Validator) Validate(fields []model.CustomField, values map[int]string) *model.Errors {
	errs := &model.Errors{}
	for _, f := range fields {
		err := v.ValidateValue(f, values[f.ID])
		if err == nil {
			continue
		}
		var ve *model.ValidationError
		if errors.As(err, &ve) {
			errs.Add(ve.Field, ve.Err, ve.Detail)
		} else {
			errs.Add(model.CustomFieldKey(f.ID), model.ErrInvalidValue, err.Error())
		}
	}
	return errs
}

// Materialize recomputes the active value set for the applicable fields.
// A field keeps its active value, falls back to its persisted value, and
// otherwise starts at its default. Values of fields that no longer apply are
// left out; persisted rows for them are only removed when the issue is saved.
func Materialize(active, persisted map[int]string, fields []model.CustomField) map[int]string {
	out := make(map[int]string, len(fields))
	for _, f := range fields {
		if v, ok := active[f.ID]; ok {
			out[f.ID] = v
			continue
		}
		if v, ok := persisted[f.ID]; ok {
			out[f.ID] = v
			continue
		}
		if f.DefaultValue != "" {
			out[f.ID] = f.DefaultValue
		}
	}
	return out
}

// Compact drops blank values of fields that are not required. Such values
// are represented by the absence of a row.
func Compact(values map[int]string, fields []model.CustomField) map[int]string {
	required := make(map[int]bool, len(fields))
	for _, f := range fields {
		required[f.ID] = f.IsRequired
	}
	out := make(map[int]string, len(values))
	for id, v := range values {
		if IsBlank(v) && !required[id] {
			continue
		}
		out[id] = v
	}
	return out
}
