package model

import (
	"fmt"
	"slices"
	"strconv"
)

// FieldFormat is the value kind of a custom field.
type FieldFormat string

const (
	FormatString    FieldFormat = "string"
	FormatText      FieldFormat = "text"
	FormatInt       FieldFormat = "int"
	FormatFloat     FieldFormat = "float"
	FormatDateField FieldFormat = "date"
	FormatBool      FieldFormat = "bool"
	FormatList      FieldFormat = "list"
)

var validFieldFormats = []FieldFormat{
	FormatString,
	FormatText,
	FormatInt,
	FormatFloat,
	FormatDateField,
	FormatBool,
	FormatList,
}

// ValidateFieldFormat returns an error if f is not a recognized field format.
func ValidateFieldFormat(f FieldFormat) error {
	if slices.Contains(validFieldFormats, f) {
		return nil
	}
	return fmt.Errorf("invalid field format %q: must be one of %v", f, validFieldFormats)
}

// CustomField is a user-defined typed attribute attachable to issues.
// IsForAll fields apply to every project; others must be enabled per project.
type CustomField struct {
	ID             int         `json:"id" toml:"id"`
	Name           string      `json:"name" toml:"name"`
	Format         FieldFormat `json:"format" toml:"format"`
	IsRequired     bool        `json:"is_required" toml:"required"`
	IsForAll       bool        `json:"is_for_all" toml:"for_all"`
	PossibleValues []string    `json:"possible_values,omitempty" toml:"possible_values"`
	DefaultValue   string      `json:"default_value,omitempty" toml:"default"`
	Regexp         string      `json:"regexp,omitempty" toml:"regexp"`
	MinLength      int         `json:"min_length,omitempty" toml:"min_length"`
	MaxLength      int         `json:"max_length,omitempty" toml:"max_length"`
}

// CustomFieldKey returns the field key used for journal details and
// validation errors of the custom field with the given ID.
func CustomFieldKey(id int) string {
	return "cf_" + strconv.Itoa(id)
}
