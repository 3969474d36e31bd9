// Package normalize converts raw source records into canonical records.
//
// Each source carries a Schema: an explicit field-mapping table from source
// field names to canonical field names plus a coercion tag per field.
// Normalization is pure; it never performs I/O.
package normalize

import (
	"fmt"

	"github.com/agentstation/syncflow/pkg/errors"
)

// Coercion names how a raw value is converted to a canonical value.
type Coercion string

// Supported coercions.
const (
	CoerceString    Coercion = "string"
	CoerceNumber    Coercion = "number"
	CoerceCurrency  Coercion = "currency"
	CoerceTimestamp Coercion = "timestamp"
	CoerceEnum      Coercion = "enum"
)

// IsValid reports whether c is a known coercion.
func (c Coercion) IsValid() bool {
	switch c {
	case CoerceString, CoerceNumber, CoerceCurrency, CoerceTimestamp, CoerceEnum:
		return true
	}
	return false
}

// FieldMapping maps one source field onto one canonical field.
type FieldMapping struct {
	From     string   `json:"from" yaml:"from" mapstructure:"from"`
	To       string   `json:"to" yaml:"to" mapstructure:"to"`
	Coerce   Coercion `json:"coerce" yaml:"coerce" mapstructure:"coerce"`

	// Layout is the timestamp layout.
	Layout string `json:"layout,omitempty" yaml:"layout,omitempty" mapstructure:"layout"`

	// Values lists the enum members.
	Values []string `json:"values,omitempty" yaml:"values,omitempty" mapstructure:"values"`

	// Required skips the record when the value is missing.
	Required bool `json:"required,omitempty" yaml:"required,omitempty" mapstructure:"required"`
}

// Schema is the field-mapping table for one source.
type Schema struct {
	// EntityKey is the source field holding the join identifier.
	EntityKey string `json:"entity_key" yaml:"entity_key" mapstructure:"entity_key"`
	// ObservedAt is the source field holding the record's observation time.
	// When empty, or when a record leaves it blank, the snapshot fetch time is used.
	ObservedAt     string         `json:"observed_at,omitempty" yaml:"observed_at,omitempty" mapstructure:"observed_at"`
	ObservedLayout string         `json:"observed_layout,omitempty" yaml:"observed_layout,omitempty" mapstructure:"observed_layout"`
	Fields         []FieldMapping `json:"fields" yaml:"fields" mapstructure:"fields"`
}

// Validate checks the schema for structural problems.
func (s Schema) Validate() error {
	if s.EntityKey == "" {
		return &errors.ValidationError{
			Field:   "schema.entity_key",
			Message: "entity key field is required",
		}
	}

	seen := make(map[string]struct{}, len(s.Fields))
	for i, f := range s.Fields {
		if f.From == "" || f.To == "" {
			return &errors.ValidationError{
				Field:   fmt.Sprintf("schema.fields[%d]", i),
				Value:   f,
				Message: "both from and to are required",
			}
		}
		if !f.Coerce.IsValid() {
			return &errors.ValidationError{
				Field:   fmt.Sprintf("schema.fields[%d].coerce", i),
				Value:   f.Coerce,
				Message: "must be one of string, number, currency, timestamp, enum",
			}
		}
		if _, dup := seen[f.To]; dup {
			return &errors.ValidationError{
				Field:   fmt.Sprintf("schema.fields[%d].to", i),
				Value:   f.To,
				Message: "canonical field mapped twice",
			}
		}
		seen[f.To] = struct{}{}
	}
	return nil
}
