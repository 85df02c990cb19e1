package core

// mapping.go turns a supplier row into a canonical product row.
//
// Each mapping copies one source column to one target column, optionally
// passing the value through a transformation rule. Application is pure and
// total: no input can make it fail. Casts are deliberately lenient, so a
// non-numeric value under a "number" rule becomes 0.0 instead of an error.

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// RuleType names a transformation rule variant.
type RuleType string

const (
	RuleUppercase RuleType = "uppercase"
	RuleLowercase RuleType = "lowercase"
	RuleNumber    RuleType = "number"
	RuleBoolean   RuleType = "boolean"
	RuleReplace   RuleType = "replace"
)

// TransformationRule is a parameterised value conversion. Find and Replace
// are only used by RuleReplace and default to empty strings.
type TransformationRule struct {
	Type    RuleType `json:"type" validate:"required,oneof=uppercase lowercase number boolean replace"`
	Find    string   `json:"find,omitempty"`
	Replace string   `json:"replace,omitempty"`
}

// FieldMapping pairs a source column with a target column.
type FieldMapping struct {
	SourceColumn       string              `json:"source_column" validate:"required"`
	TargetColumn       string              `json:"target_column" validate:"required"`
	TransformationRule *TransformationRule `json:"transformation_rule,omitempty"`
}

// ApplyMappings builds the canonical row for one input row. The result has
// exactly one key per distinct target column, in first-seen order; when two
// mappings share a target the later one wins. A missing source column maps
// to null, and rules are never applied to null.
func ApplyMappings(row *Record, mappings []FieldMapping) *Record {
	out := NewRecord()
	for _, m := range mappings {
		v, _ := row.Get(m.SourceColumn)
		if m.TransformationRule != nil && !v.IsNull() {
			v = m.TransformationRule.Apply(v)
		}
		out.Set(m.TargetColumn, v)
	}
	return out
}

// Apply transforms a non-null value. Unknown rule types leave it unchanged.
func (r TransformationRule) Apply(v Value) Value {
	switch r.Type {
	case RuleUppercase:
		return String(cases.Upper(language.Und).String(v.Text()))
	case RuleLowercase:
		return String(cases.Lower(language.Und).String(v.Text()))
	case RuleNumber:
		return Float(toNumber(v))
	case RuleBoolean:
		return Bool(truthy(v))
	case RuleReplace:
		return String(strings.ReplaceAll(v.Text(), r.Find, r.Replace))
	default:
		return v
	}
}

// toNumber casts to float64, yielding 0.0 for anything that does not read
// as a number. Out-of-range literals keep their infinite value.
func toNumber(v Value) float64 {
	switch v.Kind() {
	case KindBool:
		if v.BoolValue() {
			return 1
		}
		return 0
	case KindInt:
		return float64(v.IntValue())
	case KindFloat:
		return v.FloatValue()
	case KindString:
		s := strings.TrimSpace(v.StringValue())
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			if errors.Is(err, strconv.ErrRange) {
				return f
			}
			return 0
		}
		return f
	default:
		return 0
	}
}

// truthy treats zero numbers, empty strings and empty containers as false.
func truthy(v Value) bool {
	switch v.Kind() {
	case KindBool:
		return v.BoolValue()
	case KindInt:
		return v.IntValue() != 0
	case KindFloat:
		f := v.FloatValue()
		return f != 0 || math.IsNaN(f)
	case KindString:
		return v.StringValue() != ""
	case KindObject:
		return v.ObjectValue().Len() > 0
	case KindArray:
		return len(v.ArrayValue()) > 0
	default:
		return false
	}
}
