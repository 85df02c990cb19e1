package core

import "encoding/json"

// FieldType is the advisory semantic type of a detected column.
type FieldType string

const (
	FieldBoolean FieldType = "boolean"
	FieldInteger FieldType = "integer"
	FieldNumber  FieldType = "number"
	FieldObject  FieldType = "object"
	FieldArray   FieldType = "array"
	FieldString  FieldType = "string"
)

// ColumnSchema describes one detected column.
type ColumnSchema struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// Schema is the ordered list of columns detected in a catalog file. It only
// guides operators defining field mappings and is never enforced on rows.
type Schema []ColumnSchema

// Columns returns the column names in file order.
func (s Schema) Columns() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Name
	}
	return out
}

// MarshalJSON encodes the schema as an ordered object of name to type.
func (s Schema) MarshalJSON() ([]byte, error) {
	rec := NewRecord()
	for _, c := range s {
		rec.Set(c.Name, String(string(c.Type)))
	}
	return rec.MarshalJSON()
}

// UnmarshalJSON decodes the object form written by MarshalJSON.
func (s *Schema) UnmarshalJSON(data []byte) error {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	out := make(Schema, 0, rec.Len())
	for _, k := range rec.Keys() {
		v, _ := rec.Get(k)
		out = append(out, ColumnSchema{Name: k, Type: FieldType(v.Text())})
	}
	*s = out
	return nil
}

// InferSchema classifies each column of the first row by inspecting that
// single value. Null and plain strings are both "string".
func InferSchema(rows []*Record) (Schema, error) {
	if len(rows) == 0 || rows[0] == nil {
		return nil, ErrEmptyFile
	}
	first := rows[0]
	schema := make(Schema, 0, first.Len())
	for _, name := range first.Keys() {
		v, _ := first.Get(name)
		schema = append(schema, ColumnSchema{Name: name, Type: DetectFieldType(v)})
	}
	return schema, nil
}

// DetectFieldType maps a single value to its field type.
func DetectFieldType(v Value) FieldType {
	switch v.Kind() {
	case KindBool:
		return FieldBoolean
	case KindInt:
		return FieldInteger
	case KindFloat:
		return FieldNumber
	case KindObject:
		return FieldObject
	case KindArray:
		return FieldArray
	default:
		return FieldString
	}
}
