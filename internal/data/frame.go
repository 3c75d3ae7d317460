// Package data defines the typed table model that data sources produce and
// views consume.
package data

import (
	"errors"
	"fmt"
	"slices"
)

// FieldType describes the kind of values a field holds.
type FieldType string

// Field types.
const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeDate    FieldType = "date"
	TypeLink    FieldType = "link"
	TypeList    FieldType = "list"
	TypeUnknown FieldType = "unknown"
)

var (
	ErrDuplicateField  = errors.New("duplicate field")
	ErrUndeclaredField = errors.New("value for undeclared field")
)

// Field describes one column of a Frame, for example a front matter property.
type Field struct {
	// Name references a key in Record.Values. Unique within a Frame.
	Name string    `json:"name" yaml:"name"`
	Type FieldType `json:"type" yaml:"type"`
	// Identifier marks a field whose value identifies a record within its source.
	Identifier bool `json:"identifier" yaml:"identifier"`
	// Derived fields are computed from other data and can't be edited.
	Derived bool `json:"derived" yaml:"derived"`
}

// Link is a reference from one note to another.
type Link struct {
	DisplayName string `json:"displayName,omitempty"`
	LinkText    string `json:"linkText"`
	FullPath    string `json:"fullPath,omitempty"`
	SourcePath  string `json:"sourcePath"`
}

// Record holds the values of a single note.
//
// A key missing from Values means the field does not apply to the record. A
// key mapped to nil means the field applies but has no value yet.
type Record struct {
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
}

// Get returns the value for name and whether the key is present.
func (r Record) Get(name string) (any, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// Clone returns a copy of r that shares no mutable state with it.
func (r Record) Clone() Record {
	values := make(map[string]any, len(r.Values))
	for k, v := range r.Values {
		if list, ok := v.([]string); ok {
			v = slices.Clone(list)
		}
		values[k] = v
	}
	return Record{ID: r.ID, Values: values}
}

// Frame is an immutable snapshot of a schema and the records that follow it.
// Methods that change a frame return a new one.
type Frame struct {
	Fields  []Field  `json:"fields"`
	Records []Record `json:"records"`
}

// EmptyFrame returns a frame with no fields and no records.
func EmptyFrame() Frame {
	return Frame{Fields: []Field{}, Records: []Record{}}
}

// Field returns the field with the given name.
func (f Frame) Field(name string) (Field, bool) {
	for _, field := range f.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return Field{}, false
}

// Record returns the record with the given id.
func (f Frame) Record(id string) (Record, bool) {
	for _, r := range f.Records {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}

// WithRecord returns a frame where the record with r.ID is replaced by r, or
// r is appended when no such record exists.
func (f Frame) WithRecord(r Record) Frame {
	records := make([]Record, 0, len(f.Records)+1)
	replaced := false
	for _, existing := range f.Records {
		if existing.ID == r.ID {
			records = append(records, r)
			replaced = true
			continue
		}
		records = append(records, existing)
	}
	if !replaced {
		records = append(records, r)
	}
	return Frame{Fields: slices.Clone(f.Fields), Records: records}
}

// WithoutRecord returns a frame without the record with the given id.
func (f Frame) WithoutRecord(id string) Frame {
	records := make([]Record, 0, len(f.Records))
	for _, r := range f.Records {
		if r.ID != id {
			records = append(records, r)
		}
	}
	return Frame{Fields: slices.Clone(f.Fields), Records: records}
}

// WithFields returns a frame whose fields are the union of f.Fields and
// fields. Fields already present keep their definition.
func (f Frame) WithFields(fields []Field) Frame {
	out := slices.Clone(f.Fields)
	seen := make(map[string]struct{}, len(out)+len(fields))
	for _, field := range out {
		seen[field.Name] = struct{}{}
	}
	for _, field := range fields {
		if _, ok := seen[field.Name]; !ok {
			seen[field.Name] = struct{}{}
			out = append(out, field)
		}
	}
	return Frame{Fields: out, Records: slices.Clone(f.Records)}
}

// Validate reports duplicate field names and record values for fields the
// frame doesn't declare.
func (f Frame) Validate() error {
	declared := make(map[string]struct{}, len(f.Fields))
	for _, field := range f.Fields {
		if _, dup := declared[field.Name]; dup {
			return fmt.Errorf("data: %w: %q", ErrDuplicateField, field.Name)
		}
		declared[field.Name] = struct{}{}
	}
	for _, r := range f.Records {
		for key := range r.Values {
			if _, ok := declared[key]; !ok {
				return fmt.Errorf("data: record %q: %w %q", r.ID, ErrUndeclaredField, key)
			}
		}
	}
	return nil
}
