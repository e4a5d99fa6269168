// Package timeval adapts time.Time to the ASDF time tag.
package timeval

import (
	"fmt"
	"reflect"
	"time"

	dm "github.com/reoring/datamodels"
	"github.com/reoring/datamodels/registry"
	"github.com/reoring/datamodels/schema"
)

const (
	Tag       = "tag:stsci.edu:asdf/time/time-1.1.0"
	SchemaURI = "http://stsci.edu/schemas/asdf/time/time-1.1.0"
	// ScalarType marks scalar classes whose value is a Time.
	ScalarType = "time"
)

// Default is the value materialized for unset time fields.
var Default = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Time is a time.Time written under the ASDF time tag.
type Time struct {
	time.Time
}

// Of wraps t.
func Of(t time.Time) Time { return Time{Time: t} }

func (t Time) Tag() string { return Tag }

// Equal reports whether other is a Time (or time.Time) at the same instant.
func (t Time) Equal(other any) bool {
	switch o := other.(type) {
	case Time:
		return t.Time.Equal(o.Time)
	case time.Time:
		return t.Time.Equal(o)
	}
	return false
}

func (t Time) String() string { return formatRFC3339Canonical(t.Time) }

// Type is the opaque registry entry for time values.
type Type struct{}

func (Type) Name() string         { return "time" }
func (Type) SchemaURIs() []string { return []string{SchemaURI} }
func (Type) Role() registry.Role  { return registry.RoleOpaque }

func (Type) TagURIs() []registry.TagURI {
	return []registry.TagURI{{Tag: Tag, Schema: SchemaURI}}
}

// DefaultValue returns Default for any time-tagged field.
func (Type) DefaultValue(*schema.Field) any { return Time{Time: Default} }

// Converter writes Time as a canonical RFC3339 string.
type Converter struct{}

func (Converter) Tags() []string                        { return []string{Tag} }
func (Converter) Types() []any                          { return []any{reflect.TypeOf(Time{})} }
func (Converter) SelectTag(v any, tags []string) string { return Tag }
func (Converter) Lazy() bool                            { return false }

func (Converter) ToTree(v any, tag string) (any, error) {
	t, ok := v.(Time)
	if !ok {
		return nil, fmt.Errorf("timeval: cannot write %T", v)
	}
	return Encode(t)
}

func (Converter) FromTree(tree any, tag string) (any, error) {
	switch v := tree.(type) {
	case string:
		return Decode(v)
	case time.Time:
		return Time{Time: v}, nil
	}
	return nil, dm.Issues{{Code: dm.CodeInvalidType, Message: "expected RFC3339 string", Value: tree}}
}

// Decode parses an RFC3339 (optionally fractional) string.
func Decode(s string) (Time, error) {
	t, err := parseRFC3339(s)
	if err != nil {
		return Time{}, dm.Issues{{Code: dm.CodeInvalidFormat, Message: "invalid RFC3339 time", Value: s}}
	}
	return Time{Time: t}, nil
}

// Encode formats t in UTC using RFC3339Nano.
func Encode(t Time) (string, error) {
	if t.IsZero() {
		return "", dm.Issues{{Code: dm.CodeRequired, Message: "cannot encode zero time"}}
	}
	return formatRFC3339Canonical(t.Time), nil
}

func parseRFC3339(s string) (time.Time, error) {
	// Accept RFC3339Nano (trailing zeros optional)
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		if t2, err2 := time.Parse(time.RFC3339, s); err2 == nil {
			return t2, nil
		}
		return time.Time{}, err
	}
	return t, nil
}

func formatRFC3339Canonical(t time.Time) string {
	// Normalize to UTC and format using RFC3339Nano (Go trims trailing zeros)
	return t.UTC().Format(time.RFC3339Nano)
}
