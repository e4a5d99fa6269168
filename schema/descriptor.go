package schema

import (
	"regexp"
	"slices"
)

// Kind classifies what a schema document describes.
type Kind int

const (
	KindScalar Kind = iota
	KindObject
	KindList
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindObject:
		return "object"
	case KindList:
		return "list"
	default:
		return "unknown"
	}
}

// JSON-schema style primitive type names used by schema documents.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeObject  = "object"
	TypeArray   = "array"
)

// Descriptor is the immutable, loaded form of one schema document.
type Descriptor struct {
	URI   string
	Title string
	Kind  Kind
	// Root holds the constraints of the document root. Object documents keep
	// their properties in Root.Object.
	Root *Field
}

// Field returns the declared property name of an object descriptor.
func (d *Descriptor) Field(name string) (*Field, bool) {
	if d == nil || d.Root == nil || d.Root.Object == nil {
		return nil, false
	}
	return d.Root.Object.Field(name)
}

// Properties returns declared properties in document order.
func (d *Descriptor) Properties() []*Field {
	if d == nil || d.Root == nil || d.Root.Object == nil {
		return nil
	}
	return d.Root.Object.Properties
}

// Required returns the required property names in document order.
func (d *Descriptor) Required() []string {
	if d == nil || d.Root == nil || d.Root.Object == nil {
		return nil
	}
	return d.Root.Object.Required
}

// IsRequired reports whether name is a required property.
func (d *Descriptor) IsRequired(name string) bool {
	if d == nil || d.Root == nil || d.Root.Object == nil {
		return false
	}
	return d.Root.Object.IsRequired(name)
}

// Declared reports whether name is a declared property.
func (d *Descriptor) Declared(name string) bool {
	_, ok := d.Field(name)
	return ok
}

// Shape is the property set of an object, either a whole document or an
// inline object field.
type Shape struct {
	Properties           []*Field
	Required             []string
	AdditionalProperties bool

	index    map[string]*Field
	required map[string]struct{}
}

// NewShape indexes properties and required names.
func NewShape(props []*Field, required []string, additional bool) *Shape {
	s := &Shape{
		Properties:           props,
		Required:             slices.Clone(required),
		AdditionalProperties: additional,
		index:                make(map[string]*Field, len(props)),
		required:             make(map[string]struct{}, len(required)),
	}
	for _, f := range props {
		s.index[f.Name] = f
	}
	for _, r := range required {
		s.required[r] = struct{}{}
	}
	return s
}

func (s *Shape) Field(name string) (*Field, bool) {
	f, ok := s.index[name]
	return f, ok
}

func (s *Shape) IsRequired(name string) bool {
	_, ok := s.required[name]
	return ok
}

// Field holds the constraints of one value position: a property, list items,
// or a document root.
type Field struct {
	Name  string
	Title string
	Type  string
	// Tag is a tag URI or a trailing-wildcard tag pattern the value must carry.
	Tag string
	// Ref is the schema URI of a referenced, untagged document.
	Ref       string
	Enum      []any
	Minimum   *float64
	Maximum   *float64
	MinLength *int
	MaxLength *int
	Pattern   string
	// Default is the schema's default hint; HasDefault distinguishes a nil hint.
	Default    any
	HasDefault bool
	Items      *Field
	Object     *Shape
	// DataType and NDim constrain array-valued (ndarray) fields.
	DataType string
	NDim     int

	pattern *regexp.Regexp
}
