package stnode

import (
	"errors"
	"fmt"

	dm "github.com/reoring/datamodels"
	"github.com/reoring/datamodels/i18n"
	"github.com/reoring/datamodels/registry"
	"github.com/reoring/datamodels/schema"
)

// Scalar wraps a primitive, enumerated, time or array value under a tagged
// scalar class.
type Scalar struct {
	class     *Class
	tag       string
	schemaURI string
	value     any
}

// NewScalar constructs a scalar of class cls. Enumerated classes reject values
// outside their members with a *datamodels.ValidationError.
func NewScalar(cls *Class, v any, opts ...Option) (*Scalar, error) {
	if cls == nil {
		return nil, errors.New("stnode: nil class")
	}
	if err := cls.checkKind(schema.KindScalar); err != nil {
		return nil, err
	}
	op := buildOptions(opts)
	if op.tag != "" {
		if _, ok := cls.SchemaForTag(op.tag); !ok {
			return nil, &dm.UnresolvedTagError{Tag: op.tag}
		}
	}
	if s, ok := v.(*Scalar); ok {
		v = s.value
	}
	s := newScalar(cls, op.tag, v)
	if op.unchecked {
		return s, nil
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func newScalar(cls *Class, tag string, v any) *Scalar {
	tag, uri, err := activate(cls, tag)
	if err != nil {
		tag, uri = "", cls.NewestSchema()
	}
	return &Scalar{class: cls, tag: tag, schemaURI: uri, value: v}
}

func (s *Scalar) Class() *Class              { return s.class }
func (s *Scalar) SchemaKind() schema.Kind    { return schema.KindScalar }
func (s *Scalar) Tag() string                { return s.tag }
func (s *Scalar) SchemaURI() string          { return s.schemaURI }
func (s *Scalar) SchemaURIs() []string       { return s.class.SchemaURIs() }
func (s *Scalar) TagURIs() []registry.TagURI { return s.class.TagURIs() }
func (s *Scalar) Value() any                 { return s.value }
func (s *Scalar) ScalarValue() any           { return s.value }
func (s *Scalar) String() string             { return fmt.Sprint(s.value) }
func (s *Scalar) Equal(other any) bool       { return Equal(s, other) }
func (s *Scalar) TypeKey() any               { return s.class }

// Validate checks the wrapped value against the class schema or, without a
// catalog, against the class enum and scalar type.
func (s *Scalar) Validate() error {
	if iss := s.issues(); len(iss) > 0 {
		return &dm.ValidationError{Node: s.class.name, Issues: iss}
	}
	return nil
}

func (s *Scalar) issues() dm.Issues {
	c := s.class
	if root := c.root(s.schemaURI); root != nil {
		return classEnv(c).checker().Check(root, s.value)
	}
	var iss dm.Issues
	if c.scalarType != "" {
		iss = append(iss, schema.Checker{}.Check(&schema.Field{Type: c.scalarType}, s.value)...)
	}
	if len(c.enum) > 0 && !inEnum(c.enum, s.value) {
		iss = dm.AppendIssues(iss, dm.Issue{
			Code:    dm.CodeInvalidEnum,
			Message: i18n.T(dm.CodeInvalidEnum, nil),
			Value:   s.value,
			Params:  map[string]any{"enum": c.enum},
		})
	}
	return iss
}

// root returns the document root constraints of a catalog-backed scalar class.
func (c *Class) root(uri string) *schema.Field {
	if c.catalog == nil {
		return nil
	}
	d, err := c.Descriptor(uri)
	if err != nil {
		return nil
	}
	return d.Root
}

// Members returns the enumeration of a scalar class: the explicit enum, or
// the enum of its newest schema.
func (c *Class) Members() []any {
	if len(c.enum) > 0 {
		return c.Enum()
	}
	if root := c.root(c.NewestSchema()); root != nil {
		return root.Enum
	}
	return nil
}

func (c *Class) scalarDefault() any {
	if c.zero != nil {
		return c.zero()
	}
	if m := c.Members(); len(m) > 0 {
		return deepCopy(m[0])
	}
	if c.scalarType != "" {
		return typeDefault(c.scalarType)
	}
	if root := c.root(c.NewestSchema()); root != nil {
		if root.HasDefault {
			return deepCopy(root.Default)
		}
		return typeDefault(root.Type)
	}
	return nil
}

func inEnum(enum []any, v any) bool {
	for _, e := range enum {
		if schema.EqualScalar(e, v) {
			return true
		}
	}
	return false
}
