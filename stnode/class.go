package stnode

import (
	"fmt"
	"slices"
	"sync"

	dm "github.com/reoring/datamodels"
	"github.com/reoring/datamodels/internal/memo"
	"github.com/reoring/datamodels/metrics"
	"github.com/reoring/datamodels/registry"
	"github.com/reoring/datamodels/schema"
)

// Class describes one concrete node class: its kind, the schema versions it
// implements, the tags it is written under and its cross-field rules.
//
// Classes are created once at package initialization and shared by all nodes
// of the class. A Class implements registry.Registrable.
type Class struct {
	name       string
	kind       schema.Kind
	role       registry.Role
	schemas    []string
	tags       []registry.TagURI
	selectTag  func(Node) string
	scalarType string
	enum       []any
	zero       func() any
	rules      []Rule
	catalog    *schema.Catalog
	reg        *registry.Registry

	descs memo.Map[string, *schema.Descriptor]

	checkOnce sync.Once
	checkErr  error
}

// Rule is a cross-field check run by whole-node validation.
type Rule func(o *Object) dm.Issues

// ClassOption configures a Class.
type ClassOption func(*Class)

// WithSchema adds schema URIs implemented by the class.
func WithSchema(uris ...string) ClassOption {
	return func(c *Class) { c.schemas = append(c.schemas, uris...) }
}

// WithTag adds a tag URI and the schema URI it serializes.
func WithTag(tag, schemaURI string) ClassOption {
	return func(c *Class) { c.tags = append(c.tags, registry.TagURI{Tag: tag, Schema: schemaURI}) }
}

// WithRole marks the class as a data model or reference model.
func WithRole(r registry.Role) ClassOption {
	return func(c *Class) { c.role = r }
}

// WithTagSelector overrides tag choice on write.
func WithTagSelector(fn func(Node) string) ClassOption {
	return func(c *Class) { c.selectTag = fn }
}

// WithScalarType sets the primitive type of a scalar class.
func WithScalarType(t string) ClassOption {
	return func(c *Class) { c.scalarType = t }
}

// WithEnum restricts a scalar class to the given members. The first member
// is the class default.
func WithEnum(members ...any) ClassOption {
	return func(c *Class) { c.enum = append(c.enum, members...) }
}

// WithZero sets the default value of a scalar class.
func WithZero(fn func() any) ClassOption {
	return func(c *Class) { c.zero = fn }
}

// WithRules adds cross-field rules.
func WithRules(rs ...Rule) ClassOption {
	return func(c *Class) { c.rules = append(c.rules, rs...) }
}

// WithCatalog sets the catalog schema URIs are resolved against.
func WithCatalog(cat *schema.Catalog) ClassOption {
	return func(c *Class) { c.catalog = cat }
}

// WithRegistry resolves tags and references against r instead of the process
// registry.
func WithRegistry(r *registry.Registry) ClassOption {
	return func(c *Class) { c.reg = r }
}

// NewClass defines a node class. Completeness is checked when the first node
// of the class is constructed.
func NewClass(name string, kind schema.Kind, opts ...ClassOption) *Class {
	c := &Class{name: name, kind: kind, role: registry.RoleNode}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Class) Name() string                 { return c.name }
func (c *Class) Kind() schema.Kind            { return c.kind }
func (c *Class) Role() registry.Role          { return c.role }
func (c *Class) SchemaURIs() []string         { return slices.Clone(c.schemas) }
func (c *Class) TagURIs() []registry.TagURI   { return slices.Clone(c.tags) }
func (c *Class) Enum() []any                  { return slices.Clone(c.enum) }
func (c *Class) ScalarType() string           { return c.scalarType }
func (c *Class) Catalog() *schema.Catalog     { return c.catalog }
func (c *Class) Tagged() bool                 { return len(c.tags) > 0 }
func (c *Class) String() string               { return c.name }
func (c *Class) SelectTag() func(Node) string { return c.selectTag }

// Registry returns the registry the class resolves against.
func (c *Class) Registry() *registry.Registry {
	if c.reg != nil {
		return c.reg
	}
	return registry.Default()
}

// Check verifies that the class supplies every capability its kind requires.
func (c *Class) Check() error {
	c.checkOnce.Do(func() { c.checkErr = c.check() })
	return c.checkErr
}

func (c *Class) check() error {
	if len(c.schemas) == 0 {
		return &dm.CapabilityError{Class: c.name, Missing: "schema URIs"}
	}
	for _, t := range c.tags {
		if t.Tag == "" {
			return &dm.CapabilityError{Class: c.name, Missing: "tag URI"}
		}
		if !slices.Contains(c.schemas, t.Schema) {
			return &dm.CapabilityError{Class: c.name, Missing: fmt.Sprintf("schema for tag %s", t.Tag)}
		}
	}
	if c.kind != schema.KindScalar && c.catalog == nil {
		return &dm.CapabilityError{Class: c.name, Missing: "schema catalog"}
	}
	if c.role == registry.RoleOpaque {
		return &dm.CapabilityError{Class: c.name, Missing: "node role"}
	}
	return nil
}

func (c *Class) checkKind(k schema.Kind) error {
	if err := c.Check(); err != nil {
		return err
	}
	if c.kind != k {
		return &dm.CapabilityError{Class: c.name, Missing: k.String() + " kind"}
	}
	return nil
}

// NewestTag returns the tag with the highest version, or "" for untagged classes.
func (c *Class) NewestTag() string {
	best := ""
	for _, t := range c.tags {
		if best == "" || newer(t.Tag, best) {
			best = t.Tag
		}
	}
	return best
}

// NewestSchema returns the schema URI with the highest version.
func (c *Class) NewestSchema() string {
	best := ""
	for _, s := range c.schemas {
		if best == "" || newer(s, best) {
			best = s
		}
	}
	return best
}

func newer(a, b string) bool {
	_, va := schema.SplitVersion(a)
	_, vb := schema.SplitVersion(b)
	return schema.CompareVersions(va, vb) > 0
}

// SchemaForTag returns the schema URI tag serializes.
func (c *Class) SchemaForTag(tag string) (string, bool) {
	for _, t := range c.tags {
		if t.Tag == tag {
			return t.Schema, true
		}
	}
	return "", false
}

// TagForSchema returns the tag that serializes schema URI uri.
func (c *Class) TagForSchema(uri string) (string, bool) {
	for _, t := range c.tags {
		if t.Schema == uri {
			return t.Tag, true
		}
	}
	return "", false
}

// Descriptor resolves a schema URI of the class through its catalog. Each URI
// is resolved at most once per class.
func (c *Class) Descriptor(uri string) (*schema.Descriptor, error) {
	if !slices.Contains(c.schemas, uri) {
		return nil, fmt.Errorf("%w: %s is not a schema of %s", dm.ErrUnknownSchema, uri, c.name)
	}
	if c.catalog == nil {
		return nil, &dm.CapabilityError{Class: c.name, Missing: "schema catalog"}
	}
	loaded := false
	d, err := c.descs.Get(uri, func() (*schema.Descriptor, error) {
		loaded = true
		d, err := c.catalog.Lookup(uri)
		if err != nil {
			return nil, err
		}
		if d.Kind != c.kind {
			return nil, fmt.Errorf("schema %s describes a %s, class %s is a %s", uri, d.Kind, c.name, c.kind)
		}
		return d, nil
	})
	switch {
	case err != nil:
		metrics.Default().IncSchemaLookup("error")
	case loaded:
		metrics.Default().IncSchemaLookup("miss")
	default:
		metrics.Default().IncSchemaLookup("hit")
	}
	return d, err
}
