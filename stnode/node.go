// Package stnode implements schema-backed data model nodes: objects, lists
// and scalars whose fields are validated against loaded schema descriptors and
// whose missing fields are materialized from schema defaults on first access.
//
// Nodes are not safe for concurrent mutation. Callers sharing a node across
// goroutines must synchronize access themselves.
package stnode

import (
	"reflect"

	"github.com/reoring/datamodels/registry"
	"github.com/reoring/datamodels/schema"
)

// Sentinel values materialized for required primitives without a schema
// default. Validation accepts them regardless of bounds and patterns.
const (
	NoStr = schema.NoStr
	NoNum = schema.NoNum
)

// Node is implemented by every schema-backed node.
type Node interface {
	Class() *Class
	SchemaKind() schema.Kind
}

// SchemaBacked is a node whose fields are described by a schema.
type SchemaBacked interface {
	Node
	SchemaURIs() []string
	SchemaURI() string
}

// TaggedNode is a node written under a tag.
type TaggedNode interface {
	SchemaBacked
	Tag() string
	TagURIs() []registry.TagURI
}

// Resolver is implemented by deferred values (lazy subtrees) that are
// converted on first access.
type Resolver interface {
	Resolve() (any, error)
}

// Defaulter is implemented by opaque registry entries that can produce a
// default value for a field tagged with one of their tags.
type Defaulter interface {
	DefaultValue(f *schema.Field) any
}

// Equaler is implemented by opaque values with their own equality.
type Equaler interface {
	Equal(other any) bool
}

// Presence is the bit set recorded per field.
type Presence uint8

const (
	PresenceSeen           Presence = 1 << iota // Field was set or read from input.
	PresenceDefaultApplied                      // Default was materialized.
)

// Option configures node construction.
type Option func(*options)

type options struct {
	tag       string
	order     []string
	unchecked bool
}

// Tagged activates tag (and the schema it maps to) on the constructed node.
func Tagged(tag string) Option {
	return func(o *options) { o.tag = tag }
}

// Ordered fixes the initial key order of an object. Keys absent from the
// values are ignored; values absent from order follow in sorted order.
func Ordered(keys []string) Option {
	return func(o *options) { o.order = keys }
}

// Unchecked skips construction-time validation of scalars.
func Unchecked() Option {
	return func(o *options) { o.unchecked = true }
}

func buildOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// env carries what nested untyped nodes need to resolve tags and references.
type env struct {
	reg *registry.Registry
	cat *schema.Catalog
}

func classEnv(c *Class) env {
	return env{reg: c.reg, cat: c.catalog}
}

func (e env) registry() *registry.Registry {
	if e.reg != nil {
		return e.reg
	}
	return registry.Default()
}

func (e env) checker() schema.Checker {
	if e.cat == nil {
		return schema.Checker{}
	}
	return e.cat.Checker()
}

// Equal reports value equality of nodes and plain values. Objects compare by
// class and field contents regardless of key order; lists element-wise. A raw
// mapping or sequence equals a node holding the same contents, since it is
// wrapped into that node on access.
func Equal(a, b any) bool {
	a, b = settle(a), settle(b)
	if x, ok := a.(*Object); ok {
		if y, ok := b.(*Object); ok && x.class != y.class {
			return false
		}
	}
	if x, ok := a.(*List); ok {
		if y, ok := b.(*List); ok && x.class != y.class {
			return false
		}
	}
	if x, ok := mapping(a); ok {
		y, ok := mapping(b)
		return ok && equalMaps(x, y)
	}
	if x, ok := sequence(a); ok {
		y, ok := sequence(b)
		return ok && equalSlices(x, y)
	}
	switch x := a.(type) {
	case *Scalar:
		y, ok := b.(*Scalar)
		return ok && x.class == y.class && Equal(x.value, y.value)
	case Equaler:
		return x.Equal(b)
	}
	if _, ok := schema.ToFloat(a); ok {
		return schema.EqualScalar(a, b)
	}
	return reflect.DeepEqual(a, b)
}

func mapping(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case *Object:
		return t.vals, true
	case map[string]any:
		return t, true
	}
	return nil, false
}

func sequence(v any) ([]any, bool) {
	switch t := v.(type) {
	case *List:
		return t.items, true
	case []any:
		return t, true
	}
	return nil, false
}

func equalMaps(x, y map[string]any) bool {
	if len(x) != len(y) {
		return false
	}
	for k, v := range x {
		w, ok := y[k]
		if !ok || !Equal(v, w) {
			return false
		}
	}
	return true
}

func equalSlices(x, y []any) bool {
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if !Equal(x[i], y[i]) {
			return false
		}
	}
	return true
}

// settle resolves deferred values; unresolvable ones compare as themselves.
func settle(v any) any {
	if r, ok := v.(Resolver); ok {
		if x, err := r.Resolve(); err == nil {
			return x
		}
	}
	return v
}
