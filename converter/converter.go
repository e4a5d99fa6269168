// Package converter bridges stnode nodes and asdf trees: it writes nodes as
// tagged trees and builds nodes of the registered class back from them.
package converter

import (
	"fmt"
	"log/slog"
	"reflect"

	dm "github.com/reoring/datamodels"
	"github.com/reoring/datamodels/asdf"
	"github.com/reoring/datamodels/metrics"
	"github.com/reoring/datamodels/registry"
	"github.com/reoring/datamodels/schema"
	"github.com/reoring/datamodels/stnode"
	"github.com/reoring/datamodels/timeval"
)

// NodeConverter converts every model class of a registry.
type NodeConverter struct {
	reg   *registry.Registry
	tags  []string
	types []any
}

// NewNodeConverter snapshots the model tags and classes of reg. Build it
// after reg is sealed.
func NewNodeConverter(reg *registry.Registry) *NodeConverter {
	c := &NodeConverter{reg: reg, tags: reg.ModelTags()}
	for _, e := range reg.Entries() {
		if cls, ok := e.(*stnode.Class); ok {
			c.types = append(c.types, cls)
		}
	}
	c.types = append(c.types, reflect.TypeOf(&stnode.Object{}), reflect.TypeOf(&stnode.List{}))
	return c
}

func (c *NodeConverter) Tags() []string { return c.tags }
func (c *NodeConverter) Types() []any   { return c.types }
func (c *NodeConverter) Lazy() bool     { return true }

// SelectTag chooses the class selector, then the node's active tag, then the
// newest tag of the class. Untagged classes and inline nodes return "".
func (c *NodeConverter) SelectTag(v any, tags []string) string {
	n, ok := v.(stnode.Node)
	if !ok || n.Class() == nil {
		return ""
	}
	cls := n.Class()
	if !cls.Tagged() {
		return ""
	}
	if fn := cls.SelectTag(); fn != nil {
		if t := fn(n); t != "" {
			return t
		}
	}
	if tn, ok := n.(stnode.TaggedNode); ok && tn.Tag() != "" {
		return tn.Tag()
	}
	return cls.NewestTag()
}

// ToTree writes a node. Objects are flushed of their required fields first so
// the written tree is complete. Stored values are wrapped into their node form
// so tagged fields keep their tags; unresolved lazy subtrees are written back
// unchanged.
func (c *NodeConverter) ToTree(v any, tag string) (any, error) {
	metrics.Default().IncBridge("write")
	switch n := v.(type) {
	case *stnode.Object:
		if err := n.Flush(stnode.FlushRequired, false); err != nil {
			return nil, err
		}
		m := asdf.NewMap()
		for _, k := range n.Keys() {
			val, _ := n.Lookup(k)
			if !pending(val) {
				var err error
				if val, err = n.Get(k); err != nil {
					return nil, err
				}
			}
			m.Set(k, val)
		}
		return m, nil
	case *stnode.List:
		out := n.Values()
		for i, val := range out {
			if pending(val) {
				continue
			}
			w, err := n.Index(i)
			if err != nil {
				return nil, err
			}
			out[i] = w
		}
		return out, nil
	case *stnode.Scalar:
		return toWire(n.Value())
	}
	return nil, fmt.Errorf("converter: cannot write %T", v)
}

func pending(v any) bool {
	l, ok := v.(*asdf.Lazy)
	return ok && !l.Resolved()
}

// FromTree builds a node of the class registered for tag. Nested values are
// already converted by the engine.
func (c *NodeConverter) FromTree(tree any, tag string) (any, error) {
	metrics.Default().IncBridge("read")
	ent, ok := c.reg.ModelByTag(tag)
	if !ok {
		return nil, &dm.UnresolvedTagError{Tag: tag}
	}
	cls, ok := ent.(*stnode.Class)
	if !ok {
		return nil, &dm.UnresolvedTagError{Tag: tag}
	}
	cfg := dm.CurrentConfig()

	var node interface{ Validate() error }
	switch cls.Kind() {
	case schema.KindScalar:
		if !cfg.StrictValidation && len(cls.Members()) > 0 {
			dm.Logger().Warn("enumerated value read without validation",
				slog.String("class", cls.Name()), slog.String("tag", tag), slog.Any("value", tree))
			return tree, nil
		}
		v, err := fromWire(cls, tree)
		if err != nil {
			return nil, err
		}
		s, err := stnode.NewScalar(cls, v, stnode.Tagged(tag), stnode.Unchecked())
		if err != nil {
			return nil, err
		}
		node = s
	case schema.KindObject:
		m, ok := tree.(*asdf.Map)
		if !ok {
			return nil, fmt.Errorf("converter: %s expects a mapping, got %T", cls.Name(), tree)
		}
		o, err := stnode.NewObject(cls, plainMap(m), stnode.Tagged(tag), stnode.Ordered(m.Keys()))
		if err != nil {
			return nil, err
		}
		node = o
	case schema.KindList:
		items, ok := tree.([]any)
		if !ok {
			return nil, fmt.Errorf("converter: %s expects a sequence, got %T", cls.Name(), tree)
		}
		l, err := stnode.NewList(cls, plainSlice(items), stnode.Tagged(tag))
		if err != nil {
			return nil, err
		}
		node = l
	default:
		return nil, fmt.Errorf("converter: %s has unknown kind %s", cls.Name(), cls.Kind())
	}
	if cfg.ValidateOnRead {
		if err := node.Validate(); err != nil {
			metrics.Default().IncValidationFailure("read")
			if cfg.StrictValidation {
				return nil, err
			}
			dm.Logger().Warn("read invalid node", slog.String("class", cls.Name()), slog.String("tag", tag), slog.Any("error", err))
		}
	}
	return node, nil
}

// toWire writes opaque scalar payloads in their untagged wire form; a YAML
// node carries one tag, which belongs to the scalar class.
func toWire(v any) (any, error) {
	if t, ok := v.(timeval.Time); ok {
		return timeval.Encode(t)
	}
	return v, nil
}

func fromWire(cls *stnode.Class, v any) (any, error) {
	if cls.ScalarType() != timeval.ScalarType {
		return v, nil
	}
	return timeval.Converter{}.FromTree(v, timeval.Tag)
}

// plainMap turns nested untagged mappings into Go maps; nodes, opaque values
// and lazy subtrees are kept as they are.
func plainMap(m *asdf.Map) map[string]any {
	out := make(map[string]any, m.Len())
	for _, k := range m.Keys() {
		v, _ := m.Get(k)
		out[k] = plain(v)
	}
	return out
}

func plainSlice(xs []any) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = plain(x)
	}
	return out
}

func plain(v any) any {
	switch t := v.(type) {
	case *asdf.Map:
		return plainMap(t)
	case []any:
		return plainSlice(t)
	}
	return v
}
