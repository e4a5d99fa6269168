package stnode

import (
	"fmt"
	"strings"

	dm "github.com/reoring/datamodels"
	"github.com/reoring/datamodels/metrics"
	"github.com/reoring/datamodels/registry"
	"github.com/reoring/datamodels/schema"
)

// defaultFor computes the value materialized for an unset declared field.
//
// Rules, first match wins: schema default hint; tag of a scalar class; tag of
// an object or list class; tag of an opaque type; schema reference; first
// enum member; primitive sentinel by type.
func (e env) defaultFor(f *schema.Field) (any, error) {
	if f.HasDefault {
		v, _, err := e.adopt(f, deepCopy(f.Default))
		return v, err
	}
	if f.Tag != "" {
		ent, tag, ok := e.resolveTag(f.Tag)
		if ok {
			switch x := ent.(type) {
			case *Class:
				return x.newEmpty(tag)
			case Defaulter:
				return x.DefaultValue(f), nil
			}
		}
		if f.Type == "" {
			return nil, &dm.UnresolvedTagError{Tag: f.Tag}
		}
	}
	if f.Ref != "" {
		return e.objectFor(&schema.Field{Ref: f.Ref}, map[string]any{})
	}
	if len(f.Enum) > 0 {
		return deepCopy(f.Enum[0]), nil
	}
	switch f.Type {
	case schema.TypeArray:
		return newInlineList(f.Items, e, nil), nil
	case schema.TypeObject:
		return newInline(f.Object, e, nil, nil), nil
	}
	return typeDefault(f.Type), nil
}

func typeDefault(t string) any {
	switch t {
	case schema.TypeString:
		return NoStr
	case schema.TypeInteger:
		return NoNum
	case schema.TypeNumber:
		return float64(NoNum)
	case schema.TypeBoolean:
		return false
	}
	return nil
}

// newEmpty builds the default node of the class, activated under tag.
func (c *Class) newEmpty(tag string) (any, error) {
	var opts []Option
	if tag != "" {
		opts = append(opts, Tagged(tag))
	}
	switch c.kind {
	case schema.KindObject:
		return NewObject(c, nil, opts...)
	case schema.KindList:
		return NewList(c, nil, opts...)
	default:
		if err := c.checkKind(schema.KindScalar); err != nil {
			return nil, err
		}
		return newScalar(c, tag, c.scalarDefault()), nil
	}
}

// adopt turns a stored value into its node form: deferred values are resolved,
// raw mappings and sequences wrapped, and primitives under a scalar-class tag
// wrapped. changed reports whether the result differs from v.
func (e env) adopt(f *schema.Field, v any) (out any, changed bool, err error) {
	if r, ok := v.(Resolver); ok {
		if v, err = r.Resolve(); err != nil {
			return nil, false, err
		}
		changed = true
	}
	switch t := v.(type) {
	case map[string]any:
		n, err := e.objectFor(f, t)
		return n, true, err
	case []any:
		n, err := e.listFor(f, t)
		return n, true, err
	case *Object, *List, *Scalar:
		return v, changed, nil
	}
	if f != nil {
		w, err := e.wrapScalar(f, v)
		if err != nil {
			return nil, false, err
		}
		if _, ok := w.(*Scalar); ok {
			if _, was := v.(*Scalar); !was {
				changed = true
			}
		}
		v = w
	}
	return v, changed, nil
}

// wrapScalar wraps a raw primitive into the scalar class named by f's tag.
// Other values are returned unchanged.
func (e env) wrapScalar(f *schema.Field, v any) (any, error) {
	if f == nil || f.Tag == "" || !isPrimitive(v) {
		return v, nil
	}
	ent, tag, ok := e.resolveTag(f.Tag)
	if !ok {
		return v, nil
	}
	cls, ok := ent.(*Class)
	if !ok || cls.kind != schema.KindScalar {
		return v, nil
	}
	if err := cls.checkKind(schema.KindScalar); err != nil {
		return nil, err
	}
	return newScalar(cls, tag, v), nil
}

func (e env) objectFor(f *schema.Field, m map[string]any) (any, error) {
	if f == nil {
		return newInline(nil, e, m, nil), nil
	}
	if f.Tag != "" {
		if ent, tag, ok := e.resolveTag(f.Tag); ok {
			if cls, ok := ent.(*Class); ok && cls.kind == schema.KindObject {
				return NewObject(cls, m, Tagged(tag))
			}
		}
	}
	if f.Ref != "" {
		if ent, ok := e.registry().ModelBySchema(f.Ref); ok {
			if cls, ok := ent.(*Class); ok && cls.kind == schema.KindObject {
				return NewObject(cls, m)
			}
		}
		if e.cat != nil {
			d, err := e.cat.Lookup(f.Ref)
			if err != nil {
				return nil, err
			}
			if d.Root != nil && d.Root.Object != nil {
				return newInline(d.Root.Object, e, m, nil), nil
			}
		}
		return nil, fmt.Errorf("%w: %s", dm.ErrUnknownSchema, f.Ref)
	}
	return newInline(f.Object, e, m, nil), nil
}

func (e env) listFor(f *schema.Field, items []any) (any, error) {
	if f == nil {
		return newInlineList(nil, e, items), nil
	}
	if f.Tag != "" {
		if ent, tag, ok := e.resolveTag(f.Tag); ok {
			if cls, ok := ent.(*Class); ok && cls.kind == schema.KindList {
				return NewList(cls, items, Tagged(tag))
			}
		}
	}
	return newInlineList(f.Items, e, items), nil
}

// resolveTag finds the registry entry for a tag or a trailing-wildcard tag
// pattern. Patterns resolve to the newest matching tag.
func (e env) resolveTag(pattern string) (registry.Registrable, string, bool) {
	reg := e.registry()
	if ent, ok := reg.LookupByTag(pattern); ok {
		return ent, pattern, true
	}
	if !strings.HasSuffix(pattern, "*") {
		return nil, "", false
	}
	best := ""
	for _, t := range reg.TagURIs() {
		if schema.MatchTag(pattern, t) && (best == "" || newer(t, best)) {
			best = t
		}
	}
	if best == "" {
		return nil, "", false
	}
	ent, ok := reg.LookupByTag(best)
	return ent, best, ok
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	}
	return false
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, x := range t {
			out[k] = deepCopy(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = deepCopy(x)
		}
		return out
	}
	return v
}

func countDefault(v any) {
	kind := "primitive"
	switch v.(type) {
	case *Object:
		kind = "object"
	case *List:
		kind = "list"
	case *Scalar:
		kind = "scalar"
	default:
		if _, ok := v.(schema.Tagged); ok {
			kind = "opaque"
		}
	}
	metrics.Default().IncDefaultMaterialized(kind)
}

func validationFailed(phase string) {
	metrics.Default().IncValidationFailure(phase)
}
