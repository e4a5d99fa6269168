// Package asdf is a small host engine for tagged YAML trees: it converts
// in-memory values to trees of ordered maps, sequences, scalars and tagged
// nodes through registered converters, and reads them back.
package asdf

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"time"

	dm "github.com/reoring/datamodels"
)

// Engine dispatches values to converters by type key and tree nodes by tag.
type Engine struct {
	byTag    map[string]Converter
	byType   map[any]Converter
	lazyTree bool
	log      *slog.Logger
}

// Option configures an Engine.
type Option func(*engineConfig)

type engineConfig struct {
	converters []Converter
	lazyTree   bool
	log        *slog.Logger
}

// WithConverters registers converters. Later converters do not override
// earlier ones; a tag claimed twice is an error.
func WithConverters(cs ...Converter) Option {
	return func(c *engineConfig) { c.converters = append(c.converters, cs...) }
}

// WithLazyTree defers conversion of nested tagged subtrees handled by lazy
// converters until they are accessed.
func WithLazyTree(b bool) Option {
	return func(c *engineConfig) { c.lazyTree = b }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *engineConfig) { c.log = l }
}

// NewEngine builds an engine from opts.
func NewEngine(opts ...Option) (*Engine, error) {
	cfg := engineConfig{}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.log == nil {
		cfg.log = dm.Logger()
	}
	e := &Engine{
		byTag:    map[string]Converter{},
		byType:   map[any]Converter{},
		lazyTree: cfg.lazyTree,
		log:      cfg.log,
	}
	for _, c := range cfg.converters {
		for _, t := range c.Tags() {
			if _, dup := e.byTag[t]; dup {
				return nil, fmt.Errorf("asdf: tag %s claimed by two converters", t)
			}
			e.byTag[t] = c
		}
		for _, k := range c.Types() {
			if _, dup := e.byType[k]; dup {
				return nil, fmt.Errorf("asdf: type %v claimed by two converters", k)
			}
			e.byType[k] = c
		}
	}
	e.log.Debug("engine ready", slog.Int("tags", len(e.byTag)), slog.Int("types", len(e.byType)), slog.Bool("lazy_tree", e.lazyTree))
	return e, nil
}

// Tags returns every tag URI with a converter, sorted.
func (e *Engine) Tags() []string {
	out := make([]string, 0, len(e.byTag))
	for t := range e.byTag {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ConverterForTag returns the converter reading tag.
func (e *Engine) ConverterForTag(tag string) (Converter, bool) {
	c, ok := e.byTag[tag]
	return c, ok
}

func (e *Engine) converterFor(v any) (Converter, bool) {
	if k, ok := v.(Keyed); ok {
		if key := k.TypeKey(); key != nil {
			if c, ok := e.byType[key]; ok {
				return c, true
			}
		}
	}
	c, ok := e.byType[reflect.TypeOf(v)]
	return c, ok
}

// ToTree converts v into a tree. Values with a converter are replaced by the
// converter's tree, labeled with the selected tag.
func (e *Engine) ToTree(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return v, nil
	case *Lazy:
		if !t.Resolved() {
			return &Tagged{Tag: t.tag, Value: t.tree}, nil
		}
		r, err := t.Resolve()
		if err != nil {
			return nil, err
		}
		return e.ToTree(r)
	case *Tagged:
		inner, err := e.ToTree(t.Value)
		if err != nil {
			return nil, err
		}
		return &Tagged{Tag: t.Tag, Value: inner}, nil
	case *Map:
		out := NewMap()
		for _, k := range t.keys {
			c, err := e.ToTree(t.vals[k])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out.Set(k, c)
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := NewMap()
		for _, k := range keys {
			c, err := e.ToTree(t[k])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out.Set(k, c)
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			c, err := e.ToTree(x)
			if err != nil {
				return nil, fmt.Errorf("%d: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), nil
	}
	c, ok := e.converterFor(v)
	if !ok {
		return nil, fmt.Errorf("asdf: no converter for %T", v)
	}
	tag := c.SelectTag(v, c.Tags())
	tree, err := c.ToTree(v, tag)
	if err != nil {
		return nil, err
	}
	inner, err := e.ToTree(tree)
	if err != nil {
		return nil, err
	}
	if tag == "" {
		return inner, nil
	}
	return &Tagged{Tag: tag, Value: inner}, nil
}

// FromTree converts a tree into values bottom-up. Unknown tags fail with
// *datamodels.UnresolvedTagError. In lazy-tree mode nested subtrees of lazy
// converters become *Lazy.
func (e *Engine) FromTree(tree any) (any, error) {
	return e.fromTree(tree, 0)
}

func (e *Engine) fromTree(tree any, depth int) (any, error) {
	switch t := tree.(type) {
	case *Tagged:
		c, ok := e.byTag[t.Tag]
		if !ok {
			return nil, &dm.UnresolvedTagError{Tag: t.Tag}
		}
		if depth > 0 && e.lazyTree && c.Lazy() {
			return &Lazy{tag: t.Tag, tree: t.Value, eng: e, conv: c}, nil
		}
		inner, err := e.fromTree(t.Value, depth+1)
		if err != nil {
			return nil, err
		}
		return c.FromTree(inner, t.Tag)
	case *Map:
		out := NewMap()
		for _, k := range t.keys {
			v, err := e.fromTree(t.vals[k], depth+1)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out.Set(k, v)
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			v, err := e.fromTree(x, depth+1)
			if err != nil {
				return nil, fmt.Errorf("%d: %w", i, err)
			}
			out[i] = v
		}
		return out, nil
	}
	return tree, nil
}
