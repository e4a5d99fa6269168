package asdf

import (
	"bytes"
	"slices"

	json "github.com/goccy/go-json"

	"github.com/reoring/datamodels/internal/memo"
)

// Map is an insertion-ordered mapping, the tree form of a YAML mapping.
type Map struct {
	keys []string
	vals map[string]any
}

// NewMap returns an empty Map.
func NewMap() *Map { return &Map{vals: map[string]any{}} }

// MapOf builds a Map from alternating keys and values.
func MapOf(kv ...any) *Map {
	m := NewMap()
	for i := 0; i+1 < len(kv); i += 2 {
		m.Set(kv[i].(string), kv[i+1])
	}
	return m
}

// Set stores v under k, appending k when new.
func (m *Map) Set(k string, v any) {
	if _, ok := m.vals[k]; !ok {
		m.keys = append(m.keys, k)
	}
	m.vals[k] = v
}

func (m *Map) Get(k string) (any, bool) {
	v, ok := m.vals[k]
	return v, ok
}

func (m *Map) Keys() []string { return slices.Clone(m.keys) }
func (m *Map) Len() int       { return len(m.keys) }

// Plain returns the entries as a Go map.
func (m *Map) Plain() map[string]any {
	out := make(map[string]any, len(m.vals))
	for k, v := range m.vals {
		out[k] = v
	}
	return out
}

// MarshalJSON writes entries in insertion order.
func (m *Map) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		b.Write(kb)
		b.WriteByte(':')
		vb, err := json.Marshal(m.vals[k])
		if err != nil {
			return nil, err
		}
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Tagged is a tree value labeled with a tag URI.
type Tagged struct {
	Tag   string
	Value any
}

func (t *Tagged) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Tag   string `json:"$tag"`
		Value any    `json:"value"`
	}{t.Tag, t.Value})
}

// Lazy is a tagged subtree whose conversion is deferred until Resolve. It is
// safe to resolve concurrently; the conversion runs at most once on success.
type Lazy struct {
	tag  string
	tree any
	eng  *Engine
	conv Converter
	slot memo.Slot[any]
}

// Tag returns the tag the subtree was read with.
func (l *Lazy) Tag() string { return l.tag }

// Tree returns the unconverted subtree.
func (l *Lazy) Tree() any { return l.tree }

// Resolved reports whether the subtree has been converted.
func (l *Lazy) Resolved() bool { return l.slot.Ready() }

// Resolve converts the subtree and caches the result.
func (l *Lazy) Resolve() (any, error) {
	return l.slot.Get(func() (any, error) {
		v, err := l.eng.fromTree(l.tree, 1)
		if err != nil {
			return nil, err
		}
		out, err := l.conv.FromTree(v, l.tag)
		if err != nil {
			return nil, err
		}
		l.eng.log.Debug("lazy subtree resolved", "tag", l.tag)
		return out, nil
	})
}

func (l *Lazy) MarshalJSON() ([]byte, error) {
	return (&Tagged{Tag: l.tag, Value: l.tree}).MarshalJSON()
}
