package schema

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"sort"

	json "github.com/goccy/go-json"
)

// ParseYAML parses every document of a YAML stream into descriptors.
func ParseYAML(data []byte) ([]*Descriptor, error) {
	docs, err := NewStrictYAMLReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, err
	}
	out := make([]*Descriptor, 0, len(docs))
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		d, err := Parse(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// ParseJSON parses one JSON schema document.
func ParseJSON(data []byte) (*Descriptor, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("schema: decode json: %w", err)
	}
	return Parse(doc)
}

// Parse builds a Descriptor from a decoded schema document (a mapping
// produced by StrictYAMLReader or a JSON decoder).
func Parse(doc any) (*Descriptor, error) {
	_, m, ok := entries(doc)
	if !ok {
		return nil, errors.New("schema: document is not a mapping")
	}
	id, _ := m["id"].(string)
	if id == "" {
		return nil, errors.New("schema: document has no id")
	}
	root, err := parseField("", doc)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", id, err)
	}
	d := &Descriptor{URI: id, Title: root.Title, Root: root}
	switch {
	case root.Object != nil:
		d.Kind = KindObject
	case root.Type == TypeArray:
		d.Kind = KindList
	default:
		d.Kind = KindScalar
	}
	return d, nil
}

func parseField(name string, v any) (*Field, error) {
	_, m, ok := entries(v)
	if !ok {
		return nil, fmt.Errorf("property %q: expected mapping, got %T", name, v)
	}
	f := &Field{Name: name}
	f.Title, _ = m["title"].(string)
	f.Type, _ = m["type"].(string)
	f.Tag, _ = m["tag"].(string)
	f.Ref, _ = m["$ref"].(string)
	f.DataType, _ = m["datatype"].(string)
	if n, ok := m["ndim"]; ok {
		x, ok := ToFloat(n)
		if !ok {
			return nil, fmt.Errorf("property %q: ndim must be a number", name)
		}
		f.NDim = int(x)
	}
	if e, ok := m["enum"]; ok {
		arr, ok := e.([]any)
		if !ok {
			return nil, fmt.Errorf("property %q: enum must be a list", name)
		}
		f.Enum = arr
	}
	var err error
	if f.Minimum, err = optFloat(m, "minimum"); err != nil {
		return nil, fmt.Errorf("property %q: %w", name, err)
	}
	if f.Maximum, err = optFloat(m, "maximum"); err != nil {
		return nil, fmt.Errorf("property %q: %w", name, err)
	}
	if f.MinLength, err = optInt(m, "minLength"); err != nil {
		return nil, fmt.Errorf("property %q: %w", name, err)
	}
	if f.MaxLength, err = optInt(m, "maxLength"); err != nil {
		return nil, fmt.Errorf("property %q: %w", name, err)
	}
	if p, ok := m["pattern"].(string); ok {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("property %q: pattern: %w", name, err)
		}
		f.Pattern, f.pattern = p, re
	}
	if dv, ok := m["default"]; ok {
		f.Default, f.HasDefault = plain(dv), true
	}
	if items, ok := m["items"]; ok {
		if f.Items, err = parseField(name+"[]", items); err != nil {
			return nil, err
		}
	}
	if props, ok := m["properties"]; ok || f.Type == TypeObject {
		if f.Object, err = parseShape(props, m); err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
	}
	return f, nil
}

func parseShape(props any, parent map[string]any) (*Shape, error) {
	if props == nil {
		props = map[string]any{}
	}
	keys, pm, ok := entries(props)
	if !ok {
		return nil, errors.New("properties must be a mapping")
	}
	fields := make([]*Field, 0, len(keys))
	for _, k := range keys {
		f, err := parseField(k, pm[k])
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	var required []string
	if r, ok := parent["required"]; ok {
		arr, ok := r.([]any)
		if !ok {
			return nil, errors.New("required must be a list")
		}
		for _, x := range arr {
			s, ok := x.(string)
			if !ok {
				return nil, fmt.Errorf("required entry %v is not a string", x)
			}
			required = append(required, s)
		}
	}
	additional := true
	if a, ok := parent["additionalProperties"].(bool); ok {
		additional = a
	}
	return NewShape(fields, required, additional), nil
}

// entries returns the keys (document order when known, sorted otherwise) and
// the mapping of v.
func entries(v any) ([]string, map[string]any, bool) {
	switch t := v.(type) {
	case *ordered:
		return t.keys, t.m, true
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys, t, true
	}
	return nil, nil, false
}

// plain converts ordered mappings inside v into map[string]any.
func plain(v any) any {
	switch t := v.(type) {
	case *ordered:
		out := make(map[string]any, len(t.m))
		for k, x := range t.m {
			out[k] = plain(x)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = plain(x)
		}
		return out
	}
	return v
}

func optFloat(m map[string]any, key string) (*float64, error) {
	v, ok := m[key]
	if !ok {
		return nil, nil
	}
	f, ok := ToFloat(v)
	if !ok {
		return nil, fmt.Errorf("%s must be a number", key)
	}
	return &f, nil
}

func optInt(m map[string]any, key string) (*int, error) {
	v, ok := m[key]
	if !ok {
		return nil, nil
	}
	f, ok := ToFloat(v)
	if !ok || !IsInteger(v) {
		return nil, fmt.Errorf("%s must be an integer", key)
	}
	n := int(f)
	return &n, nil
}
