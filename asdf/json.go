package asdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	json "github.com/goccy/go-json"
)

// DecodeJSON reads the JSON rendition written by ToJSON and converts it.
func (e *Engine) DecodeJSON(r io.Reader) (any, error) {
	tree, err := ReadJSONTree(r)
	if err != nil {
		return nil, err
	}
	return e.FromTree(tree)
}

// FromJSON converts the JSON rendition in data.
func (e *Engine) FromJSON(data []byte) (any, error) {
	return e.DecodeJSON(bytes.NewReader(data))
}

// ReadJSONTree parses one JSON document into an unconverted tree. Objects of
// the form {"$tag": t, "value": v} become tagged nodes; object key order is
// kept and duplicate keys are rejected.
func ReadJSONTree(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	p := &jsonReader{dec: dec}
	tok, err := p.next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("asdf: empty document")
		}
		return nil, err
	}
	return p.value(tok, "")
}

type jsonReader struct {
	dec *json.Decoder
}

func (p *jsonReader) next() (json.Token, error) { return p.dec.Token() }

func (p *jsonReader) value(tok json.Token, path string) (any, error) {
	switch v := tok.(type) {
	case json.Delim:
		switch v {
		case '{':
			return p.object(path)
		case '[':
			return p.array(path)
		}
		return nil, fmt.Errorf("asdf: unexpected %q at %s", rune(v), where(path))
	case json.Number:
		if i, err := strconv.ParseInt(string(v), 10, 64); err == nil {
			if int64(int(i)) == i {
				return int(i), nil
			}
			return i, nil
		}
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return nil, fmt.Errorf("asdf: number %s at %s: %w", v, where(path), err)
		}
		return f, nil
	case string, bool, nil:
		return v, nil
	case float64:
		return v, nil
	}
	return nil, fmt.Errorf("asdf: unexpected token %T at %s", tok, where(path))
}

func (p *jsonReader) object(path string) (any, error) {
	m := NewMap()
	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		if d, ok := tok.(json.Delim); ok && d == '}' {
			break
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("asdf: expected object key at %s, got %T", where(path), tok)
		}
		sub := join(path, key)
		if _, dup := m.vals[key]; dup {
			return nil, fmt.Errorf("asdf: duplicate key %q at %s", key, where(path))
		}
		tok, err = p.next()
		if err != nil {
			return nil, err
		}
		v, err := p.value(tok, sub)
		if err != nil {
			return nil, err
		}
		m.Set(key, v)
	}
	if tag, ok := m.vals["$tag"].(string); ok && m.Len() == 2 {
		if v, ok := m.vals["value"]; ok {
			return &Tagged{Tag: tag, Value: v}, nil
		}
	}
	return m, nil
}

func (p *jsonReader) array(path string) (any, error) {
	out := []any{}
	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		if d, ok := tok.(json.Delim); ok && d == ']' {
			return out, nil
		}
		v, err := p.value(tok, join(path, strconv.Itoa(len(out))))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

func join(path, seg string) string {
	if path == "" {
		return seg
	}
	return path + "." + seg
}

func where(path string) string {
	if path == "" {
		return "document root"
	}
	return path
}
