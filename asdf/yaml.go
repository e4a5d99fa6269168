package asdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Encode writes v as one YAML document. Tags are written as YAML node tags.
func (e *Engine) Encode(w io.Writer, v any) error {
	tree, err := e.ToTree(v)
	if err != nil {
		return err
	}
	node, err := toNode(tree)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return err
	}
	return enc.Close()
}

// Marshal returns the YAML encoding of v.
func (e *Engine) Marshal(v any) ([]byte, error) {
	var b bytes.Buffer
	if err := e.Encode(&b, v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Decode reads one YAML document and converts it.
func (e *Engine) Decode(r io.Reader) (any, error) {
	tree, err := ReadTree(r)
	if err != nil {
		return nil, err
	}
	return e.FromTree(tree)
}

// Unmarshal converts the YAML document in data.
func (e *Engine) Unmarshal(data []byte) (any, error) {
	return e.Decode(bytes.NewReader(data))
}

// ToJSON renders the tree of v as indented JSON. Tagged nodes become
// {"$tag": ..., "value": ...}.
func (e *Engine) ToJSON(v any) ([]byte, error) {
	tree, err := e.ToTree(v)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(tree, "", "  ")
}

// ReadTree parses one YAML document into an unconverted tree. Duplicate
// mapping keys are rejected.
func ReadTree(r io.Reader) (any, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("asdf: empty document")
		}
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	return fromNode(doc.Content[0])
}

func customTag(n *yaml.Node) (string, bool) {
	if n.Tag == "" || n.Tag == "!" {
		return "", false
	}
	st := n.ShortTag()
	if strings.HasPrefix(st, "!!") {
		return "", false
	}
	return st, true
}

func fromNode(n *yaml.Node) (any, error) {
	if n.Kind == yaml.AliasNode {
		return fromNode(n.Alias)
	}
	tag, tagged := customTag(n)
	var v any
	switch n.Kind {
	case yaml.MappingNode:
		m := NewMap()
		for i := 0; i+1 < len(n.Content); i += 2 {
			k := n.Content[i]
			if _, dup := m.vals[k.Value]; dup {
				return nil, fmt.Errorf("asdf: duplicate key %q at %d:%d", k.Value, k.Line, k.Column)
			}
			x, err := fromNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			m.Set(k.Value, x)
		}
		v = m
	case yaml.SequenceNode:
		arr := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			x, err := fromNode(c)
			if err != nil {
				return nil, err
			}
			arr = append(arr, x)
		}
		v = arr
	case yaml.ScalarNode:
		plain := *n
		if tagged {
			plain.Tag = ""
		}
		if err := plain.Decode(&v); err != nil {
			return nil, fmt.Errorf("asdf: scalar at %d:%d: %w", n.Line, n.Column, err)
		}
	}
	if tagged {
		return &Tagged{Tag: tag, Value: v}, nil
	}
	return v, nil
}

func toNode(tree any) (*yaml.Node, error) {
	switch t := tree.(type) {
	case *Tagged:
		n, err := toNode(t.Value)
		if err != nil {
			return nil, err
		}
		n.Tag = t.Tag
		return n, nil
	case *Map:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range t.keys {
			kn := &yaml.Node{}
			if err := kn.Encode(k); err != nil {
				return nil, err
			}
			vn, err := toNode(t.vals[k])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			n.Content = append(n.Content, kn, vn)
		}
		return n, nil
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for i, x := range t {
			c, err := toNode(x)
			if err != nil {
				return nil, fmt.Errorf("%d: %w", i, err)
			}
			n.Content = append(n.Content, c)
		}
		return n, nil
	}
	n := &yaml.Node{}
	if err := n.Encode(tree); err != nil {
		return nil, err
	}
	return n, nil
}
