package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"sort"
)

// TagEntry pairs a tag URI with the schema URI it serializes.
type TagEntry struct {
	Tag    string
	Schema string
}

// Manifest enumerates every URI a data model package knows about: tags it
// owns, untagged schemas it owns, and externally owned (opaque) entries.
type Manifest struct {
	ID      string
	Tags    []TagEntry
	Schemas []string
	Opaque  []TagEntry
}

// KnownURIs is the full enumeration of known schema and tag URIs.
type KnownURIs struct {
	Schemas []string
	Tags    []string
}

// KnownURIs returns the sorted, de-duplicated schema and tag enumerations.
func (m *Manifest) KnownURIs() KnownURIs {
	schemas := map[string]struct{}{}
	tags := map[string]struct{}{}
	for _, list := range [][]TagEntry{m.Tags, m.Opaque} {
		for _, e := range list {
			if e.Tag != "" {
				tags[e.Tag] = struct{}{}
			}
			if e.Schema != "" {
				schemas[e.Schema] = struct{}{}
			}
		}
	}
	for _, s := range m.Schemas {
		schemas[s] = struct{}{}
	}
	return KnownURIs{Schemas: sortedKeys(schemas), Tags: sortedKeys(tags)}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ParseManifest parses a manifest YAML document:
//
//	id: asdf://example.org/manifests/models-1.0
//	tags:
//	  - tag_uri: asdf://example.org/tags/thing-1.0.0
//	    schema_uri: asdf://example.org/schemas/thing-1.0.0
//	schemas:
//	  - asdf://example.org/schemas/part-1.0.0
//	opaque:
//	  - tag_uri: tag:stsci.edu:asdf/core/ndarray-1.0.0
//	    schema_uri: http://stsci.edu/schemas/asdf/core/ndarray-1.0.0
func ParseManifest(data []byte) (*Manifest, error) {
	doc, err := NewStrictYAMLReader(bytes.NewReader(data)).Next()
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	_, m, ok := entries(doc)
	if !ok {
		return nil, errors.New("manifest: document is not a mapping")
	}
	out := &Manifest{}
	out.ID, _ = m["id"].(string)
	if out.Tags, err = tagEntries(m["tags"]); err != nil {
		return nil, fmt.Errorf("manifest tags: %w", err)
	}
	if out.Opaque, err = tagEntries(m["opaque"]); err != nil {
		return nil, fmt.Errorf("manifest opaque: %w", err)
	}
	if raw, ok := m["schemas"].([]any); ok {
		for _, x := range raw {
			s, ok := x.(string)
			if !ok {
				return nil, fmt.Errorf("manifest schemas: %v is not a string", x)
			}
			out.Schemas = append(out.Schemas, s)
		}
	}
	return out, nil
}

// LoadManifest reads and parses a manifest file from fsys.
func LoadManifest(fsys fs.FS, name string) (*Manifest, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

func tagEntries(v any) ([]TagEntry, error) {
	if v == nil {
		return nil, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, errors.New("expected a list")
	}
	out := make([]TagEntry, 0, len(arr))
	for _, x := range arr {
		_, m, ok := entries(x)
		if !ok {
			return nil, fmt.Errorf("entry %v is not a mapping", x)
		}
		e := TagEntry{}
		e.Tag, _ = m["tag_uri"].(string)
		e.Schema, _ = m["schema_uri"].(string)
		if e.Tag == "" && e.Schema == "" {
			return nil, errors.New("entry has neither tag_uri nor schema_uri")
		}
		out = append(out, e)
	}
	return out, nil
}
