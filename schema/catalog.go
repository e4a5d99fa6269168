package schema

import (
	"fmt"
	"io/fs"
	"path"
	"reflect"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	dm "github.com/reoring/datamodels"
)

// Catalog is an append-only store of schema descriptors keyed by URI.
//
// Descriptors are added eagerly (Add, LoadFS) or resolved on first lookup
// from mounted file systems (Mount). Concurrent first lookups of the same URI
// share one load.
type Catalog struct {
	mu     sync.RWMutex
	docs   map[string]*Descriptor
	mounts []mount
	group  singleflight.Group
}

// mount maps a URI prefix onto a directory: uri prefix+"foo-1.0.0" resolves to
// dir/foo-1.0.0.yaml.
type mount struct {
	prefix string
	fsys   fs.FS
	dir    string
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{docs: map[string]*Descriptor{}}
}

// Add appends descriptors. Re-adding an identical descriptor is a no-op;
// a different descriptor under an existing URI is an error.
func (c *Catalog) Add(ds ...*Descriptor) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range ds {
		if err := c.addLocked(d); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) addLocked(d *Descriptor) error {
	if d == nil || d.URI == "" {
		return fmt.Errorf("schema: descriptor without URI")
	}
	if prev, ok := c.docs[d.URI]; ok {
		if reflect.DeepEqual(prev, d) {
			return nil
		}
		return fmt.Errorf("schema: %s already defined with different content", d.URI)
	}
	c.docs[d.URI] = d
	return nil
}

// AddDocument parses a YAML or JSON schema document and adds it.
func (c *Catalog) AddDocument(name string, data []byte) error {
	var ds []*Descriptor
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		d, err := ParseJSON(data)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		ds = []*Descriptor{d}
	default:
		var err error
		if ds, err = ParseYAML(data); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return c.Add(ds...)
}

// LoadFS eagerly adds every *.yaml, *.yml and *.json document under dir.
// Files named manifest.* are skipped.
func (c *Catalog) LoadFS(fsys fs.FS, dir string) error {
	return fs.WalkDir(fsys, dir, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() || !isSchemaFile(p) {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		return c.AddDocument(p, data)
	})
}

func isSchemaFile(p string) bool {
	base := path.Base(p)
	if strings.HasPrefix(base, "manifest.") {
		return false
	}
	switch strings.ToLower(path.Ext(base)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// Mount registers a lazily loaded directory for URIs starting with prefix.
func (c *Catalog) Mount(prefix string, fsys fs.FS, dir string) {
	c.mu.Lock()
	c.mounts = append(c.mounts, mount{prefix: prefix, fsys: fsys, dir: dir})
	c.mu.Unlock()
}

// Lookup returns the descriptor for uri, loading it from a mount on first use.
// Unknown URIs return an error wrapping datamodels.ErrUnknownSchema.
func (c *Catalog) Lookup(uri string) (*Descriptor, error) {
	c.mu.RLock()
	d, ok := c.docs[uri]
	mounts := c.mounts
	c.mu.RUnlock()
	if ok {
		return d, nil
	}
	for _, m := range mounts {
		if !strings.HasPrefix(uri, m.prefix) {
			continue
		}
		v, err, _ := c.group.Do(uri, func() (any, error) { return c.loadFromMount(uri, m) })
		if err != nil {
			return nil, err
		}
		return v.(*Descriptor), nil
	}
	return nil, fmt.Errorf("%w: %s", dm.ErrUnknownSchema, uri)
}

func (c *Catalog) loadFromMount(uri string, m mount) (*Descriptor, error) {
	c.mu.RLock()
	d, ok := c.docs[uri]
	c.mu.RUnlock()
	if ok {
		return d, nil
	}
	name := strings.TrimPrefix(uri, m.prefix)
	var data []byte
	var err error
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		data, err = fs.ReadFile(m.fsys, path.Join(m.dir, name+ext))
		if err == nil {
			if err := c.AddDocument(name+ext, data); err != nil {
				return nil, err
			}
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s", dm.ErrUnknownSchema, uri)
	}
	c.mu.RLock()
	d, ok = c.docs[uri]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s (document id mismatch)", dm.ErrUnknownSchema, uri)
	}
	return d, nil
}

// URIs returns the URIs of loaded descriptors in sorted order.
func (c *Catalog) URIs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.docs))
	for u := range c.docs {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Checker returns a Checker that resolves references through this catalog.
func (c *Catalog) Checker() Checker {
	return Checker{Lookup: c.Lookup}
}
