// Package registry maps schema URIs and tag URIs onto the classes and opaque
// types that implement them.
//
// A Registry is built once at load time and then sealed. Sealed registries
// are immutable and safe for lock-free concurrent lookup.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	dm "github.com/reoring/datamodels"
	"github.com/reoring/datamodels/metrics"
	"github.com/reoring/datamodels/schema"
)

// Role partitions registry entries.
type Role int

const (
	// RoleNode is a plain node class (object, list or scalar).
	RoleNode Role = iota
	// RoleDataModel is a top-level data product class.
	RoleDataModel
	// RoleReferenceModel is a top-level calibration reference class.
	RoleReferenceModel
	// RoleOpaque is a type owned by an external collaborator (time, ndarray).
	RoleOpaque
)

func (r Role) String() string {
	switch r {
	case RoleNode:
		return "node"
	case RoleDataModel:
		return "data_model"
	case RoleReferenceModel:
		return "reference_model"
	case RoleOpaque:
		return "opaque"
	default:
		return "unknown"
	}
}

// TagURI pairs a tag URI with the schema URI it serializes.
type TagURI struct {
	Tag    string
	Schema string
}

// Registrable is implemented by everything the registry can hold.
type Registrable interface {
	Name() string
	SchemaURIs() []string
	TagURIs() []TagURI
	Role() Role
}

// Map names used in metrics and CompletenessError.
const (
	MapSchemaModel  = "schema_model"
	MapSchemaOpaque = "schema_opaque"
	MapTagModel     = "tag_model"
	MapTagOpaque    = "tag_opaque"
)

type snapshot struct {
	schemaModel  map[string]Registrable
	schemaOpaque map[string]Registrable
	tagModel     map[string]Registrable
	tagOpaque    map[string]Registrable

	dataModels      map[string]Registrable
	referenceModels map[string]Registrable

	entries []Registrable
}

func newSnapshot() *snapshot {
	return &snapshot{
		schemaModel:     map[string]Registrable{},
		schemaOpaque:    map[string]Registrable{},
		tagModel:        map[string]Registrable{},
		tagOpaque:       map[string]Registrable{},
		dataModels:      map[string]Registrable{},
		referenceModels: map[string]Registrable{},
	}
}

// Registry holds the four URI maps and the role partition of model schemas.
type Registry struct {
	mu       sync.Mutex
	building *snapshot
	sealed   atomic.Pointer[snapshot]
	metrics  *metrics.Metrics
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics records map sizes on m instead of the process metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New returns an empty, unsealed registry.
func New(opts ...Option) *Registry {
	r := &Registry{building: newSnapshot(), metrics: metrics.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds e under all of its schema and tag URIs. Any ambiguity or gap
// returns a *datamodels.SchemaRegistrationError and leaves the registry unchanged.
func (r *Registry) Register(e Registrable) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.Load() != nil {
		return &dm.SchemaRegistrationError{Class: e.Name(), Reason: "registry is sealed", Err: dm.ErrSealed}
	}
	if err := r.checkLocked(e); err != nil {
		return err
	}
	s := r.building
	schemas, tags := s.schemaModel, s.tagModel
	if e.Role() == RoleOpaque {
		schemas, tags = s.schemaOpaque, s.tagOpaque
	}
	for _, u := range e.SchemaURIs() {
		schemas[u] = e
		switch e.Role() {
		case RoleDataModel:
			s.dataModels[u] = e
		case RoleReferenceModel:
			s.referenceModels[u] = e
		}
	}
	for _, t := range e.TagURIs() {
		tags[t.Tag] = e
	}
	s.entries = append(s.entries, e)
	r.recordLocked(s)
	return nil
}

func (r *Registry) checkLocked(e Registrable) error {
	fail := func(uri, reason string) error {
		return &dm.SchemaRegistrationError{URI: uri, Class: e.Name(), Reason: reason}
	}
	schemas := e.SchemaURIs()
	if len(schemas) == 0 {
		if len(e.TagURIs()) > 0 {
			return fail("", "tagged entry declares no schema URI")
		}
		return fail("", "entry declares no schema URI")
	}
	s := r.building
	declared := make(map[string]struct{}, len(schemas))
	for _, u := range schemas {
		if u == "" {
			return fail("", "empty schema URI")
		}
		if _, dup := declared[u]; dup {
			return fail(u, "schema URI listed twice")
		}
		declared[u] = struct{}{}
		if prev, ok := lookup(u, s.schemaModel, s.schemaOpaque); ok {
			return fail(u, "schema URI already registered by "+prev.Name())
		}
		if prev, ok := lookup(u, s.tagModel, s.tagOpaque); ok {
			return fail(u, "schema URI already registered as a tag by "+prev.Name())
		}
	}
	seenTags := map[string]struct{}{}
	for _, t := range e.TagURIs() {
		if t.Tag == "" {
			return fail(t.Schema, "empty tag URI")
		}
		if _, dup := seenTags[t.Tag]; dup {
			return fail(t.Tag, "tag URI listed twice")
		}
		seenTags[t.Tag] = struct{}{}
		if _, ok := declared[t.Schema]; !ok {
			return fail(t.Tag, fmt.Sprintf("tag maps to undeclared schema %q", t.Schema))
		}
		if _, ok := declared[t.Tag]; ok {
			return fail(t.Tag, "tag URI equals one of the entry's schema URIs")
		}
		if prev, ok := lookup(t.Tag, s.tagModel, s.tagOpaque); ok {
			return fail(t.Tag, "tag URI already registered by "+prev.Name())
		}
		if prev, ok := lookup(t.Tag, s.schemaModel, s.schemaOpaque); ok {
			return fail(t.Tag, "tag URI already registered as a schema by "+prev.Name())
		}
	}
	return nil
}

func lookup(uri string, maps ...map[string]Registrable) (Registrable, bool) {
	for _, m := range maps {
		if e, ok := m[uri]; ok {
			return e, true
		}
	}
	return nil, false
}

func (r *Registry) recordLocked(s *snapshot) {
	if r.metrics == nil {
		return
	}
	r.metrics.SetRegistryEntries(MapSchemaModel, len(s.schemaModel))
	r.metrics.SetRegistryEntries(MapSchemaOpaque, len(s.schemaOpaque))
	r.metrics.SetRegistryEntries(MapTagModel, len(s.tagModel))
	r.metrics.SetRegistryEntries(MapTagOpaque, len(s.tagOpaque))
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(es ...Registrable) {
	for _, e := range es {
		if err := r.Register(e); err != nil {
			panic(err)
		}
	}
}

// Seal freezes the registry. Later Register calls fail with ErrSealed.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed.Load() != nil {
		return
	}
	r.sealed.Store(r.building)
	dm.Logger().Debug("registry sealed", slog.Int("entries", len(r.building.entries)))
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool { return r.sealed.Load() != nil }

// read runs fn against the current maps: lock-free once sealed.
func (r *Registry) read(fn func(*snapshot)) {
	if s := r.sealed.Load(); s != nil {
		fn(s)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.building)
}

// LookupBySchema resolves a schema URI to a model class or opaque type.
// Matching is exact.
func (r *Registry) LookupBySchema(uri string) (e Registrable, ok bool) {
	r.read(func(s *snapshot) { e, ok = lookup(uri, s.schemaModel, s.schemaOpaque) })
	return
}

// LookupByTag resolves a tag URI to a model class or opaque type.
func (r *Registry) LookupByTag(uri string) (e Registrable, ok bool) {
	r.read(func(s *snapshot) { e, ok = lookup(uri, s.tagModel, s.tagOpaque) })
	return
}

// ModelBySchema resolves a schema URI to a model class only.
func (r *Registry) ModelBySchema(uri string) (e Registrable, ok bool) {
	r.read(func(s *snapshot) { e, ok = s.schemaModel[uri] })
	return
}

// ModelByTag resolves a tag URI to a model class only.
func (r *Registry) ModelByTag(uri string) (e Registrable, ok bool) {
	r.read(func(s *snapshot) { e, ok = s.tagModel[uri] })
	return
}

// OpaqueByTag resolves a tag URI to an opaque type only.
func (r *Registry) OpaqueByTag(uri string) (e Registrable, ok bool) {
	r.read(func(s *snapshot) { e, ok = s.tagOpaque[uri] })
	return
}

// IsDataModel reports whether schema URI belongs to a data model class.
func (r *Registry) IsDataModel(uri string) (ok bool) {
	r.read(func(s *snapshot) { _, ok = s.dataModels[uri] })
	return
}

// IsReferenceModel reports whether schema URI belongs to a reference model class.
func (r *Registry) IsReferenceModel(uri string) (ok bool) {
	r.read(func(s *snapshot) { _, ok = s.referenceModels[uri] })
	return
}

// Entries returns registered entries in registration order.
func (r *Registry) Entries() (out []Registrable) {
	r.read(func(s *snapshot) { out = append([]Registrable(nil), s.entries...) })
	return
}

// ModelTags returns every tag URI mapped to a model class, sorted.
func (r *Registry) ModelTags() (out []string) {
	r.read(func(s *snapshot) { out = keys(s.tagModel) })
	return
}

// SchemaURIs returns every registered schema URI (model and opaque), sorted.
func (r *Registry) SchemaURIs() (out []string) {
	r.read(func(s *snapshot) { out = append(keys(s.schemaModel), keys(s.schemaOpaque)...) })
	sort.Strings(out)
	return
}

// TagURIs returns every registered tag URI (model and opaque), sorted.
func (r *Registry) TagURIs() (out []string) {
	r.read(func(s *snapshot) { out = append(keys(s.tagModel), keys(s.tagOpaque)...) })
	sort.Strings(out)
	return
}

func keys(m map[string]Registrable) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CompletenessError lists the differences between the registry and the known
// URI enumeration.
type CompletenessError struct {
	// Missing are known URIs absent from both maps of their key space.
	Missing []string
	// Duplicated are URIs present in both the model and the opaque map.
	Duplicated []string
	// Unknown are registered URIs outside the known enumeration.
	Unknown []string
}

func (e *CompletenessError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Missing, ", "))
	}
	if len(e.Duplicated) > 0 {
		parts = append(parts, "duplicated: "+strings.Join(e.Duplicated, ", "))
	}
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown: "+strings.Join(e.Unknown, ", "))
	}
	return "registry incomplete: " + strings.Join(parts, "; ")
}

// Verify checks that every known schema URI appears in exactly one of the
// schema maps, every known tag URI in exactly one of the tag maps, and that
// nothing else is registered.
func (r *Registry) Verify(known schema.KnownURIs) error {
	ce := &CompletenessError{}
	r.read(func(s *snapshot) {
		verifySpace(ce, known.Schemas, s.schemaModel, s.schemaOpaque)
		verifySpace(ce, known.Tags, s.tagModel, s.tagOpaque)
	})
	if len(ce.Missing)+len(ce.Duplicated)+len(ce.Unknown) == 0 {
		return nil
	}
	sort.Strings(ce.Missing)
	sort.Strings(ce.Duplicated)
	sort.Strings(ce.Unknown)
	return ce
}

func verifySpace(ce *CompletenessError, known []string, model, opaque map[string]Registrable) {
	set := make(map[string]struct{}, len(known))
	for _, u := range known {
		set[u] = struct{}{}
		_, inModel := model[u]
		_, inOpaque := opaque[u]
		switch {
		case inModel && inOpaque:
			ce.Duplicated = append(ce.Duplicated, u)
		case !inModel && !inOpaque:
			ce.Missing = append(ce.Missing, u)
		}
	}
	for _, m := range []map[string]Registrable{model, opaque} {
		for u := range m {
			if _, ok := set[u]; !ok {
				ce.Unknown = append(ce.Unknown, u)
			}
		}
	}
}
