package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dm "github.com/reoring/datamodels"
	"github.com/reoring/datamodels/metrics"
	"github.com/reoring/datamodels/schema"
)

type entry struct {
	name    string
	schemas []string
	tags    []TagURI
	role    Role
}

func (e *entry) Name() string         { return e.name }
func (e *entry) SchemaURIs() []string { return e.schemas }
func (e *entry) TagURIs() []TagURI    { return e.tags }
func (e *entry) Role() Role           { return e.role }

func exposure() *entry {
	return &entry{
		name:    "Exposure",
		schemas: []string{"s:exposure-1.0.0", "s:exposure-1.1.0"},
		tags: []TagURI{
			{Tag: "t:exposure-1.0.0", Schema: "s:exposure-1.0.0"},
			{Tag: "t:exposure-1.1.0", Schema: "s:exposure-1.1.0"},
		},
	}
}

func TestRegister_Lookup(t *testing.T) {
	r := New(WithMetrics(metrics.New(prometheus.NewRegistry())))
	exp := exposure()
	arr := &entry{name: "ndarray", schemas: []string{"s:ndarray"}, tags: []TagURI{{Tag: "t:ndarray", Schema: "s:ndarray"}}, role: RoleOpaque}
	img := &entry{name: "WfiImage", schemas: []string{"s:wfi_image"}, tags: []TagURI{{Tag: "t:wfi_image", Schema: "s:wfi_image"}}, role: RoleDataModel}
	flat := &entry{name: "FlatRef", schemas: []string{"s:flat"}, tags: []TagURI{{Tag: "t:flat", Schema: "s:flat"}}, role: RoleReferenceModel}
	meta := &entry{name: "Meta", schemas: []string{"s:meta"}}
	r.MustRegister(exp, arr, img, flat, meta)

	got, ok := r.LookupByTag("t:exposure-1.1.0")
	require.True(t, ok)
	assert.Same(t, exp, got)
	got, ok = r.LookupBySchema("s:exposure-1.0.0")
	require.True(t, ok)
	assert.Same(t, exp, got)

	_, ok = r.ModelByTag("t:ndarray")
	assert.False(t, ok)
	got, ok = r.OpaqueByTag("t:ndarray")
	require.True(t, ok)
	assert.Same(t, arr, got)

	_, ok = r.LookupByTag("t:exposure-1.*")
	assert.False(t, ok, "lookup is exact match")
	_, ok = r.LookupByTag("s:meta")
	assert.False(t, ok, "key spaces are disjoint")

	assert.True(t, r.IsDataModel("s:wfi_image"))
	assert.False(t, r.IsReferenceModel("s:wfi_image"))
	assert.True(t, r.IsReferenceModel("s:flat"))
	assert.Equal(t, []string{"t:exposure-1.0.0", "t:exposure-1.1.0", "t:flat", "t:wfi_image"}, r.ModelTags())
	assert.Len(t, r.Entries(), 5)
}

func TestRegister_Rejects(t *testing.T) {
	cases := []struct {
		name string
		e    Registrable
	}{
		{"schema collision", &entry{name: "Other", schemas: []string{"s:exposure-1.0.0"}}},
		{"tag collision", &entry{name: "Other", schemas: []string{"s:other"}, tags: []TagURI{{Tag: "t:exposure-1.0.0", Schema: "s:other"}}}},
		{"opaque collides with model", &entry{name: "Opaque", schemas: []string{"s:exposure-1.1.0"}, role: RoleOpaque}},
		{"tag without schema", &entry{name: "Bare", tags: []TagURI{{Tag: "t:bare", Schema: "s:bare"}}}},
		{"no schema", &entry{name: "Empty"}},
		{"tag to undeclared schema", &entry{name: "Loose", schemas: []string{"s:loose"}, tags: []TagURI{{Tag: "t:loose", Schema: "s:elsewhere"}}}},
		{"tag reused as schema", &entry{name: "Cross", schemas: []string{"t:exposure-1.0.0"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := New(WithMetrics(metrics.New(prometheus.NewRegistry())))
			require.NoError(t, r.Register(exposure()))
			err := r.Register(tc.e)
			var re *dm.SchemaRegistrationError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tc.e.Name(), re.Class)
			assert.Len(t, r.Entries(), 1, "failed registration leaves registry unchanged")
		})
	}
}

func TestSeal(t *testing.T) {
	r := New(WithMetrics(metrics.New(prometheus.NewRegistry())))
	r.MustRegister(exposure())
	r.Seal()
	assert.True(t, r.Sealed())
	err := r.Register(&entry{name: "Late", schemas: []string{"s:late"}})
	assert.True(t, errors.Is(err, dm.ErrSealed))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := r.LookupByTag("t:exposure-1.0.0")
			assert.True(t, ok)
		}()
	}
	wg.Wait()
}

func TestVerify(t *testing.T) {
	r := New(WithMetrics(metrics.New(prometheus.NewRegistry())))
	r.MustRegister(exposure(), &entry{name: "extra", schemas: []string{"s:extra"}})

	known := schema.KnownURIs{
		Schemas: []string{"s:exposure-1.0.0", "s:exposure-1.1.0", "s:meta"},
		Tags:    []string{"t:exposure-1.0.0", "t:exposure-1.1.0"},
	}
	err := r.Verify(known)
	var ce *CompletenessError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, []string{"s:meta"}, ce.Missing)
	assert.Equal(t, []string{"s:extra"}, ce.Unknown)
	assert.Empty(t, ce.Duplicated)

	known.Schemas = []string{"s:exposure-1.0.0", "s:exposure-1.1.0", "s:extra"}
	assert.NoError(t, r.Verify(known))
}

func TestRegister_Metrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	r := New(WithMetrics(m))
	r.MustRegister(exposure())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RegistryEntries.WithLabelValues(MapTagModel)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RegistryEntries.WithLabelValues(MapTagOpaque)))
}

func TestInit_RunsOnce(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	calls := 0
	fill := func(r *Registry) error {
		calls++
		return r.Register(exposure())
	}
	require.NoError(t, Init(fill))
	require.NoError(t, Init(fill))
	assert.Equal(t, 1, calls)
	assert.True(t, Default().Sealed())

	Reset()
	assert.False(t, Default().Sealed())
	require.NoError(t, Init(fill))
	assert.Equal(t, 2, calls)
}

func TestInit_ErrorNotSealed(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	err := Init(func(r *Registry) error {
		return r.Register(&entry{name: "Empty"})
	})
	require.Error(t, err)
	assert.False(t, Default().Sealed())
	assert.Equal(t, err, Init(func(*Registry) error { return nil }))
}
