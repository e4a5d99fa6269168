package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dm "github.com/reoring/datamodels"
	"github.com/reoring/datamodels/ndarray"
	"github.com/reoring/datamodels/registry"
	"github.com/reoring/datamodels/schema"
	"github.com/reoring/datamodels/stnode"
	"github.com/reoring/datamodels/timeval"
)

func TestInit_RegistryComplete(t *testing.T) {
	Init()
	Init()
	reg := registry.Default()
	require.True(t, reg.Sealed())

	m, err := Manifest()
	require.NoError(t, err)
	require.NoError(t, reg.Verify(m.KnownURIs()))

	for _, e := range m.Tags {
		ent, ok := reg.ModelByTag(e.Tag)
		require.True(t, ok, e.Tag)
		assert.Contains(t, ent.SchemaURIs(), e.Schema)
	}
	_, ok := reg.OpaqueByTag(ndarray.Tag)
	assert.True(t, ok)
	_, ok = reg.OpaqueByTag(timeval.Tag)
	assert.True(t, ok)

	assert.True(t, reg.IsDataModel(SchemaBase+"wfi_image-1.0.0"))
	assert.True(t, reg.IsReferenceModel(SchemaBase+"flat_ref-1.0.0"))
	assert.False(t, reg.IsDataModel(SchemaBase+"exposure-1.1.0"))
}

func TestLoad_SealedRegistryRejects(t *testing.T) {
	reg := registry.New()
	require.NoError(t, Load(reg))
	reg.Seal()

	err := Load(reg)
	var sre *dm.SchemaRegistrationError
	require.True(t, errors.As(err, &sre), "got %v", err)
	assert.ErrorIs(t, err, dm.ErrSealed)
}

func TestLoad_IncompleteRegistry(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(WfiImage))
	m, err := Manifest()
	require.NoError(t, err)

	err = reg.Verify(m.KnownURIs())
	var ce *registry.CompletenessError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Contains(t, ce.Missing, SchemaBase+"exposure-1.0.0")
	assert.Contains(t, ce.Missing, ndarray.Tag)
	assert.Empty(t, ce.Unknown)
}

func TestWfiImage_Defaults(t *testing.T) {
	Init()
	img, err := stnode.NewObject(WfiImage, nil)
	require.NoError(t, err)
	assert.Equal(t, TagBase+"wfi_image-1.0.0", img.Tag())

	origin, err := stnode.GetAs[string](img, "meta.origin")
	require.NoError(t, err)
	assert.Equal(t, "STSCI", origin)

	telescope, err := stnode.GetAs[string](img, "meta.telescope")
	require.NoError(t, err)
	assert.Equal(t, "ROMAN", telescope)

	filename, err := stnode.GetAs[string](img, "meta.filename")
	require.NoError(t, err)
	assert.Equal(t, stnode.NoStr, filename)

	n, err := stnode.GetAs[int](img, "meta.exposure.nresultants")
	require.NoError(t, err)
	assert.Equal(t, stnode.NoNum, n)

	exp, err := stnode.GetAs[*stnode.Object](img, "meta.exposure")
	require.NoError(t, err)
	assert.Equal(t, TagBase+"exposure-1.1.0", exp.Tag())

	start, err := stnode.GetAs[timeval.Time](img, "meta.exposure.start_time")
	require.NoError(t, err)
	assert.True(t, start.Equal(timeval.Default))

	date, err := stnode.GetAs[timeval.Time](img, "meta.file_date")
	require.NoError(t, err)
	assert.True(t, date.Equal(timeval.Default))

	name, err := stnode.GetAs[string](img, "meta.instrument.name")
	require.NoError(t, err)
	assert.Equal(t, "WFI", name)

	data, err := stnode.GetAs[*ndarray.Array](img, "data")
	require.NoError(t, err)
	assert.Equal(t, "float32", data.DType)
	assert.Equal(t, 2, data.NDim())
	dq, err := stnode.GetAs[*ndarray.Array](img, "dq")
	require.NoError(t, err)
	assert.Equal(t, "uint32", dq.DType)

	again, err := img.Attr("meta.exposure")
	require.NoError(t, err)
	assert.Same(t, exp, again)
}

func newImage(t *testing.T) *stnode.Object {
	t.Helper()
	Init()
	img, err := stnode.NewObject(WfiImage, nil)
	require.NoError(t, err)
	start := timeval.Of(time.Date(2027, 3, 4, 5, 6, 7, 0, time.UTC))
	err = img.WithPausedValidation(func() error {
		return errors.Join(
			img.SetAttr("meta.filename", "r0000101001001001001_01101_0001_wfi01_cal.asdf"),
			img.SetAttr("meta.model_type", "WfiImage"),
			img.SetAttr("meta.exposure.nresultants", 6),
			img.SetAttr("meta.exposure.start_time", start),
			img.SetAttr("meta.instrument.detector", "WFI01"),
			img.Set("data", ndarray.New("float32", 4, 4)),
			img.Set("dq", ndarray.New("uint32", 4, 4)),
			img.Set("err", ndarray.New("float32", 4, 4)),
		)
	})
	require.NoError(t, err)
	return img
}

func TestWfiImage_RoundTrip(t *testing.T) {
	img := newImage(t)
	out, err := Engine().Marshal(img)
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "!<"+TagBase+"wfi_image-1.0.0>")
	assert.Contains(t, text, "!<"+TagBase+"exposure-1.1.0>")
	assert.Contains(t, text, "!<"+ndarray.Tag+">")
	assert.Contains(t, text, "!<"+timeval.Tag+">")
	assert.Contains(t, text, "2027-03-04T05:06:07Z")

	back, err := Engine().Unmarshal(out)
	require.NoError(t, err)
	got, ok := back.(*stnode.Object)
	require.True(t, ok, "got %T", back)
	assert.Same(t, WfiImage, got.Class())
	assert.True(t, img.Equal(got))

	origin, err := stnode.GetAs[string](got, "meta.origin")
	require.NoError(t, err)
	assert.Equal(t, "STSCI", origin)
}

func TestWfiImage_LazyRead(t *testing.T) {
	out, err := Engine().Marshal(newImage(t))
	require.NoError(t, err)

	back, err := LazyEngine().Unmarshal(out)
	require.NoError(t, err)
	img := back.(*stnode.Object)
	n, err := stnode.GetAs[int](img, "meta.exposure.nresultants")
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestEngine_UnknownTag(t *testing.T) {
	_, err := Engine().Unmarshal([]byte("--- !<" + TagBase + "wfi_spectrum-1.0.0>\nmeta: {}\n"))
	var ute *dm.UnresolvedTagError
	require.True(t, errors.As(err, &ute), "got %v", err)
	assert.Equal(t, TagBase+"wfi_spectrum-1.0.0", ute.Tag)
}

func TestWfiImage_ArrayShapesAgree(t *testing.T) {
	Init()
	img, err := stnode.NewObject(WfiImage, nil)
	require.NoError(t, err)
	require.NoError(t, img.Set("data", ndarray.New("float32", 4, 4)))
	require.NoError(t, img.Set("dq", ndarray.New("uint32", 2, 2)))

	ve, ok := dm.AsValidationError(img.Validate())
	require.True(t, ok)
	assert.Equal(t, []string{"dq"}, ve.Fields())
	assert.Equal(t, "same_shape", ve.Issues[0].Rule)

	err = img.Set("dq", ndarray.New("float32", 4, 4))
	ve, ok = dm.AsValidationError(err)
	require.True(t, ok, "datatype is checked on assignment")
	assert.Equal(t, dm.CodeInvalidType, ve.Issues[0].Code)
}

func TestFlatRef_AuthorRequiredUnlessDummy(t *testing.T) {
	Init()
	ref, err := stnode.NewObject(FlatRef, nil)
	require.NoError(t, err)

	require.NoError(t, ref.SetAttr("meta.pedigree", "DUMMY"))
	require.NoError(t, ref.Validate())

	require.NoError(t, ref.SetAttr("meta.pedigree", "GROUND"))
	ve, ok := dm.AsValidationError(ref.Validate())
	require.True(t, ok)
	assert.Equal(t, []string{"meta.author"}, ve.Fields())

	require.NoError(t, ref.SetAttr("meta.author", "WFI team"))
	require.NoError(t, ref.Validate())

	reftype, err := stnode.GetAs[string](ref, "meta.reftype")
	require.NoError(t, err)
	assert.Equal(t, "FLAT", reftype)
}

func TestExposure_TagFollowsFields(t *testing.T) {
	Init()
	exp, err := stnode.NewObject(Exposure, map[string]any{"nresultants": 3}, stnode.Tagged(TagBase+"exposure-1.0.0"))
	require.NoError(t, err)

	out, err := Engine().Marshal(exp)
	require.NoError(t, err)
	assert.Contains(t, string(out), "!<"+TagBase+"exposure-1.0.0>")

	require.NoError(t, exp.Set("truncated", true))
	require.NoError(t, exp.Set("ma_table_name", "C2A_T0"))
	out, err = Engine().Marshal(exp)
	require.NoError(t, err)
	assert.Contains(t, string(out), "!<"+TagBase+"exposure-1.1.0>")

	back, err := Engine().Unmarshal(out)
	require.NoError(t, err)
	assert.Equal(t, TagBase+"exposure-1.1.0", back.(*stnode.Object).Tag())
}

func TestExposure_TruncatedNeedsTable(t *testing.T) {
	Init()
	exp, err := stnode.NewObject(Exposure, nil)
	require.NoError(t, err)
	require.NoError(t, exp.Set("truncated", true))
	ve, ok := dm.AsValidationError(exp.Validate())
	require.True(t, ok)
	assert.Equal(t, []string{"ma_table_name"}, ve.Fields())
}

func TestCatalog_JSONSchemaExport(t *testing.T) {
	d, err := Catalog.Lookup(SchemaBase + "exposure-1.1.0")
	require.NoError(t, err)

	s := d.JSONSchema()
	assert.Equal(t, SchemaBase+"exposure-1.1.0", s.ID)
	assert.Equal(t, "object", s.Type)
	assert.Equal(t, []string{"type", "start_time", "nresultants"}, s.Required)
	require.Contains(t, s.Properties, "ma_table_name")
	require.NotNil(t, s.Properties["ma_table_name"].MaxLength)
	assert.Equal(t, 64, *s.Properties["ma_table_name"].MaxLength)
	assert.Equal(t, "tag:stsci.edu:asdf/time/time-1.*", s.Properties["start_time"].Tag)

	b, err := d.MarshalJSONSchema()
	require.NoError(t, err)
	assert.Contains(t, string(b), `"$id": "`+SchemaBase+`exposure-1.1.0"`)
}

func TestDefaultsOnly_RoundTrip(t *testing.T) {
	Init()
	for _, cls := range []*stnode.Class{WfiImage, FlatRef} {
		t.Run(cls.Name(), func(t *testing.T) {
			obj, err := stnode.NewObject(cls, nil)
			require.NoError(t, err)
			require.NoError(t, obj.Flush(stnode.FlushRequired, true))
			require.NoError(t, obj.Validate(), "placeholders satisfy the schema")

			out, err := Engine().Marshal(obj)
			require.NoError(t, err)
			back, err := Engine().Unmarshal(out)
			require.NoError(t, err)
			got, ok := back.(*stnode.Object)
			require.True(t, ok, "got %T", back)
			assert.True(t, obj.Equal(got))
		})
	}

	img, err := stnode.NewObject(WfiImage, nil)
	require.NoError(t, err)
	require.NoError(t, img.Flush(stnode.FlushRequired, true))
	out, err := Engine().Marshal(img)
	require.NoError(t, err)
	back, err := Engine().Unmarshal(out)
	require.NoError(t, err)
	n, err := stnode.GetAs[int](back.(*stnode.Object), "meta.exposure.nresultants")
	require.NoError(t, err)
	assert.Equal(t, stnode.NoNum, n)
	detector, err := stnode.GetAs[string](back.(*stnode.Object), "meta.instrument.detector")
	require.NoError(t, err)
	assert.Equal(t, stnode.NoStr, detector)
}

func TestRegister_IncompleteClassIsRegistrationError(t *testing.T) {
	t.Run("tagged without schema", func(t *testing.T) {
		untitled := stnode.NewClass("Untitled", schema.KindObject,
			stnode.WithCatalog(Catalog),
			stnode.WithTag(TagBase+"untitled-1.0.0", SchemaBase+"untitled-1.0.0"))
		err := registerClasses(registry.New(), []*stnode.Class{untitled})
		var sre *dm.SchemaRegistrationError
		require.True(t, errors.As(err, &sre), "got %v", err)
		assert.Equal(t, "Untitled", sre.Class)
	})

	t.Run("missing catalog", func(t *testing.T) {
		detached := stnode.NewClass("Detached", schema.KindObject, stnode.WithSchema(SchemaBase+"detached-1.0.0"))
		err := registerClasses(registry.New(), []*stnode.Class{detached})
		var sre *dm.SchemaRegistrationError
		require.True(t, errors.As(err, &sre), "got %v", err)
		var ce *dm.CapabilityError
		require.True(t, errors.As(err, &ce), "the capability gap stays reachable")
		assert.Equal(t, "schema catalog", ce.Missing)
	})
}
