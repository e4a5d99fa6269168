package converter

import (
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dm "github.com/reoring/datamodels"
	"github.com/reoring/datamodels/asdf"
	"github.com/reoring/datamodels/metrics"
	"github.com/reoring/datamodels/registry"
	"github.com/reoring/datamodels/schema"
	"github.com/reoring/datamodels/stnode"
	"github.com/reoring/datamodels/timeval"
)

const testSchemas = `
id: asdf://test/schemas/exposure_type-1.0.0
type: string
enum: [WFI_IMAGE, WFI_FLAT]
---
id: asdf://test/schemas/file_date-1.0.0
tag: tag:stsci.edu:asdf/time/time-1.*
---
id: asdf://test/schemas/exposure-1.0.0
type: object
properties:
  type:
    tag: asdf://test/tags/exposure_type-1.0.0
  nresultants:
    type: integer
    minimum: 1
required: [type, nresultants]
---
id: asdf://test/schemas/exposure-1.1.0
type: object
properties:
  type:
    tag: asdf://test/tags/exposure_type-1.0.0
  nresultants:
    type: integer
    minimum: 1
  ma_table_name:
    type: string
required: [type, nresultants]
---
id: asdf://test/schemas/meta-1.0.0
type: object
properties:
  filename:
    type: string
  file_date:
    tag: asdf://test/tags/file_date-1.0.0
  exposure:
    tag: asdf://test/tags/exposure-1.*
required: [filename, file_date, exposure]
---
id: asdf://test/schemas/cal_logs-1.0.0
type: array
items:
  type: string
---
id: asdf://test/schemas/image-1.0.0
type: object
properties:
  meta:
    $ref: asdf://test/schemas/meta-1.0.0
  cal_logs:
    tag: asdf://test/tags/cal_logs-1.0.0
required: [meta]
`

const (
	exposureTypeTag = "asdf://test/tags/exposure_type-1.0.0"
	exposureTag10   = "asdf://test/tags/exposure-1.0.0"
	exposureTag11   = "asdf://test/tags/exposure-1.1.0"
	imageTag        = "asdf://test/tags/image-1.0.0"
)

type fixture struct {
	reg      *registry.Registry
	conv     *NodeConverter
	exposure *stnode.Class
	meta     *stnode.Class
	calLogs  *stnode.Class
	image    *stnode.Class
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Cleanup(dm.WithConfig(dm.DefaultConfig()))

	cat := schema.NewCatalog()
	require.NoError(t, cat.AddDocument("schemas.yaml", []byte(testSchemas)))
	reg := registry.New(registry.WithMetrics(metrics.New(prometheus.NewRegistry())))
	opts := func(more ...stnode.ClassOption) []stnode.ClassOption {
		return append([]stnode.ClassOption{stnode.WithCatalog(cat), stnode.WithRegistry(reg)}, more...)
	}
	s := func(name string) string { return "asdf://test/schemas/" + name }
	tg := func(name string) string { return "asdf://test/tags/" + name }

	f := &fixture{reg: reg}
	exposureType := stnode.NewClass("ExposureType", schema.KindScalar, opts(
		stnode.WithSchema(s("exposure_type-1.0.0")),
		stnode.WithTag(tg("exposure_type-1.0.0"), s("exposure_type-1.0.0")),
	)...)
	fileDate := stnode.NewClass("FileDate", schema.KindScalar, opts(
		stnode.WithSchema(s("file_date-1.0.0")),
		stnode.WithTag(tg("file_date-1.0.0"), s("file_date-1.0.0")),
		stnode.WithScalarType(timeval.ScalarType),
		stnode.WithZero(func() any { return timeval.Of(timeval.Default) }),
	)...)
	f.exposure = stnode.NewClass("Exposure", schema.KindObject, opts(
		stnode.WithSchema(s("exposure-1.0.0"), s("exposure-1.1.0")),
		stnode.WithTag(exposureTag10, s("exposure-1.0.0")),
		stnode.WithTag(exposureTag11, s("exposure-1.1.0")),
		stnode.WithTagSelector(func(n stnode.Node) string {
			if o, ok := n.(*stnode.Object); ok && o.Has("ma_table_name") {
				return exposureTag11
			}
			return ""
		}),
	)...)
	f.meta = stnode.NewClass("Meta", schema.KindObject, opts(stnode.WithSchema(s("meta-1.0.0")))...)
	f.calLogs = stnode.NewClass("CalLogs", schema.KindList, opts(
		stnode.WithSchema(s("cal_logs-1.0.0")),
		stnode.WithTag(tg("cal_logs-1.0.0"), s("cal_logs-1.0.0")),
	)...)
	f.image = stnode.NewClass("Image", schema.KindObject, opts(
		stnode.WithRole(registry.RoleDataModel),
		stnode.WithSchema(s("image-1.0.0")),
		stnode.WithTag(imageTag, s("image-1.0.0")),
	)...)
	reg.MustRegister(exposureType, fileDate, f.exposure, f.meta, f.calLogs, f.image, timeval.Type{})
	reg.Seal()
	f.conv = NewNodeConverter(reg)
	return f
}

func (f *fixture) engine(t *testing.T, opts ...asdf.Option) *asdf.Engine {
	t.Helper()
	e, err := asdf.NewEngine(append([]asdf.Option{asdf.WithConverters(f.conv, timeval.Converter{})}, opts...)...)
	require.NoError(t, err)
	return e
}

func (f *fixture) newImage(t *testing.T) *stnode.Object {
	t.Helper()
	img, err := stnode.NewObject(f.image, nil)
	require.NoError(t, err)
	require.NoError(t, img.SetAttr("meta.filename", "r0001_cal.asdf"))
	require.NoError(t, img.SetAttr("meta.exposure.nresultants", 6))
	return img
}

func TestNodeConverter_RoundTrip(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)
	img := f.newImage(t)
	logs, err := stnode.NewList(f.calLogs, nil)
	require.NoError(t, err)
	require.NoError(t, logs.Append("2024-03-01 flat applied"))
	require.NoError(t, img.Set("cal_logs", logs))

	out, err := e.Marshal(img)
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, "!<"+imageTag+">")
	assert.Contains(t, text, "!<"+exposureTag11+">", "wildcard fields default to the newest version")
	assert.Contains(t, text, "!<"+exposureTypeTag+"> WFI_IMAGE")
	assert.Contains(t, text, "!<asdf://test/tags/file_date-1.0.0>")
	assert.Contains(t, text, "2020-01-01T00:00:00Z")

	back, err := e.Unmarshal(out)
	require.NoError(t, err)
	got, ok := back.(*stnode.Object)
	require.True(t, ok, "got %T", back)
	assert.Same(t, f.image, got.Class())
	assert.True(t, stnode.Equal(img, got))

	date, err := got.Attr("meta.file_date")
	require.NoError(t, err)
	s, ok := date.(*stnode.Scalar)
	require.True(t, ok, "got %T", date)
	assert.True(t, timeval.Of(timeval.Default).Equal(s.Value()))

	n, err := stnode.GetAs[int](got, "meta.exposure.nresultants")
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestNodeConverter_UnknownTag(t *testing.T) {
	f := newFixture(t)
	_, err := f.conv.FromTree(asdf.NewMap(), "asdf://test/tags/missing-1.0.0")
	var ute *dm.UnresolvedTagError
	require.True(t, errors.As(err, &ute))
	assert.Equal(t, "asdf://test/tags/missing-1.0.0", ute.Tag)

	_, err = f.engine(t).Unmarshal([]byte("--- !<asdf://test/tags/missing-1.0.0>\na: 1\n"))
	require.True(t, errors.As(err, &ute))
}

func TestNodeConverter_EnumRead(t *testing.T) {
	t.Run("strict rejects out of range members", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.conv.FromTree("WFI_BOGUS", exposureTypeTag)
		ve, ok := dm.AsValidationError(err)
		require.True(t, ok, "got %v", err)
		assert.Equal(t, dm.CodeInvalidEnum, ve.Issues[0].Code)
	})
	t.Run("tolerant keeps the raw value", func(t *testing.T) {
		f := newFixture(t)
		cfg := dm.DefaultConfig()
		cfg.StrictValidation = false
		defer dm.WithConfig(cfg)()

		v, err := f.conv.FromTree("WFI_BOGUS", exposureTypeTag)
		require.NoError(t, err)
		assert.Equal(t, "WFI_BOGUS", v)

		doc := "--- !<" + exposureTag10 + ">\ntype: !<" + exposureTypeTag + "> WFI_BOGUS\nnresultants: 2\n"
		back, err := f.engine(t).Unmarshal([]byte(doc))
		require.NoError(t, err)
		raw, ok := back.(*stnode.Object).LookupAttr("type")
		require.True(t, ok)
		assert.Equal(t, "WFI_BOGUS", raw)
	})
}

func TestNodeConverter_ValidateOnRead(t *testing.T) {
	f := newFixture(t)
	doc := "--- !<" + exposureTag10 + ">\ntype: !<" + exposureTypeTag + "> WFI_FLAT\nnresultants: 0\n"

	_, err := f.engine(t).Unmarshal([]byte(doc))
	ve, ok := dm.AsValidationError(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, []string{"nresultants"}, ve.Fields())

	cfg := dm.DefaultConfig()
	cfg.ValidateOnRead = false
	defer dm.WithConfig(cfg)()
	back, err := f.engine(t).Unmarshal([]byte(doc))
	require.NoError(t, err)
	n, _ := back.(*stnode.Object).Lookup("nresultants")
	assert.Equal(t, 0, n)
}

func TestNodeConverter_LazyTree(t *testing.T) {
	f := newFixture(t)
	out, err := f.engine(t).Marshal(f.newImage(t))
	require.NoError(t, err)

	e := f.engine(t, asdf.WithLazyTree(true))
	back, err := e.Unmarshal(out)
	require.NoError(t, err)
	img := back.(*stnode.Object)

	metaVal, err := img.Get("meta")
	require.NoError(t, err)
	meta := metaVal.(*stnode.Object)
	stored, ok := meta.Lookup("exposure")
	require.True(t, ok)
	lazy, ok := stored.(*asdf.Lazy)
	require.True(t, ok, "nested tagged subtrees are deferred, got %T", stored)
	assert.False(t, lazy.Resolved())
	assert.Equal(t, exposureTag11, lazy.Tag())

	again, err := e.Marshal(img)
	require.NoError(t, err)
	assert.Contains(t, string(again), "!<"+exposureTag11+">")
	assert.False(t, lazy.Resolved(), "writing keeps unresolved subtrees as trees")

	exp, err := meta.Get("exposure")
	require.NoError(t, err)
	assert.True(t, lazy.Resolved())
	o, ok := exp.(*stnode.Object)
	require.True(t, ok)
	assert.Same(t, f.exposure, o.Class())
}

func TestNodeConverter_SelectTag(t *testing.T) {
	f := newFixture(t)
	tags := f.conv.Tags()

	old, err := stnode.NewObject(f.exposure, nil, stnode.Tagged(exposureTag10))
	require.NoError(t, err)
	assert.Equal(t, exposureTag10, f.conv.SelectTag(old, tags), "active tag")

	require.NoError(t, old.Set("ma_table_name", "C2A_T0"))
	assert.Equal(t, exposureTag11, f.conv.SelectTag(old, tags), "class selector wins")

	fresh, err := stnode.NewObject(f.exposure, nil)
	require.NoError(t, err)
	assert.Equal(t, exposureTag11, f.conv.SelectTag(fresh, tags))

	meta, err := stnode.NewObject(f.meta, nil)
	require.NoError(t, err)
	assert.Empty(t, f.conv.SelectTag(meta, tags), "schema-only classes are untagged")
	assert.Empty(t, f.conv.SelectTag(stnode.NewDict(nil), tags))
}

func TestNodeConverter_OlderVersionPreserved(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)
	exp, err := stnode.NewObject(f.exposure, map[string]any{"type": "WFI_FLAT", "nresultants": 3}, stnode.Tagged(exposureTag10))
	require.NoError(t, err)

	out, err := e.Marshal(exp)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimPrefix(string(out), "--- "), "!<"+exposureTag10+">"), string(out))

	back, err := e.Unmarshal(out)
	require.NoError(t, err)
	got := back.(*stnode.Object)
	assert.Equal(t, exposureTag10, got.Tag())
	assert.Equal(t, "asdf://test/schemas/exposure-1.0.0", got.SchemaURI())
	assert.True(t, exp.Equal(got))
}
