package stnode

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	dm "github.com/reoring/datamodels"
	"github.com/reoring/datamodels/metrics"
	"github.com/reoring/datamodels/registry"
	"github.com/reoring/datamodels/schema"
)

const fixtureSchemas = `
id: asdf://test/schemas/exposure_type-1.0.0
type: string
enum: [WFI_IMAGE, WFI_FLAT, WFI_DARK]
---
id: asdf://test/schemas/exposure-1.0.0
type: object
properties:
  type:
    tag: asdf://test/tags/exposure_type-1.0.0
  nresultants:
    type: integer
    minimum: 1
  ngroups:
    type: integer
  truncated:
    type: boolean
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
  ngroups:
    type: integer
  truncated:
    type: boolean
  ma_table_name:
    type: string
    maxLength: 16
required: [type, nresultants]
---
id: asdf://test/schemas/meta-1.0.0
type: object
properties:
  filename:
    type: string
  origin:
    type: string
    default: STSCI
  telescope:
    enum: [ROMAN]
  exposure:
    tag: asdf://test/tags/exposure-1.*
  notes:
    type: array
    items:
      type: string
  detector:
    type: object
    properties:
      name:
        type: string
    required: [name]
required: [filename, exposure]
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
  stamp:
    tag: asdf://test/tags/stamp-1.*
  scale:
    type: number
required: [meta]
`

type stampValue struct{ label string }

func (s stampValue) Tag() string { return "asdf://test/tags/stamp-1.0.0" }

type stampType struct{}

func (stampType) Name() string         { return "stamp" }
func (stampType) SchemaURIs() []string { return []string{"asdf://test/schemas/stamp-1.0.0"} }
func (stampType) TagURIs() []registry.TagURI {
	return []registry.TagURI{{Tag: "asdf://test/tags/stamp-1.0.0", Schema: "asdf://test/schemas/stamp-1.0.0"}}
}
func (stampType) Role() registry.Role              { return registry.RoleOpaque }
func (stampType) DefaultValue(f *schema.Field) any { return stampValue{label: "epoch"} }

type fixture struct {
	reg          *registry.Registry
	cat          *schema.Catalog
	exposureType *Class
	exposure     *Class
	meta         *Class
	calLogs      *Class
	image        *Class
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Cleanup(dm.WithConfig(dm.DefaultConfig()))

	cat := schema.NewCatalog()
	require.NoError(t, cat.AddDocument("fixture.yaml", []byte(fixtureSchemas)))
	reg := registry.New(registry.WithMetrics(metrics.New(prometheus.NewRegistry())))
	common := []ClassOption{WithCatalog(cat), WithRegistry(reg)}
	opts := func(more ...ClassOption) []ClassOption {
		return append(append([]ClassOption{}, common...), more...)
	}

	f := &fixture{reg: reg, cat: cat}
	f.exposureType = NewClass("ExposureType", schema.KindScalar, opts(
		WithSchema("asdf://test/schemas/exposure_type-1.0.0"),
		WithTag("asdf://test/tags/exposure_type-1.0.0", "asdf://test/schemas/exposure_type-1.0.0"),
	)...)
	f.exposure = NewClass("Exposure", schema.KindObject, opts(
		WithSchema("asdf://test/schemas/exposure-1.0.0", "asdf://test/schemas/exposure-1.1.0"),
		WithTag("asdf://test/tags/exposure-1.0.0", "asdf://test/schemas/exposure-1.0.0"),
		WithTag("asdf://test/tags/exposure-1.1.0", "asdf://test/schemas/exposure-1.1.0"),
		WithRules(func(o *Object) dm.Issues {
			n, ok1 := o.LookupAttr("nresultants")
			g, ok2 := o.LookupAttr("ngroups")
			if !ok1 || !ok2 {
				return nil
			}
			nf, _ := schema.ToFloat(n)
			gf, _ := schema.ToFloat(g)
			if gf < nf {
				return dm.Issues{{Path: "ngroups", Code: dm.CodeBusinessRule, Rule: "ngroups_ge_nresultants"}}
			}
			return nil
		}),
	)...)
	f.meta = NewClass("Meta", schema.KindObject, opts(WithSchema("asdf://test/schemas/meta-1.0.0"))...)
	f.calLogs = NewClass("CalLogs", schema.KindList, opts(
		WithSchema("asdf://test/schemas/cal_logs-1.0.0"),
		WithTag("asdf://test/tags/cal_logs-1.0.0", "asdf://test/schemas/cal_logs-1.0.0"),
	)...)
	f.image = NewClass("Image", schema.KindObject, opts(
		WithRole(registry.RoleDataModel),
		WithSchema("asdf://test/schemas/image-1.0.0"),
		WithTag("asdf://test/tags/image-1.0.0", "asdf://test/schemas/image-1.0.0"),
	)...)
	reg.MustRegister(f.exposureType, f.exposure, f.meta, f.calLogs, f.image, stampType{})
	reg.Seal()
	return f
}

func (f *fixture) newImage(t *testing.T) *Object {
	t.Helper()
	img, err := NewObject(f.image, nil)
	require.NoError(t, err)
	return img
}
