// Package models declares the Roman data model classes, their schemas and
// the manifest that enumerates every known URI.
package models

import (
	"embed"

	"github.com/reoring/datamodels/registry"
	"github.com/reoring/datamodels/rules"
	"github.com/reoring/datamodels/schema"
	"github.com/reoring/datamodels/stnode"
	"github.com/reoring/datamodels/timeval"
)

const (
	SchemaBase = "asdf://stsci.edu/datamodels/roman/schemas/"
	TagBase    = "asdf://stsci.edu/datamodels/roman/tags/"
)

//go:embed manifest.yaml schemas/*.yaml
var files embed.FS

// Catalog resolves model schemas from the embedded documents on first use.
var Catalog = newCatalog()

func newCatalog() *schema.Catalog {
	c := schema.NewCatalog()
	c.Mount(SchemaBase, files, "schemas")
	return c
}

func schemaURI(name string) string { return SchemaBase + name }
func tagURI(name string) string    { return TagBase + name }

// tagged declares one schema per version, each serialized under its own tag.
func tagged(versions ...string) []stnode.ClassOption {
	opts := []stnode.ClassOption{stnode.WithCatalog(Catalog)}
	for _, v := range versions {
		opts = append(opts, stnode.WithSchema(schemaURI(v)), stnode.WithTag(tagURI(v), schemaURI(v)))
	}
	return opts
}

func with(base []stnode.ClassOption, more ...stnode.ClassOption) []stnode.ClassOption {
	return append(base, more...)
}

// Tagged scalars.
var (
	ExposureType               = stnode.NewClass("ExposureType", schema.KindScalar, tagged("exposure_type-1.0.0")...)
	Origin                     = stnode.NewClass("Origin", schema.KindScalar, tagged("origin-1.0.0")...)
	Telescope                  = stnode.NewClass("Telescope", schema.KindScalar, tagged("telescope-1.0.0")...)
	CalibrationSoftwareVersion = stnode.NewClass("CalibrationSoftwareVersion", schema.KindScalar, tagged("calibration_software_version-1.0.0")...)
	FileDate                   = stnode.NewClass("FileDate", schema.KindScalar, with(tagged("file_date-1.0.0"),
		stnode.WithScalarType(timeval.ScalarType),
		stnode.WithZero(func() any { return timeval.Of(timeval.Default) }),
	)...)
)

// Exposure 1.1.0 adds multi-accumulation table fields. Nodes holding any of
// them are written under the 1.1.0 tag.
var Exposure = stnode.NewClass("Exposure", schema.KindObject, with(tagged("exposure-1.0.0", "exposure-1.1.0"),
	stnode.WithTagSelector(selectExposureTag),
	stnode.WithRules(rules.If("truncated", rules.Eq, true).Then(rules.Required("ma_table_name"))),
)...)

var exposure11Fields = []string{"truncated", "ma_table_name", "ma_table_number"}

func selectExposureTag(n stnode.Node) string {
	o, ok := n.(*stnode.Object)
	if !ok {
		return ""
	}
	for _, f := range exposure11Fields {
		if o.Has(f) {
			return tagURI("exposure-1.1.0")
		}
	}
	return ""
}

// Tagged objects and lists.
var (
	Program     = stnode.NewClass("Program", schema.KindObject, tagged("program-1.0.0")...)
	Observation = stnode.NewClass("Observation", schema.KindObject, tagged("observation-1.0.0")...)
	CalLogs     = stnode.NewClass("CalLogs", schema.KindList, tagged("cal_logs-1.0.0")...)
)

// Common is the untagged metadata block every product embeds by reference.
var Common = stnode.NewClass("Common", schema.KindObject,
	stnode.WithCatalog(Catalog),
	stnode.WithSchema(schemaURI("common-1.0.0")),
)

// Data and reference models.
var (
	WfiImage = stnode.NewClass("WfiImage", schema.KindObject, with(tagged("wfi_image-1.0.0"),
		stnode.WithRole(registry.RoleDataModel),
		stnode.WithRules(sameShape("data", "dq", "err")),
	)...)
	FlatRef = stnode.NewClass("FlatRef", schema.KindObject, with(tagged("flat_ref-1.0.0"),
		stnode.WithRole(registry.RoleReferenceModel),
		stnode.WithRules(
			sameShape("data", "dq", "err"),
			rules.If("meta.pedigree", rules.Ne, "DUMMY").Then(rules.Required("meta.author")),
		),
	)...)
)

// Classes lists every node class in registration order.
func Classes() []*stnode.Class {
	return []*stnode.Class{
		ExposureType, Origin, Telescope, CalibrationSoftwareVersion, FileDate,
		Exposure, Program, Observation, CalLogs, Common,
		WfiImage, FlatRef,
	}
}
