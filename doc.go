// Package datamodels provides a schema-governed, typed data model for
// hierarchical scientific metadata. Every data product is a tree of typed
// nodes (scalars, objects, lists) that map 1:1 to published schema documents
// identified by URIs.
//
// - Error model (Issues, ValidationError, SchemaRegistrationError,
// CapabilityError, UnresolvedTagError) and process configuration live here.
// - Schema descriptors and the schema catalog live in schema/.
// - The process-wide URI registry lives in registry/.
// - Node classes, default materialization, flush and validation pausing live in stnode/.
// - The tagged tree engine (YAML, plus a JSON rendition) lives in asdf/, the
// node converter in converter/.
// - Array and time adaptors live in ndarray/ and timeval/.
// - Cross-field rules live in rules/, the concrete Roman models in models/.
//
// Typical usage:
//
//	models.Init()
//	img, _ := stnode.NewObject(models.WfiImage, nil)
//	exp, _ := img.Attr("meta.exposure") // materialized on first access
//	err := img.WithPausedValidation(func() error {
//	    return errors.Join(
//	        img.SetAttr("meta.exposure.start_time", timeval.Of(t0)),
//	        img.SetAttr("meta.exposure.nresultants", 6),
//	    )
//	})
//	data, _ := models.Engine().Marshal(img)
package datamodels
