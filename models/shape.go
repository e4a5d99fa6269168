package models

import (
	"slices"

	dm "github.com/reoring/datamodels"
	"github.com/reoring/datamodels/ndarray"
	"github.com/reoring/datamodels/stnode"
)

// sameShape requires the stored arrays at paths to share one shape. Unset
// paths are skipped.
func sameShape(paths ...string) stnode.Rule {
	return func(o *stnode.Object) dm.Issues {
		var (
			iss     dm.Issues
			ref     []int
			refPath string
		)
		for _, p := range paths {
			v, ok := o.LookupAttr(p)
			if !ok {
				continue
			}
			a, ok := v.(*ndarray.Array)
			if !ok {
				continue
			}
			if refPath == "" {
				ref, refPath = a.Shape, p
				continue
			}
			if !slices.Equal(ref, a.Shape) {
				iss = append(iss, dm.Issue{
					Path:    p,
					Code:    dm.CodeBusinessRule,
					Message: "array shape differs from " + refPath,
					Value:   a.Shape,
					Params:  map[string]any{"expected": ref},
					Rule:    "same_shape",
				})
			}
		}
		return iss
	}
}
