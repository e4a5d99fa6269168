// Package ndarray holds the in-memory form of ASDF n-dimensional arrays and
// their block metadata converter. Pixel storage in binary blocks is owned by
// the host file layer; arrays read from a file keep their block source.
package ndarray

import (
	"fmt"
	"reflect"
	"slices"

	dm "github.com/reoring/datamodels"
	"github.com/reoring/datamodels/registry"
	"github.com/reoring/datamodels/schema"
)

const (
	Tag       = "tag:stsci.edu:asdf/core/ndarray-1.0.0"
	SchemaURI = "http://stsci.edu/schemas/asdf/core/ndarray-1.0.0"
)

// Byte orders.
const (
	Little = "little"
	Big    = "big"
)

// DefaultDType is used when a field does not constrain the datatype.
const DefaultDType = "float32"

// Array is an n-dimensional array. Source is the block index or external
// file name the data lives in; inline arrays carry Data instead.
type Array struct {
	DType     string
	Shape     []int
	ByteOrder string
	Source    any
	Data      []float64
}

// New returns a zero-filled inline array.
func New(dtype string, shape ...int) *Array {
	return &Array{DType: dtype, Shape: shape, ByteOrder: Little, Data: make([]float64, product(shape))}
}

func product(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func (a *Array) Tag() string      { return Tag }
func (a *Array) DataType() string { return a.DType }
func (a *Array) NDim() int        { return len(a.Shape) }
func (a *Array) Size() int        { return product(a.Shape) }

// At returns the element at the given index (row-major).
func (a *Array) At(idx ...int) (float64, error) {
	if len(idx) != len(a.Shape) {
		return 0, fmt.Errorf("ndarray: %d indices for %d dimensions", len(idx), len(a.Shape))
	}
	if a.Data == nil {
		return 0, fmt.Errorf("ndarray: data is in block %v", a.Source)
	}
	off := 0
	for i, x := range idx {
		if x < 0 || x >= a.Shape[i] {
			return 0, fmt.Errorf("ndarray: index %d out of range on axis %d", x, i)
		}
		off = off*a.Shape[i] + x
	}
	return a.Data[off], nil
}

// Equal compares metadata and inline data.
func (a *Array) Equal(other any) bool {
	b, ok := other.(*Array)
	if !ok {
		return false
	}
	return a.DType == b.DType && slices.Equal(a.Shape, b.Shape) && a.ByteOrder == b.ByteOrder &&
		reflect.DeepEqual(a.Source, b.Source) && slices.Equal(a.Data, b.Data)
}

// Type is the opaque registry entry for arrays.
type Type struct{}

func (Type) Name() string         { return "ndarray" }
func (Type) SchemaURIs() []string { return []string{SchemaURI} }
func (Type) Role() registry.Role  { return registry.RoleOpaque }

func (Type) TagURIs() []registry.TagURI {
	return []registry.TagURI{{Tag: Tag, Schema: SchemaURI}}
}

// DefaultValue returns an empty array of the field's datatype and ndim.
func (Type) DefaultValue(f *schema.Field) any {
	dtype := DefaultDType
	ndim := 0
	if f != nil {
		if f.DataType != "" {
			dtype = f.DataType
		}
		ndim = f.NDim
	}
	return New(dtype, make([]int, ndim)...)
}

// Converter writes arrays as block metadata mappings.
type Converter struct{}

func (Converter) Tags() []string                        { return []string{Tag} }
func (Converter) Types() []any                          { return []any{reflect.TypeOf(&Array{})} }
func (Converter) SelectTag(v any, tags []string) string { return Tag }
func (Converter) Lazy() bool                            { return false }

// ToTree returns {source|data, datatype, byteorder, shape}.
func (Converter) ToTree(v any, tag string) (any, error) {
	a, ok := v.(*Array)
	if !ok {
		return nil, fmt.Errorf("ndarray: cannot write %T", v)
	}
	m := map[string]any{
		"datatype":  a.DType,
		"byteorder": a.ByteOrder,
		"shape":     ints(a.Shape),
	}
	if a.Source != nil {
		m["source"] = a.Source
	} else {
		data := make([]any, len(a.Data))
		for i, x := range a.Data {
			data[i] = x
		}
		m["data"] = data
	}
	return m, nil
}

func ints(xs []int) []any {
	out := make([]any, len(xs))
	for i, x := range xs {
		out[i] = x
	}
	return out
}

// mapping is the read side of a tree mapping.
type mapping interface {
	Get(k string) (any, bool)
}

// FromTree reads block metadata.
func (Converter) FromTree(tree any, tag string) (any, error) {
	var get func(string) (any, bool)
	switch m := tree.(type) {
	case mapping:
		get = m.Get
	case map[string]any:
		get = func(k string) (any, bool) {
			v, ok := m[k]
			return v, ok
		}
	default:
		return nil, dm.Issues{{Code: dm.CodeInvalidType, Message: "ndarray must be a mapping", Value: tree}}
	}
	a := &Array{ByteOrder: Little}
	if v, ok := get("datatype"); ok {
		s, ok := v.(string)
		if !ok {
			return nil, dm.Issues{{Path: "datatype", Code: dm.CodeInvalidType, Message: "datatype must be a string", Value: v}}
		}
		a.DType = s
	}
	if v, ok := get("byteorder"); ok {
		if s, ok := v.(string); ok && (s == Little || s == Big) {
			a.ByteOrder = s
		} else {
			return nil, dm.Issues{{Path: "byteorder", Code: dm.CodeInvalidEnum, Message: "byteorder must be little or big", Value: v}}
		}
	}
	if v, ok := get("shape"); ok {
		arr, ok := v.([]any)
		if !ok {
			return nil, dm.Issues{{Path: "shape", Code: dm.CodeInvalidType, Message: "shape must be a list", Value: v}}
		}
		for i, x := range arr {
			if !schema.IsInteger(x) {
				return nil, dm.Issues{{Path: fmt.Sprintf("shape.%d", i), Code: dm.CodeInvalidType, Message: "shape entries must be integers", Value: x}}
			}
			n, _ := schema.ToFloat(x)
			a.Shape = append(a.Shape, int(n))
		}
	}
	if v, ok := get("source"); ok {
		a.Source = v
	}
	if v, ok := get("data"); ok {
		arr, ok := v.([]any)
		if !ok {
			return nil, dm.Issues{{Path: "data", Code: dm.CodeInvalidType, Message: "inline data must be a list", Value: v}}
		}
		a.Data = make([]float64, 0, len(arr))
		for i, x := range arr {
			n, ok := schema.ToFloat(x)
			if !ok {
				return nil, dm.Issues{{Path: fmt.Sprintf("data.%d", i), Code: dm.CodeInvalidType, Message: "inline data must be numeric", Value: x}}
			}
			a.Data = append(a.Data, n)
		}
	}
	if a.Source == nil && a.Data == nil {
		a.Data = []float64{}
	}
	return a, nil
}
