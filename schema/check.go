package schema

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"unicode/utf8"

	dm "github.com/reoring/datamodels"
	"github.com/reoring/datamodels/i18n"
)

// Tagged is implemented by values serialized under their own tag (tagged
// nodes, time and array values).
type Tagged interface {
	Tag() string
}

// Valuer is implemented by scalar wrappers; checks apply to the wrapped value.
type Valuer interface {
	ScalarValue() any
}

// Composite is implemented by object and list nodes. Their contents are
// validated by the nodes themselves; a field only checks the kind.
type Composite interface {
	SchemaKind() Kind
}

// Shaped is implemented by array values constrained by datatype and ndim.
type Shaped interface {
	DataType() string
	NDim() int
}

// Checker validates values against field constraints.
type Checker struct {
	// Lookup resolves Ref fields holding raw values; nil skips those checks.
	Lookup func(uri string) (*Descriptor, error)
}

// Check validates v against f. Issue paths are relative to the field.
func (c Checker) Check(f *Field, v any) dm.Issues {
	if f == nil {
		return nil
	}
	if f.Tag != "" {
		return c.checkTagged(f, v)
	}
	if val, ok := v.(Valuer); ok {
		v = val.ScalarValue()
	}
	if comp, ok := v.(Composite); ok {
		return checkCompositeKind(f, comp.SchemaKind(), v)
	}
	var iss dm.Issues
	if it, ok := checkType(f.Type, v); !ok {
		return dm.AppendIssues(iss, it)
	}
	if len(f.Enum) > 0 && !inEnum(f.Enum, v) {
		iss = dm.AppendIssues(iss, dm.Issue{
			Code:    dm.CodeInvalidEnum,
			Message: i18n.T(dm.CodeInvalidEnum, nil),
			Value:   v,
			Params:  map[string]any{"enum": f.Enum},
		})
	}
	iss = append(iss, checkBounds(f, v)...)
	iss = append(iss, c.checkContents(f, v)...)
	return iss
}

func (c Checker) checkTagged(f *Field, v any) dm.Issues {
	t, ok := v.(Tagged)
	if !ok || t.Tag() == "" {
		return dm.Issues{{Code: dm.CodeInvalidTag, Message: i18n.T(dm.CodeInvalidTag, map[string]string{"expected": f.Tag}), Value: v}}
	}
	if !MatchTag(f.Tag, t.Tag()) {
		return dm.Issues{{
			Code:    dm.CodeInvalidTag,
			Message: i18n.T(dm.CodeInvalidTag, map[string]string{"expected": f.Tag, "got": t.Tag()}),
			Value:   v,
		}}
	}
	sh, ok := v.(Shaped)
	if !ok {
		return nil
	}
	var iss dm.Issues
	if f.DataType != "" && sh.DataType() != f.DataType {
		iss = dm.AppendIssues(iss, dm.Issue{
			Code:    dm.CodeInvalidType,
			Message: i18n.T(dm.CodeInvalidType, map[string]string{"datatype": f.DataType, "got": sh.DataType()}),
			Value:   sh.DataType(),
		})
	}
	if f.NDim > 0 && sh.NDim() != f.NDim {
		iss = dm.AppendIssues(iss, dm.Issue{
			Code:    dm.CodeInvalidType,
			Message: i18n.T(dm.CodeInvalidType, map[string]string{"ndim": strconv.Itoa(f.NDim), "got": strconv.Itoa(sh.NDim())}),
			Value:   sh.NDim(),
		})
	}
	return iss
}

func checkCompositeKind(f *Field, k Kind, v any) dm.Issues {
	want := f.Type
	if want == "" && (f.Ref != "" || f.Object != nil) {
		want = TypeObject
	}
	switch {
	case want == "":
		return nil
	case want == TypeObject && k == KindObject:
		return nil
	case want == TypeArray && k == KindList:
		return nil
	}
	return dm.Issues{{Code: dm.CodeInvalidType, Message: i18n.T(dm.CodeInvalidType, map[string]string{"expected": want}), Value: v}}
}

func (c Checker) checkContents(f *Field, v any) dm.Issues {
	switch t := v.(type) {
	case map[string]any:
		shape := f.Object
		if shape == nil && f.Ref != "" && c.Lookup != nil {
			d, err := c.Lookup(f.Ref)
			if err != nil {
				return dm.Issues{{Code: dm.CodeParseError, Message: err.Error()}}
			}
			if d.Root != nil {
				shape = d.Root.Object
			}
		}
		if shape == nil {
			return nil
		}
		return c.CheckShape(shape, t)
	case []any:
		if f.Items == nil {
			return nil
		}
		var iss dm.Issues
		for i, item := range t {
			iss = append(iss, c.Check(f.Items, item).Rebase(strconv.Itoa(i))...)
		}
		return iss
	}
	return nil
}

// CheckShape validates a raw mapping against an object shape, reporting
// missing required properties.
func (c Checker) CheckShape(s *Shape, m map[string]any) dm.Issues {
	var iss dm.Issues
	for _, r := range s.Required {
		if _, ok := m[r]; !ok {
			iss = dm.AppendIssues(iss, dm.Issue{Path: r, Code: dm.CodeRequired, Message: i18n.T(dm.CodeRequired, nil)})
		}
	}
	for _, p := range s.Properties {
		if v, ok := m[p.Name]; ok {
			iss = append(iss, c.Check(p, v).Rebase(p.Name)...)
		}
	}
	return iss
}

func checkType(typ string, v any) (dm.Issue, bool) {
	ok := true
	switch typ {
	case "":
		return dm.Issue{}, true
	case TypeString:
		_, ok = v.(string)
	case TypeBoolean:
		_, ok = v.(bool)
	case TypeInteger:
		ok = IsInteger(v)
	case TypeNumber:
		_, ok = ToFloat(v)
	case TypeObject:
		_, ok = v.(map[string]any)
	case TypeArray:
		_, ok = v.([]any)
	}
	if ok {
		return dm.Issue{}, true
	}
	return dm.Issue{
		Code:    dm.CodeInvalidType,
		Message: i18n.T(dm.CodeInvalidType, map[string]string{"expected": typ, "got": fmt.Sprintf("%T", v)}),
		Value:   v,
	}, false
}

// Placeholders stored for required values not yet known. They satisfy the
// type of their field but are exempt from bounds, length and pattern checks.
const (
	NoStr = "?"
	NoNum = -999999
)

// IsPlaceholder reports whether v is NoStr or a number equal to NoNum.
func IsPlaceholder(v any) bool {
	if s, ok := v.(string); ok {
		return s == NoStr
	}
	n, ok := ToFloat(v)
	return ok && n == NoNum
}

func checkBounds(f *Field, v any) dm.Issues {
	if IsPlaceholder(v) {
		return nil
	}
	var iss dm.Issues
	if n, ok := ToFloat(v); ok {
		if f.Minimum != nil && n < *f.Minimum {
			iss = dm.AppendIssues(iss, dm.Issue{Code: dm.CodeTooSmall, Message: i18n.T(dm.CodeTooSmall, nil), Value: v, Params: map[string]any{"min": *f.Minimum}})
		}
		if f.Maximum != nil && n > *f.Maximum {
			iss = dm.AppendIssues(iss, dm.Issue{Code: dm.CodeTooBig, Message: i18n.T(dm.CodeTooBig, nil), Value: v, Params: map[string]any{"max": *f.Maximum}})
		}
	}
	if s, ok := v.(string); ok {
		n := utf8.RuneCountInString(s)
		if f.MinLength != nil && n < *f.MinLength {
			iss = dm.AppendIssues(iss, dm.Issue{Code: dm.CodeTooShort, Message: i18n.T(dm.CodeTooShort, nil), Value: v, Params: map[string]any{"minLength": *f.MinLength}})
		}
		if f.MaxLength != nil && n > *f.MaxLength {
			iss = dm.AppendIssues(iss, dm.Issue{Code: dm.CodeTooLong, Message: i18n.T(dm.CodeTooLong, nil), Value: v, Params: map[string]any{"maxLength": *f.MaxLength}})
		}
		if f.pattern != nil && !f.pattern.MatchString(s) {
			iss = dm.AppendIssues(iss, dm.Issue{Code: dm.CodePattern, Message: i18n.T(dm.CodePattern, nil), Value: v, Params: map[string]any{"pattern": f.Pattern}})
		}
	}
	return iss
}

func inEnum(enum []any, v any) bool {
	for _, e := range enum {
		if EqualScalar(e, v) {
			return true
		}
	}
	return false
}

// EqualScalar compares scalars, treating numbers of different Go types as
// equal when their values are.
func EqualScalar(a, b any) bool {
	if fa, ok := ToFloat(a); ok {
		if fb, ok := ToFloat(b); ok {
			return fa == fb
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// ToFloat converts any Go numeric value to float64. Booleans are not numbers.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// IsInteger reports whether v is an integer type or an integral float.
func IsInteger(v any) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return !math.IsInf(n, 0) && n == math.Trunc(n)
	case float32:
		return float64(n) == math.Trunc(float64(n))
	}
	return false
}
