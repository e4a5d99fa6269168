// Package rules builds cross-field checks for node classes. Rules read stored
// values only; they never materialize defaults.
package rules

import (
	"fmt"
	"reflect"

	dm "github.com/reoring/datamodels"
	"github.com/reoring/datamodels/schema"
	"github.com/reoring/datamodels/stnode"
)

// Rule is a class rule.
type Rule = stnode.Rule

// Op defines simple comparison operators for If(...).Then(...)
type Op int

const (
	Eq Op = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

func (op Op) String() string {
	switch op {
	case Eq:
		return "=="
	case Ne:
		return "!="
	case Lt:
		return "<"
	case Le:
		return "<="
	case Gt:
		return ">"
	case Ge:
		return ">="
	}
	return "?"
}

// Conditional composes conditional execution of rules.
type Conditional struct {
	path string
	op   Op
	want any
	all  []Conditional // composite AND
	any  []Conditional // composite OR
}

// If builds a conditional that evaluates the value at a dotted path against
// want using op. An unset path never satisfies the condition.
func If(path string, op Op, want any) Conditional {
	return Conditional{path: path, op: op, want: want}
}

// IfAll builds a conditional that requires all conditions to hold.
func IfAll(conds ...Conditional) Conditional { return Conditional{all: conds} }

// IfAny builds a conditional that requires any condition to hold.
func IfAny(conds ...Conditional) Conditional { return Conditional{any: conds} }

// And combines the receiver with additional conditions using logical AND.
func (c Conditional) And(others ...Conditional) Conditional {
	return IfAll(append([]Conditional{c}, others...)...)
}

// Or combines the receiver with additional conditions using logical OR.
func (c Conditional) Or(others ...Conditional) Conditional {
	return IfAny(append([]Conditional{c}, others...)...)
}

// Then attaches rules to run when the condition is satisfied.
func (c Conditional) Then(rules ...Rule) Rule {
	return func(o *stnode.Object) dm.Issues {
		if !c.eval(o) {
			return nil
		}
		return And(rules...)(o)
	}
}

func (c Conditional) eval(o *stnode.Object) bool {
	if len(c.all) > 0 {
		for _, it := range c.all {
			if !it.eval(o) {
				return false
			}
		}
		return true
	}
	if len(c.any) > 0 {
		for _, it := range c.any {
			if it.eval(o) {
				return true
			}
		}
		return false
	}
	cur, ok := o.LookupAttr(c.path)
	if !ok {
		return false
	}
	return compare(cur, c.op, c.want)
}

// Required reports the path as missing when nothing is stored there.
func Required(path string) Rule {
	return func(o *stnode.Object) dm.Issues {
		if _, ok := o.LookupAttr(path); ok {
			return nil
		}
		return dm.Issues{{Path: path, Code: dm.CodeRequired, Message: "required by rule", Rule: "required"}}
	}
}

// Compare checks stored values at two paths: a op b. Unset paths pass.
func Compare(a string, op Op, b string) Rule {
	name := fmt.Sprintf("%s %s %s", a, op, b)
	return func(o *stnode.Object) dm.Issues {
		x, ok1 := o.LookupAttr(a)
		y, ok2 := o.LookupAttr(b)
		if !ok1 || !ok2 || compare(x, op, y) {
			return nil
		}
		return dm.Issues{{
			Path:    a,
			Code:    dm.CodeBusinessRule,
			Message: "violates " + name,
			Value:   x,
			Params:  map[string]any{"other": b, "other_value": y},
			Rule:    name,
		}}
	}
}

// AtLeastOne ensures the collection at path has at least 1 element.
func AtLeastOne(path string) Rule {
	return func(o *stnode.Object) dm.Issues {
		val, ok := o.LookupAttr(path)
		if !ok {
			return nil
		}
		n := -1
		switch t := val.(type) {
		case *stnode.List:
			n = t.Len()
		case []any:
			n = len(t)
		}
		if n == 0 {
			return dm.Issues{{Path: path, Code: dm.CodeTooShort, Message: "at least 1 item is required", Params: map[string]any{"minItems": 1}, Rule: "at_least_one"}}
		}
		return nil
	}
}

// And executes all rules and concatenates Issues.
func And(rules ...Rule) Rule {
	return func(o *stnode.Object) dm.Issues {
		var out dm.Issues
		for _, r := range rules {
			if r == nil {
				continue
			}
			out = append(out, r(o)...)
		}
		return out
	}
}

// Or succeeds if any rule returns no Issues. When all fail, the branch with
// the fewest issues is reported.
func Or(rules ...Rule) Rule {
	return func(o *stnode.Object) dm.Issues {
		var best dm.Issues
		bestSet := false
		for _, r := range rules {
			if r == nil {
				continue
			}
			iss := r(o)
			if len(iss) == 0 {
				return nil
			}
			if !bestSet || len(iss) < len(best) {
				best = iss
				bestSet = true
			}
		}
		return best
	}
}

func compare(cur any, op Op, want any) bool {
	switch op {
	case Eq:
		return equal(cur, want)
	case Ne:
		return !equal(cur, want)
	}
	a, ok1 := schema.ToFloat(cur)
	b, ok2 := schema.ToFloat(want)
	if !ok1 || !ok2 {
		return false
	}
	switch op {
	case Lt:
		return a < b
	case Le:
		return a <= b
	case Gt:
		return a > b
	case Ge:
		return a >= b
	}
	return false
}

func equal(a, b any) bool {
	if _, ok := schema.ToFloat(a); ok {
		return schema.EqualScalar(a, b)
	}
	return reflect.DeepEqual(a, b)
}
