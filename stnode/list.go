package stnode

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	dm "github.com/reoring/datamodels"
	"github.com/reoring/datamodels/registry"
	"github.com/reoring/datamodels/schema"
)

// List is a sequence node. Raw nested content is wrapped into nodes when an
// element is first accessed; item constraints are checked at that point.
type List struct {
	class     *Class
	tag       string
	schemaURI string
	item      *schema.Field // inline lists only
	env       env
	items     []any
}

// NewList constructs a list of class cls holding items.
func NewList(cls *Class, items []any, opts ...Option) (*List, error) {
	if cls == nil {
		return nil, errors.New("stnode: nil class")
	}
	if err := cls.checkKind(schema.KindList); err != nil {
		return nil, err
	}
	tag, uri, err := activate(cls, buildOptions(opts).tag)
	if err != nil {
		return nil, err
	}
	if _, err := cls.Descriptor(uri); err != nil {
		return nil, err
	}
	return &List{class: cls, tag: tag, schemaURI: uri, env: classEnv(cls), items: slices.Clone(items)}, nil
}

// NewItems constructs an untyped list.
func NewItems(items ...any) *List {
	return newInlineList(nil, env{}, items)
}

func newInlineList(item *schema.Field, e env, items []any) *List {
	return &List{item: item, env: e, items: slices.Clone(items)}
}

func (l *List) Class() *Class           { return l.class }
func (l *List) SchemaKind() schema.Kind { return schema.KindList }
func (l *List) Tag() string             { return l.tag }
func (l *List) SchemaURI() string       { return l.schemaURI }
func (l *List) Len() int                { return len(l.items) }
func (l *List) Equal(other any) bool    { return Equal(l, other) }

// TypeKey identifies the class for converter dispatch; nil for inline lists.
func (l *List) TypeKey() any {
	if l.class == nil {
		return nil
	}
	return l.class
}

func (l *List) SchemaURIs() []string {
	if l.class == nil {
		return nil
	}
	return l.class.SchemaURIs()
}

func (l *List) TagURIs() []registry.TagURI {
	if l.class == nil {
		return nil
	}
	return l.class.TagURIs()
}

// ItemField returns the constraints applied to every element, if any.
func (l *List) ItemField() *schema.Field {
	if l.class == nil {
		return l.item
	}
	d, err := l.class.Descriptor(l.schemaURI)
	if err != nil || d.Root == nil {
		return nil
	}
	return d.Root.Items
}

func (l *List) className() string {
	if l.class == nil {
		return ""
	}
	return l.class.name
}

// Index returns element i, wrapping raw content into a node and caching the
// result. The element is checked against the item constraints.
func (l *List) Index(i int) (any, error) {
	if i < 0 || i >= len(l.items) {
		return nil, fmt.Errorf("stnode: index %d out of range [0,%d)", i, len(l.items))
	}
	f := l.ItemField()
	v, changed, err := l.env.adopt(f, l.items[i])
	if err != nil {
		return nil, fmt.Errorf("%d: %w", i, err)
	}
	if changed {
		l.items[i] = v
	}
	if f != nil && dm.CurrentConfig().ValidateOnAssignment {
		if iss := elementIssues(l.env, f, v).Rebase(strconv.Itoa(i)); len(iss) > 0 {
			validationFailed("read")
			return nil, &dm.ValidationError{Node: l.className(), Issues: iss}
		}
	}
	return v, nil
}

// Append adds v, validating it against the item constraints first.
func (l *List) Append(v any) error {
	w, err := l.prepare(len(l.items), v, dm.CurrentConfig().ValidateOnAssignment)
	if err != nil {
		return err
	}
	l.items = append(l.items, w)
	return nil
}

// Set replaces element i.
func (l *List) Set(i int, v any) error {
	return l.assign(i, v, dm.CurrentConfig().ValidateOnAssignment)
}

func (l *List) assign(i int, v any, check bool) error {
	if i < 0 || i >= len(l.items) {
		return fmt.Errorf("stnode: index %d out of range [0,%d)", i, len(l.items))
	}
	w, err := l.prepare(i, v, check)
	if err != nil {
		return err
	}
	l.items[i] = w
	return nil
}

func (l *List) prepare(i int, v any, check bool) (any, error) {
	f := l.ItemField()
	if f == nil {
		return v, nil
	}
	w, err := l.env.wrapScalar(f, v)
	if err != nil {
		return nil, err
	}
	if check {
		if iss := elementIssues(l.env, f, w).Rebase(strconv.Itoa(i)); len(iss) > 0 {
			validationFailed("assign")
			return nil, &dm.ValidationError{Node: l.className(), Issues: iss}
		}
	}
	return w, nil
}

// Values returns the stored elements as they are, without wrapping.
func (l *List) Values() []any { return slices.Clone(l.items) }

// Validate checks every element, recursing into nested nodes.
func (l *List) Validate() error {
	if iss := l.issues(); len(iss) > 0 {
		return &dm.ValidationError{Node: l.className(), Issues: iss}
	}
	return nil
}

func (l *List) issues() dm.Issues {
	f := l.ItemField()
	var iss dm.Issues
	for i := range l.items {
		if _, lazy := l.items[i].(Resolver); lazy {
			if f != nil {
				iss = append(iss, elementIssues(l.env, f, l.items[i]).Rebase(strconv.Itoa(i))...)
			}
			continue
		}
		v, changed, err := l.env.adopt(f, l.items[i])
		if err != nil {
			iss = dm.AppendIssues(iss, dm.Issue{Path: strconv.Itoa(i), Code: dm.CodeParseError, Message: err.Error()})
			continue
		}
		if changed {
			l.items[i] = v
		}
		var sub dm.Issues
		if f != nil {
			sub = elementIssues(l.env, f, v)
		}
		sub = append(sub, nestedIssues(v)...)
		iss = append(iss, sub.Rebase(strconv.Itoa(i))...)
	}
	return iss
}
