package stnode

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	dm "github.com/reoring/datamodels"
	"github.com/reoring/datamodels/registry"
	"github.com/reoring/datamodels/schema"
)

// Object is a mapping node. Declared fields are validated against the active
// schema; undeclared (extra) fields are stored as given.
type Object struct {
	class     *Class
	tag       string
	schemaURI string
	shape     *schema.Shape // inline objects only
	env       env

	keys     []string
	vals     map[string]any
	presence map[string]Presence
	pause    *pauseState
}

// NewObject constructs an object of class cls holding values. Values are not
// validated; use Validate to check a constructed object.
func NewObject(cls *Class, values map[string]any, opts ...Option) (*Object, error) {
	if cls == nil {
		return nil, errors.New("stnode: nil class")
	}
	if err := cls.checkKind(schema.KindObject); err != nil {
		return nil, err
	}
	o := &Object{class: cls, env: classEnv(cls)}
	op := buildOptions(opts)
	tag, uri, err := activate(cls, op.tag)
	if err != nil {
		return nil, err
	}
	if _, err := cls.Descriptor(uri); err != nil {
		return nil, err
	}
	o.tag, o.schemaURI = tag, uri
	o.load(values, op.order)
	return o, nil
}

// NewDict constructs an untyped object. Every field is extra.
func NewDict(values map[string]any, opts ...Option) *Object {
	return newInline(nil, env{}, values, buildOptions(opts).order)
}

func newInline(shape *schema.Shape, e env, values map[string]any, order []string) *Object {
	o := &Object{shape: shape, env: e}
	o.load(values, order)
	return o
}

// activate picks the tag and schema a node of cls starts with.
func activate(cls *Class, tag string) (string, string, error) {
	if tag != "" {
		uri, ok := cls.SchemaForTag(tag)
		if !ok {
			return "", "", &dm.UnresolvedTagError{Tag: tag}
		}
		return tag, uri, nil
	}
	if t := cls.NewestTag(); t != "" {
		uri, _ := cls.SchemaForTag(t)
		return t, uri, nil
	}
	return "", cls.NewestSchema(), nil
}

func (o *Object) load(values map[string]any, order []string) {
	o.vals = make(map[string]any, len(values))
	o.presence = make(map[string]Presence, len(values))
	o.keys = orderKeys(values, order, o.Shape())
	for _, k := range o.keys {
		o.vals[k] = values[k]
		o.presence[k] = PresenceSeen
	}
}

// orderKeys lists the keys of values: explicit order first, then declared
// properties in schema order, then the rest sorted.
func orderKeys(values map[string]any, order []string, shape *schema.Shape) []string {
	keys := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	add := func(k string) {
		if _, ok := values[k]; !ok {
			return
		}
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for _, k := range order {
		add(k)
	}
	if shape != nil {
		for _, f := range shape.Properties {
			add(f.Name)
		}
	}
	rest := make([]string, 0, len(values)-len(keys))
	for k := range values {
		if _, ok := seen[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

// Class returns the node class; nil for inline and untyped objects.
func (o *Object) Class() *Class { return o.class }

func (o *Object) SchemaKind() schema.Kind { return schema.KindObject }

// Tag returns the active tag, or "" for untagged objects.
func (o *Object) Tag() string { return o.tag }

// SchemaURI returns the active schema URI.
func (o *Object) SchemaURI() string { return o.schemaURI }

func (o *Object) SchemaURIs() []string {
	if o.class == nil {
		return nil
	}
	return o.class.SchemaURIs()
}

func (o *Object) TagURIs() []registry.TagURI {
	if o.class == nil {
		return nil
	}
	return o.class.TagURIs()
}

// SetTag switches the active tag and with it the active schema version.
func (o *Object) SetTag(tag string) error {
	if o.class == nil {
		return &dm.UnresolvedTagError{Tag: tag}
	}
	uri, ok := o.class.SchemaForTag(tag)
	if !ok {
		return &dm.UnresolvedTagError{Tag: tag}
	}
	if _, err := o.class.Descriptor(uri); err != nil {
		return err
	}
	o.tag, o.schemaURI = tag, uri
	return nil
}

// Descriptor returns the active schema descriptor; nil for inline objects.
func (o *Object) Descriptor() (*schema.Descriptor, error) {
	if o.class == nil {
		return nil, nil
	}
	return o.class.Descriptor(o.schemaURI)
}

// Shape returns the active property set, or nil when nothing is declared.
func (o *Object) Shape() *schema.Shape {
	if o.class == nil {
		return o.shape
	}
	d, err := o.class.Descriptor(o.schemaURI)
	if err != nil || d.Root == nil {
		return nil
	}
	return d.Root.Object
}

func (o *Object) field(name string) (*schema.Field, bool) {
	s := o.Shape()
	if s == nil {
		return nil, false
	}
	return s.Field(name)
}

func (o *Object) className() string {
	if o.class == nil {
		return ""
	}
	return o.class.name
}

// DeclaredFields returns the declared property names in schema order.
func (o *Object) DeclaredFields() []string {
	s := o.Shape()
	if s == nil {
		return nil
	}
	out := make([]string, len(s.Properties))
	for i, f := range s.Properties {
		out[i] = f.Name
	}
	return out
}

// RequiredFields returns the required property names.
func (o *Object) RequiredFields() []string {
	s := o.Shape()
	if s == nil {
		return nil
	}
	return slices.Clone(s.Required)
}

// ExtraFields returns stored fields the schema does not declare, in key order.
func (o *Object) ExtraFields() []string {
	var out []string
	for _, k := range o.keys {
		if _, ok := o.field(k); !ok {
			out = append(out, k)
		}
	}
	return out
}

// Keys returns stored field names in insertion order.
func (o *Object) Keys() []string { return slices.Clone(o.keys) }

// Len returns the number of stored fields.
func (o *Object) Len() int { return len(o.keys) }

// Has reports whether name is stored. It never materializes.
func (o *Object) Has(name string) bool {
	_, ok := o.vals[name]
	return ok
}

// Lookup returns the stored value of name without materializing defaults or
// resolving deferred values.
func (o *Object) Lookup(name string) (any, bool) {
	v, ok := o.vals[name]
	return v, ok
}

// Presence returns the presence flags of name.
func (o *Object) Presence(name string) Presence { return o.presence[name] }

// Get returns the value of name. A stored value is returned unchanged, except
// that deferred values are resolved and raw containers wrapped into nodes once,
// replacing the stored value. An unset declared field is materialized from its
// default and stored. An unset undeclared field returns ErrNoSuchField.
func (o *Object) Get(name string) (any, error) {
	if v, ok := o.vals[name]; ok {
		f, _ := o.field(name)
		w, changed, err := o.env.adopt(f, v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if changed {
			o.vals[name] = w
		}
		return w, nil
	}
	f, ok := o.field(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q on %s", dm.ErrNoSuchField, name, o.describe())
	}
	v, err := o.env.defaultFor(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	o.store(name, v)
	o.presence[name] |= PresenceDefaultApplied
	countDefault(v)
	return v, nil
}

func (o *Object) describe() string {
	if o.class != nil {
		return o.class.name
	}
	return "inline object"
}

func (o *Object) store(name string, v any) {
	if _, ok := o.vals[name]; !ok {
		o.keys = append(o.keys, name)
	}
	o.vals[name] = v
}

// Set assigns v to name. Raw primitives assigned to a field whose tag names a
// scalar class are wrapped into that class. Outside paused scopes a declared
// field is validated first; on failure a *datamodels.ValidationError is
// returned and the stored value is unchanged. Extra fields are never validated.
func (o *Object) Set(name string, v any) error {
	return o.assign(name, v, o.validating())
}

func (o *Object) assign(name string, v any, check bool) error {
	if f, ok := o.field(name); ok {
		w, err := o.env.wrapScalar(f, v)
		if err != nil {
			return err
		}
		v = w
		if check {
			if iss := o.fieldIssues(f, v).Rebase(name); len(iss) > 0 {
				validationFailed("assign")
				return &dm.ValidationError{Node: o.className(), Issues: iss}
			}
		}
	}
	o.store(name, v)
	o.presence[name] = PresenceSeen
	return nil
}

// Delete removes name. Declared fields materialize again on the next Get.
func (o *Object) Delete(name string) {
	if _, ok := o.vals[name]; !ok {
		return
	}
	delete(o.vals, name)
	delete(o.presence, name)
	o.keys = slices.DeleteFunc(o.keys, func(k string) bool { return k == name })
}

// Attr reads a dotted path such as "meta.exposure.type", materializing along
// the way. List elements are addressed by index.
func (o *Object) Attr(path string) (any, error) {
	parts := strings.Split(path, ".")
	var cur any = o
	for i, seg := range parts {
		var err error
		switch n := cur.(type) {
		case *Object:
			cur, err = n.Get(seg)
		case *List:
			idx, perr := strconv.Atoi(seg)
			if perr != nil {
				return nil, fmt.Errorf("%w: %s (list index %q)", dm.ErrNoSuchField, path, seg)
			}
			cur, err = n.Index(idx)
		default:
			return nil, fmt.Errorf("%w: %s (%s is %T)", dm.ErrNoSuchField, path, strings.Join(parts[:i], "."), cur)
		}
		if err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// SetAttr assigns v at a dotted path, materializing intermediate nodes. While
// o is paused the assignment is not validated, whichever node holds the field.
func (o *Object) SetAttr(path string, v any) error {
	check := o.validating()
	parent, last := any(o), path
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		var err error
		if parent, err = o.Attr(path[:i]); err != nil {
			return err
		}
		last = path[i+1:]
	}
	switch n := parent.(type) {
	case *Object:
		return n.assign(last, v, check && n.validating())
	case *List:
		idx, err := strconv.Atoi(last)
		if err != nil {
			return fmt.Errorf("%w: %s (list index %q)", dm.ErrNoSuchField, path, last)
		}
		return n.assign(idx, v, check)
	}
	return fmt.Errorf("%w: %s (parent is %T)", dm.ErrNoSuchField, path, parent)
}

// LookupAttr reads a dotted path without materializing anything. Scalars are
// unwrapped to their values.
func (o *Object) LookupAttr(path string) (any, bool) {
	var cur any = o
	for _, seg := range strings.Split(path, ".") {
		switch n := settle(cur).(type) {
		case *Object:
			v, ok := n.Lookup(seg)
			if !ok {
				return nil, false
			}
			cur = v
		case map[string]any:
			v, ok := n[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case *List:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(n.items) {
				return nil, false
			}
			cur = n.items[idx]
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(n) {
				return nil, false
			}
			cur = n[idx]
		default:
			return nil, false
		}
	}
	if s, ok := settle(cur).(*Scalar); ok {
		return s.value, true
	}
	return settle(cur), true
}

// Equal reports value equality with other.
func (o *Object) Equal(other any) bool { return Equal(o, other) }

// TypeKey identifies the class for converter dispatch; nil for inline objects.
func (o *Object) TypeKey() any {
	if o.class == nil {
		return nil
	}
	return o.class
}

// GetAs reads a dotted path and converts the result to T. Scalars are
// unwrapped when T is not a node type.
func GetAs[T any](o *Object, path string) (T, error) {
	var zero T
	v, err := o.Attr(path)
	if err != nil {
		return zero, err
	}
	if t, ok := v.(T); ok {
		return t, nil
	}
	if s, ok := v.(*Scalar); ok {
		if t, ok := s.value.(T); ok {
			return t, nil
		}
	}
	return zero, fmt.Errorf("stnode: %s holds %T, not %T", path, v, zero)
}
