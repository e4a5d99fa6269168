package stnode

import "fmt"

// FlushMode selects which fields Flush materializes.
type FlushMode int

const (
	// FlushRequired materializes required fields only.
	FlushRequired FlushMode = iota
	// FlushAll materializes every declared field.
	FlushAll
	// FlushExtra materializes every declared field and also flushes nodes
	// stored under extra fields.
	FlushExtra
)

func (m FlushMode) String() string {
	switch m {
	case FlushRequired:
		return "required"
	case FlushAll:
		return "all"
	case FlushExtra:
		return "extra"
	}
	return "unknown"
}

// ParseFlushMode parses "required", "all" or "extra".
func ParseFlushMode(s string) (FlushMode, error) {
	for _, m := range []FlushMode{FlushRequired, FlushAll, FlushExtra} {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("stnode: unknown flush mode %q", s)
}

// Flush materializes defaults on n. With recurse it descends into nested
// object and list nodes stored under declared fields.
func Flush(n Node, mode FlushMode, recurse bool) error {
	switch x := n.(type) {
	case *Object:
		return x.Flush(mode, recurse)
	case *List:
		return x.Flush(mode, recurse)
	}
	return nil
}

// Flush materializes defaults on the object. See Flush.
func (o *Object) Flush(mode FlushMode, recurse bool) error {
	names := o.RequiredFields()
	if mode != FlushRequired {
		names = o.DeclaredFields()
	}
	for _, name := range names {
		if o.Has(name) {
			continue
		}
		if _, err := o.Get(name); err != nil {
			return err
		}
	}
	if !recurse && mode != FlushExtra {
		return nil
	}
	for _, k := range o.Keys() {
		_, declared := o.field(k)
		if declared && !recurse {
			continue
		}
		if !declared && mode != FlushExtra {
			continue
		}
		v, err := o.Get(k)
		if err != nil {
			return err
		}
		if child, ok := v.(Node); ok {
			if err := Flush(child, mode, recurse); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
		}
	}
	return nil
}

// Flush materializes defaults on every node element.
func (l *List) Flush(mode FlushMode, recurse bool) error {
	if !recurse {
		return nil
	}
	for i := range l.items {
		v, changed, err := l.env.adopt(l.ItemField(), l.items[i])
		if err != nil {
			return fmt.Errorf("%d: %w", i, err)
		}
		if changed {
			l.items[i] = v
		}
		if child, ok := v.(Node); ok {
			if err := Flush(child, mode, recurse); err != nil {
				return fmt.Errorf("%d: %w", i, err)
			}
		}
	}
	return nil
}
