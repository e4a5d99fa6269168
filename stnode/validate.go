package stnode

import (
	"errors"
	"log/slog"
	"maps"
	"slices"

	dm "github.com/reoring/datamodels"
	"github.com/reoring/datamodels/schema"
)

// PauseOption configures a paused-validation scope.
type PauseOption func(*pauseConfig)

type pauseConfig struct {
	revalidate bool
	rollback   bool
}

// Revalidate controls whether releasing the outermost scope validates the
// whole node. It defaults to true.
func Revalidate(b bool) PauseOption {
	return func(c *pauseConfig) { c.revalidate = b }
}

// RollbackOnFailure restores the fields stored before the scope opened when
// the commit validation fails. Nested nodes mutated in place are not restored.
func RollbackOnFailure() PauseOption {
	return func(c *pauseConfig) { c.rollback = true }
}

type pauseState struct {
	depth int
	cfg   pauseConfig

	keys     []string
	vals     map[string]any
	presence map[string]Presence
}

// PauseScope is one level of paused validation on an object.
type PauseScope struct {
	o    *Object
	done bool
}

// Pause suspends per-assignment validation until the returned scope is
// released. Scopes nest; only releasing the outermost one commits, and the
// options of the outermost scope govern the commit.
func (o *Object) Pause(opts ...PauseOption) *PauseScope {
	if o.pause == nil {
		cfg := pauseConfig{revalidate: true}
		for _, fn := range opts {
			fn(&cfg)
		}
		p := &pauseState{cfg: cfg}
		if cfg.rollback {
			p.keys = slices.Clone(o.keys)
			p.vals = maps.Clone(o.vals)
			p.presence = maps.Clone(o.presence)
		}
		o.pause = p
	}
	o.pause.depth++
	return &PauseScope{o: o}
}

// Paused reports whether a paused scope is open.
func (o *Object) Paused() bool { return o.pause != nil }

// Release closes the scope. Releasing the outermost scope with revalidation
// validates the whole node and returns a *datamodels.ValidationError naming
// every offending field. Fields keep their assigned values unless the scope
// was opened with RollbackOnFailure. Release is idempotent.
func (s *PauseScope) Release() error {
	if s.done {
		return nil
	}
	s.done = true
	o := s.o
	p := o.pause
	if p == nil {
		return nil
	}
	if p.depth--; p.depth > 0 {
		return nil
	}
	o.pause = nil
	if !p.cfg.revalidate || !dm.CurrentConfig().ValidateOnAssignment {
		dm.Logger().Debug("paused scope released without validation", slog.String("node", o.describe()))
		return nil
	}
	iss := o.issues()
	if len(iss) == 0 {
		return nil
	}
	validationFailed("commit")
	if p.cfg.rollback {
		o.keys, o.vals, o.presence = p.keys, p.vals, p.presence
	}
	return &dm.ValidationError{Node: o.className(), Issues: iss}
}

// WithPausedValidation runs fn inside a paused scope. The scope is released
// when fn returns, errors or panics; a commit failure is returned when fn
// itself succeeded, and joined with fn's error otherwise.
func (o *Object) WithPausedValidation(fn func() error, opts ...PauseOption) (err error) {
	scope := o.Pause(opts...)
	defer func() {
		if rerr := scope.Release(); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()
	return fn()
}

func (o *Object) validating() bool {
	return o.pause == nil && dm.CurrentConfig().ValidateOnAssignment
}

// Validate checks every stored declared field and the class rules, recursing
// into nested nodes. Unset required fields are not violations: they
// materialize on access. Unresolved lazy values are checked by tag only.
func (o *Object) Validate() error {
	if iss := o.issues(); len(iss) > 0 {
		return &dm.ValidationError{Node: o.className(), Issues: iss}
	}
	return nil
}

func (o *Object) issues() dm.Issues {
	var iss dm.Issues
	for _, k := range slices.Clone(o.keys) {
		f, declared := o.field(k)
		if !declared {
			continue
		}
		if _, lazy := o.vals[k].(Resolver); lazy {
			// Deferred subtrees are validated when they resolve.
			iss = append(iss, elementIssues(o.env, f, o.vals[k]).Rebase(k)...)
			continue
		}
		v, changed, err := o.env.adopt(f, o.vals[k])
		if err != nil {
			iss = dm.AppendIssues(iss, dm.Issue{Path: k, Code: dm.CodeParseError, Message: err.Error()})
			continue
		}
		if changed {
			o.vals[k] = v
		}
		sub := append(elementIssues(o.env, f, v), nestedIssues(v)...)
		iss = append(iss, sub.Rebase(k)...)
	}
	if o.class != nil {
		for _, r := range o.class.rules {
			iss = append(iss, r(o)...)
		}
	}
	return iss
}

func (o *Object) fieldIssues(f *schema.Field, v any) dm.Issues {
	return elementIssues(o.env, f, v)
}

// elementIssues checks v against f. A wrapped scalar is also checked against
// its own class.
func elementIssues(e env, f *schema.Field, v any) dm.Issues {
	iss := e.checker().Check(f, v)
	if s, ok := v.(*Scalar); ok && len(iss) == 0 {
		iss = s.issues()
	}
	return iss
}

func nestedIssues(v any) dm.Issues {
	switch n := v.(type) {
	case *Object:
		return n.issues()
	case *List:
		return n.issues()
	}
	return nil
}
