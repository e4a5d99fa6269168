package datamodels

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Issue codes (exported consts for IDE completion and type safety by convention)
const (
	CodeInvalidType   = "invalid_type"
	CodeRequired      = "required"
	CodeTooSmall      = "too_small"
	CodeTooBig        = "too_big"
	CodeTooShort      = "too_short"
	CodeTooLong       = "too_long"
	CodePattern       = "pattern"
	CodeInvalidEnum   = "invalid_enum"
	CodeInvalidTag    = "invalid_tag"
	CodeInvalidFormat = "invalid_format"
	CodeParseError    = "parse_error"
	// Cross-field rules registered on a class.
	CodeBusinessRule = "business_rule"
)

// Sentinel errors matched with errors.Is.
var (
	// ErrNoSuchField is returned when reading an unset field the schema does not declare.
	ErrNoSuchField = errors.New("datamodels: no such field")
	// ErrSealed is returned when registering into a registry that has been sealed.
	ErrSealed = errors.New("datamodels: registry sealed")
	// ErrUnknownSchema is returned when a schema URI is absent from the catalog.
	ErrUnknownSchema = errors.New("datamodels: unknown schema")
)

// Issue represents a single validation entry.
type Issue struct {
	Path    string // Dotted field path (for example: meta.exposure.nresultants).
	Code    string // One of the codes listed above.
	Message string
	Value   any // Offending value, when one exists.
	// Params carries structured parameters (e.g., {"min":1, "got":0}).
	Params map[string]any
	Rule   string // Optional: name of the class rule that produced this issue.
}

// Issues is a collection of validation errors that implements error.
type Issues []Issue

// Error summarizes the first few issues.
func (iss Issues) Error() string {
	if len(iss) == 0 {
		return ""
	}
	const maxShown = 3
	b := &strings.Builder{}
	n := len(iss)
	lim := min(n, maxShown)
	for i := 0; i < lim; i++ {
		if i > 0 {
			b.WriteString("; ")
		}
		it := iss[i]
		// e.g. invalid_enum at meta.exposure.type
		fmt.Fprintf(b, "%s at %s", it.Code, it.Path)
	}
	if n > lim {
		fmt.Fprintf(b, "; ... (total %d)", n)
	}
	return b.String()
}

// Rebase prefixes every issue path with base.
func (iss Issues) Rebase(base string) Issues {
	if base == "" {
		return iss
	}
	out := make(Issues, len(iss))
	for i, it := range iss {
		if it.Path == "" {
			it.Path = base
		} else {
			it.Path = base + "." + it.Path
		}
		out[i] = it
	}
	return out
}

// AppendIssues appends issues to the destination, initializing the slice when
// needed.
func AppendIssues(dst Issues, more ...Issue) Issues {
	if dst == nil {
		dst = Issues{}
	}
	dst = append(dst, more...)
	return dst
}

// AsIssues extracts Issues from an error using errors.As internally.
func AsIssues(err error) (Issues, bool) {
	if err == nil {
		return nil, false
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Issues, true
	}
	var iss Issues
	if errors.As(err, &iss) {
		return iss, true
	}
	return nil, false
}

// ValidationError reports that a mutation, a paused-scope commit, or a read
// violated schema constraints. It is recoverable: callers may correct the
// offending fields and retry.
type ValidationError struct {
	Node   string // Class name of the node being validated ("" for untyped nodes).
	Issues Issues
}

func (e *ValidationError) Error() string {
	if e.Node == "" {
		return "validation failed: " + e.Issues.Error()
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Node, e.Issues.Error())
}

func (e *ValidationError) Unwrap() error { return e.Issues }

// Fields returns the distinct offending field paths in sorted order.
func (e *ValidationError) Fields() []string {
	seen := make(map[string]struct{}, len(e.Issues))
	out := make([]string, 0, len(e.Issues))
	for _, it := range e.Issues {
		if _, ok := seen[it.Path]; ok {
			continue
		}
		seen[it.Path] = struct{}{}
		out = append(out, it.Path)
	}
	sort.Strings(out)
	return out
}

// AsValidationError extracts a *ValidationError from err.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// NewValidationError wraps issues for the named node; it returns nil when
// there are no issues.
func NewValidationError(node string, iss Issues) error {
	if len(iss) == 0 {
		return nil
	}
	return &ValidationError{Node: node, Issues: iss}
}

// SchemaRegistrationError reports an ambiguous or incomplete registry entry.
// It is fatal: callers must abort loading instead of continuing with a
// partially built registry.
type SchemaRegistrationError struct {
	URI    string
	Class  string
	Reason string
	Err    error
}

func (e *SchemaRegistrationError) Error() string {
	if e.URI == "" {
		return fmt.Sprintf("schema registration failed for %s: %s", e.Class, e.Reason)
	}
	return fmt.Sprintf("schema registration failed for %s (%s): %s", e.Class, e.URI, e.Reason)
}

func (e *SchemaRegistrationError) Unwrap() error { return e.Err }

// CapabilityError reports a node class that omits a required capability,
// detected when a node of that class is constructed.
type CapabilityError struct {
	Class   string
	Missing string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("class %s is incomplete: missing %s", e.Class, e.Missing)
}

// UnresolvedTagError reports a tag URI with no registered class or converter.
type UnresolvedTagError struct {
	Tag string
}

func (e *UnresolvedTagError) Error() string {
	return fmt.Sprintf("unresolved tag %q", e.Tag)
}
