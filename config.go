package docbind

import (
	"fmt"
	"strings"

	"github.com/roach88/docbind/pathtpl"
)

// Kind is the tagged listener variant of a binding: every binding is
// exactly one of a document binding or a collection binding, determined
// by which of Options.Doc / Options.Collection was declared.
type Kind int

const (
	// KindDocument binds a single-object property to a document.
	KindDocument Kind = iota + 1
	// KindCollection binds an ordered-list property to a collection
	// query.
	KindCollection
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "document"
	case KindCollection:
		return "collection"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Config is the resolved binding configuration for one bound property.
// Built once at attach time from the merged declaration options and
// never mutated afterwards.
type Config struct {
	// Name is the bound property name.
	Name string

	// Kind is the listener variant, fully determined by which of
	// doc/collection was declared.
	Kind Kind

	// PathLiterals and Placeholders are the parsed path template.
	PathLiterals []string
	Placeholders []string

	// Observes lists extra property names that re-trigger the binding
	// without participating in the path.
	Observes []string

	// Live keeps the subscription open; false means one-shot.
	Live bool

	// NoCacheAssign suppresses assignment of cache-origin snapshots.
	NoCacheAssign bool

	// Query is the optional query transform for collection bindings.
	Query QueryTransform
}

// Deps returns the dependency key: path placeholders followed by
// observed extra properties. This order is fixed at bind time; rebuild
// arguments are always positional against it.
func (c *Config) Deps() []string {
	deps := make([]string, 0, len(c.Placeholders)+len(c.Observes))
	deps = append(deps, c.Placeholders...)
	deps = append(deps, c.Observes...)
	return deps
}

// DepKey returns the joined dependency-key string used to register the
// binding as a change listener.
func (c *Config) DepKey() string {
	return strings.Join(c.Deps(), ",")
}

// newConfig validates declaration options and resolves them into a
// Config. Violations are fatal configuration errors, raised before any
// subscription is attempted.
func newConfig(component, name string, opts Options) (*Config, error) {
	var (
		kind     Kind
		template string
	)
	switch {
	case opts.Doc != "" && opts.Collection != "":
		return nil, newConfigError(component, name, "both doc and collection declared; exactly one must be present")
	case opts.Doc != "":
		kind = KindDocument
		template = opts.Doc
		if opts.Type != TypeObject {
			return nil, newConfigError(component, name,
				fmt.Sprintf("doc binding requires type %q, declared %q", TypeObject, opts.Type))
		}
	case opts.Collection != "":
		kind = KindCollection
		template = opts.Collection
		if opts.Type != TypeArray {
			return nil, newConfigError(component, name,
				fmt.Sprintf("collection binding requires type %q, declared %q", TypeArray, opts.Type))
		}
	default:
		return nil, newConfigError(component, name, "neither doc nor collection declared")
	}

	tpl, err := pathtpl.Parse(template)
	if err != nil {
		return nil, newConfigError(component, name, err.Error())
	}

	return &Config{
		Name:          name,
		Kind:          kind,
		PathLiterals:  tpl.Literals,
		Placeholders:  tpl.Placeholders,
		Observes:      opts.Observes,
		Live:          opts.Live,
		NoCacheAssign: opts.NoCache,
		Query:         opts.Query,
	}, nil
}
