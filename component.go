package docbind

// Suffixes and keys for the values a binder exposes on its host
// component alongside the bound property itself.
const (
	// RefSuffix names the property holding the raw pre-transform
	// database reference for a bound property ("user" -> "userRef").
	RefSuffix = "Ref"

	// ReadySuffix names the property holding the readiness flag for a
	// bound property ("user" -> "userReady").
	ReadySuffix = "Ready"

	// IDKey is the reserved key under which a document's identifier is
	// injected into its resolved value.
	IDKey = "__id__"
)

// ValueType is the declared value type of a component property.
type ValueType string

const (
	// TypeObject declares a single-object property. Required for doc
	// bindings.
	TypeObject ValueType = "Object"

	// TypeArray declares an ordered-list property. Required for
	// collection bindings.
	TypeArray ValueType = "Array"
)

// QueryTransform narrows or reorders a collection query before the
// snapshot listener is attached. It receives the raw collection
// reference and the host component, so a transform may read other
// instance state. The transformed query is used for listening only;
// the exposed <name>Ref stays the raw pre-transform reference.
type QueryTransform func(q Query, host Component) Query

// Options is the per-property declaration metadata consumed from the
// component framework. A property becomes a bound property when
// exactly one of Doc or Collection is set.
type Options struct {
	// Doc is a document path template ("users/{uid}"). Mutually
	// exclusive with Collection.
	Doc string

	// Collection is a collection path template ("users/{uid}/posts").
	// Mutually exclusive with Doc.
	Collection string

	// Type is the declared value type. Doc bindings require
	// TypeObject; collection bindings require TypeArray.
	Type ValueType

	// Live keeps the subscription open indefinitely. When false the
	// subscription self-terminates after the first assigned snapshot.
	Live bool

	// Observes lists property names that are not path placeholders but
	// whose changes must also re-trigger the binding.
	Observes []string

	// NoCache suppresses assignment of cache-origin snapshots: values
	// are only assigned once confirmed by the server.
	NoCache bool

	// Query is an optional query transform for collection bindings.
	Query QueryTransform
}

// Bound reports whether the options declare a database binding.
func (o Options) Bound() bool {
	return o.Doc != "" || o.Collection != ""
}

// Definition is a component type's declaration table. Definitions form
// a chain via Extends, mirroring a subclass hierarchy; a definition is
// composed once per concrete component type, not per instance.
type Definition struct {
	// Name identifies the component type in errors and logs.
	Name string

	// Extends points at the next less-derived definition, or nil.
	Extends *Definition

	// Properties maps property name to declaration options.
	Properties map[string]Options
}

// CollectProperties walks the definition chain from most-derived to
// least-derived and merges the property tables, with a more-derived
// declaration winning over a less-derived one for the same name. This
// resolves the common case of a subclass re-declaring a property with
// different binding options.
func CollectProperties(def *Definition) map[string]Options {
	merged := make(map[string]Options)
	for d := def; d != nil; d = d.Extends {
		for name, opts := range d.Properties {
			if _, seen := merged[name]; !seen {
				merged[name] = opts
			}
		}
	}
	return merged
}

// Component is the narrow surface consumed from the host UI component
// framework. The binder reads dependency property values with Get,
// writes resolved values and the <name>Ref / <name>Ready outputs with
// Set, and signals render updates with RequestRender.
//
// The host drives the binder in return: it calls Attach once on first
// attach and PropertyChanged on every property change notification.
type Component interface {
	// Definition returns the component type's most-derived definition.
	Definition() *Definition

	Get(name string) any
	Set(name string, value any)

	// RequestRender signals that the named property's rendering should
	// be refreshed.
	RequestRender(name string)
}

// MapComponent is a minimal map-backed Component for hosts without a
// component framework, and for tests. Not safe for concurrent use; all
// access must happen on the event-loop goroutine.
type MapComponent struct {
	def    *Definition
	values map[string]any
}

// NewMapComponent creates a MapComponent for the given definition.
func NewMapComponent(def *Definition) *MapComponent {
	return &MapComponent{
		def:    def,
		values: make(map[string]any),
	}
}

// Definition implements Component.
func (c *MapComponent) Definition() *Definition { return c.def }

// Get implements Component. Unset properties read as nil.
func (c *MapComponent) Get(name string) any { return c.values[name] }

// Set implements Component.
func (c *MapComponent) Set(name string, value any) { c.values[name] = value }

// RequestRender implements Component as a no-op.
func (c *MapComponent) RequestRender(string) {}
