package docbind

import (
	"fmt"
	"log/slog"
	"slices"
)

// Binder attaches live or one-shot document/collection subscriptions
// to the bound properties of a single component instance, re-deriving
// them as dependent property values change.
//
// A binder is strictly single-threaded: Attach, PropertyChanged,
// Rebuild, Teardown, and every snapshot callback must execute on the
// same event-loop goroutine. Use Loop to serialize events from hosts
// or clients that deliver on foreign goroutines.
//
// INVARIANTS:
//   - At most one live unsubscribe handle per bound property at any
//     time; Rebuild tears down unconditionally before subscribing.
//   - Unsubscribe handles are invoked at most once and discarded
//     immediately after use.
//   - Dependency order (placeholders before observes) is fixed at
//     attach time and never changes.
type Binder struct {
	host   Component
	client Client
	tokens TokenGenerator
	log    *slog.Logger

	// One-time setup guards.
	constructed bool
	attached    bool

	configs map[string]*Config
	// deps maps the joined dependency-key string to the bound property
	// it rebuilds. The exact dependency names are kept alongside so
	// membership checks never re-split the joined key, which would
	// misfire on a dependency name containing a comma.
	deps  map[string]depBinding
	state map[string]*bindingState
}

// depBinding is one registered dependency-key entry.
type depBinding struct {
	bound string
	names []string
}

// bindingState is the per-property runtime state. The unsubscribe
// handle is exclusively owned: exactly one rebuild or teardown invokes
// it, after which it is discarded.
type bindingState struct {
	// token identifies the currently live subscription. Cleared on
	// teardown and on one-shot auto-detach; snapshot callbacks whose
	// captured token no longer matches are stale and dropped.
	token string

	unsubscribe Unsubscribe

	// ref is the last resolved pre-transform reference, also exposed
	// on the host as <name>Ref.
	ref any

	ready bool

	// autoDetach records a one-shot completion that happened while the
	// initial snapshot was being delivered synchronously, before the
	// unsubscribe handle was stored.
	autoDetach bool
}

// BinderOption configures a Binder.
type BinderOption func(*Binder)

// WithClient sets the database client. Defaults to the process-wide
// client installed by Configure.
func WithClient(c Client) BinderOption {
	return func(b *Binder) { b.client = c }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) BinderOption {
	return func(b *Binder) { b.log = log }
}

// WithTokenGenerator sets the subscription token generator. Defaults
// to UUIDv7Generator. Tests use FixedGenerator for deterministic
// tokens.
func WithTokenGenerator(g TokenGenerator) BinderOption {
	return func(b *Binder) { b.tokens = g }
}

// NewBinder constructs a binder for one component instance. State is
// created empty; no declarations are read and no subscriptions are
// attempted until Attach.
func NewBinder(host Component, opts ...BinderOption) (*Binder, error) {
	if host == nil {
		return nil, fmt.Errorf("docbind: nil host component")
	}

	b := &Binder{
		host:    host,
		tokens:  UUIDv7Generator{},
		configs: make(map[string]*Config),
		deps:    make(map[string]depBinding),
		state:   make(map[string]*bindingState),
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.client == nil {
		b.client = DefaultClient()
	}
	if b.client == nil {
		return nil, fmt.Errorf("docbind: no client: pass WithClient or call Configure")
	}
	if b.log == nil {
		b.log = slog.Default()
	}

	b.constructed = true
	return b, nil
}

// Attach performs one-time binding setup for the component instance:
// it collects the merged property declarations, validates every bound
// property's configuration, registers dependency listeners, and
// performs an initial rebuild of each binding with whatever dependency
// values are currently available (possibly incomplete).
//
// Configuration violations are fatal and reported before any
// subscription is attempted. Attach is guarded: second and later calls
// are no-ops.
func (b *Binder) Attach() error {
	if b.attached {
		return nil
	}

	def := b.host.Definition()
	component := ""
	if def != nil {
		component = def.Name
	}

	merged := CollectProperties(def)

	// Validate every declaration before attaching anything, so a
	// config error never leaves a partial set of live subscriptions.
	names := make([]string, 0, len(merged))
	for name, opts := range merged {
		if opts.Bound() {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	configs := make(map[string]*Config, len(names))
	for _, name := range names {
		cfg, err := newConfig(component, name, merged[name])
		if err != nil {
			return err
		}
		configs[name] = cfg
	}

	b.attached = true

	for _, name := range names {
		cfg := configs[name]
		b.configs[name] = cfg
		b.state[name] = &bindingState{}

		if deps := cfg.Deps(); len(deps) > 0 {
			b.deps[cfg.DepKey()] = depBinding{bound: name, names: deps}
		}

		b.log.Debug("binding registered",
			"component", component,
			"property", name,
			"kind", cfg.Kind.String(),
			"deps", cfg.DepKey(),
			"live", cfg.Live,
		)

		args := make([]any, 0, len(cfg.Placeholders)+len(cfg.Observes))
		for _, dep := range cfg.Deps() {
			args = append(args, b.host.Get(dep))
		}
		if err := b.Rebuild(name, args...); err != nil {
			return err
		}
	}

	return nil
}

// PropertyChanged reacts to a component property change notification.
// If the changed property is part of a registered dependency key and
// its new value is truthy, the associated bound property is rebuilt.
//
// Known limitation, preserved from the reference behavior: the rebuild
// receives only the single changed value, not the full current set of
// dependency values. Multi-dependency bindings therefore rebuild with
// an incomplete argument list on a single-property change and fall
// back to the pending state until a full rebuild (e.g. re-attach)
// supplies every value. Correcting this would change observable
// rebuild arguments for existing multi-dependency bindings.
func (b *Binder) PropertyChanged(name string, old, new any) error {
	if !b.attached {
		return nil
	}
	_ = old

	if !truthy(new) {
		return nil
	}

	// Deterministic iteration over registered dependency keys.
	keys := make([]string, 0, len(b.deps))
	for key := range b.deps {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	for _, key := range keys {
		entry := b.deps[key]
		if !slices.Contains(entry.names, name) {
			continue
		}
		b.log.Debug("dependency changed, rebuilding",
			"property", entry.bound,
			"dependency", name,
		)
		if err := b.Rebuild(entry.bound, new); err != nil {
			return err
		}
	}

	return nil
}

// Teardown cancels the named binding's subscription, if any, and
// clears its exposed reference and ready flag. Idempotent: the
// unsubscribe handle is invoked at most once and discarded; calling
// Teardown again is a no-op beyond re-clearing the outputs.
func (b *Binder) Teardown(name string) {
	st := b.state[name]
	if st == nil {
		return
	}

	if st.unsubscribe != nil {
		unsub := st.unsubscribe
		st.unsubscribe = nil
		unsub()
		b.log.Debug("subscription detached", "property", name, "token", st.token)
	}
	st.token = ""
	st.autoDetach = false
	st.ref = nil
	st.ready = false

	b.host.Set(name+RefSuffix, nil)
	b.host.Set(name+ReadySuffix, false)
}

// Detach tears down every binding. Called when the component instance
// leaves the tree; the binder is terminal afterwards.
func (b *Binder) Detach() {
	names := make([]string, 0, len(b.state))
	for name := range b.state {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		b.Teardown(name)
	}
}

// Ready reports the named binding's readiness flag.
func (b *Binder) Ready(name string) bool {
	st := b.state[name]
	return st != nil && st.ready
}

// Ref returns the named binding's last resolved pre-transform
// reference, or nil.
func (b *Binder) Ref(name string) any {
	st := b.state[name]
	if st == nil {
		return nil
	}
	return st.ref
}

// Subscribed reports whether the named binding currently owns a live
// unsubscribe handle.
func (b *Binder) Subscribed(name string) bool {
	st := b.state[name]
	return st != nil && st.unsubscribe != nil
}

// truthy applies the reference behavior's change-gate: nil, false,
// empty strings, and numeric zero do not re-trigger a rebuild.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int32:
		return val != 0
	case int64:
		return val != 0
	case float32:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}
