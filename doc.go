// Package docbind is a declarative data-binding layer that attaches
// live or one-shot document/collection subscriptions from a remote
// document database to properties of a UI component, re-deriving
// subscriptions as dependent inputs change.
//
// ARCHITECTURE:
//
// Single-Threaded Event Loop:
// A Binder executes strictly on one goroutine, reacting to two external
// event sources: component property-change notifications and database
// snapshot callbacks. No operation blocks; subscription establishment
// and teardown are synchronous registration and deregistration of
// callbacks with the external client. Hosts whose client or framework
// delivers on foreign goroutines use Loop to serialize events.
//
// Binding Flow:
//  1. Attach collects the merged property declarations across the
//     component's definition chain (subclass declarations win).
//  2. Each doc/collection declaration is validated (doc requires an
//     Object property, collection requires an Array property) and
//     resolved into a Config: parsed path template, dependency key
//     (path placeholders followed by observed extras), live/noCache
//     flags, optional query transform.
//  3. Every binding is rebuilt immediately with whatever dependency
//     values are available, then again whenever a dependency property
//     changes to a truthy value.
//  4. A rebuild tears down the previous subscription unconditionally,
//     stitches the concrete path, resolves the reference, and attaches
//     a snapshot listener. Missing dependency values or a trailing
//     path separator leave the binding pending instead.
//  5. Snapshots are reconciled onto the bound property: documents are
//     replaced wholesale with the identifier injected under "__id__";
//     collections apply incremental add/remove/move/modify splices
//     onto the existing ordered list when possible, preserving
//     unrelated local entries.
//
// Bound outputs on the host component, for a property "user":
// "user" (resolved value), "userRef" (raw pre-transform reference),
// "userReady" (readiness flag).
//
// The component framework and the database client are external
// collaborators consumed through the Component and Client interfaces.
// Package memdb provides the reference Client; package compiler loads
// component definitions from CUE files; package harness runs YAML
// conformance scenarios against golden traces.
//
// CRITICAL INVARIANTS:
//   - At most one live unsubscribe handle per bound property per
//     instance at any time.
//   - An unsubscribe handle is invoked at most once, then discarded.
//   - Dependency order (placeholders before observes) is fixed at
//     attach time.
//   - Callback ordering between different bound properties is NOT
//     guaranteed; each property's state is isolated, so arbitrary
//     relative delivery order is tolerated.
package docbind
