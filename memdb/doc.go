// Package memdb implements an embedded SQLite-backed document database
// satisfying the docbind.Client contract.
//
// memdb is the reference client for tests, the conformance harness,
// and demos. It stores documents as canonical JSON in a single SQLite
// table and delivers snapshots to registered listeners synchronously
// on the writing goroutine, matching the single-threaded event-loop
// model docbind assumes.
//
// ARCHITECTURE:
//
// Documents live at slash-separated paths with an even number of
// segments ("users/alice"); the containing collection is the path
// minus the final segment. Every write stamps the document with a
// monotonically increasing revision from a logical clock; wall-clock
// time is never used for ordering.
//
// Query listeners remember the last result set they delivered. After
// each committed write the affected queries are re-evaluated and the
// incremental change set (added/removed/modified, with indices
// reported stepwise against the evolving list) is computed against
// that remembered result, so a docbind reconciler can splice the
// changes onto its bound list. The initial delivery reports every
// document as added, which reconcilers treat as a full load.
//
// Query evaluation compiles to parameterized SQL over json_extract.
// Every query carries a deterministic ORDER BY with a document-id
// tiebreaker, so identical states always produce identical result
// orders.
package memdb
