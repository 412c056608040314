package memdb

import (
	"slices"

	"github.com/roach88/docbind"
)

type docSnap struct {
	id        string
	exists    bool
	data      map[string]any
	fromCache bool
}

func (s docSnap) ID() string           { return s.id }
func (s docSnap) Exists() bool         { return s.exists }
func (s docSnap) Data() map[string]any { return s.data }
func (s docSnap) FromCache() bool      { return s.fromCache }

type querySnap struct {
	docs      []docbind.DocumentSnapshot
	changes   []docbind.DocChange
	fromCache bool
}

func (s querySnap) Docs() []docbind.DocumentSnapshot { return s.docs }
func (s querySnap) Changes() []docbind.DocChange     { return s.changes }
func (s querySnap) FromCache() bool                  { return s.fromCache }

func snapshotOf(doc resultDoc) docbind.DocumentSnapshot {
	return docSnap{id: doc.id, exists: true, data: doc.data}
}

// initialSnapshot reports the full result set with every document as
// an addition, the shape a listener sees on first attach.
func initialSnapshot(results []resultDoc, fromCache bool) docbind.QuerySnapshot {
	snap := querySnap{fromCache: fromCache}
	for i, doc := range results {
		snap.docs = append(snap.docs, snapshotOf(doc))
		snap.changes = append(snap.changes, docbind.DocChange{
			Kind:     docbind.ChangeAdded,
			Doc:      snapshotOf(doc),
			OldIndex: -1,
			NewIndex: i,
		})
	}
	return snap
}

func changedSnapshot(results []resultDoc, changes []docbind.DocChange) docbind.QuerySnapshot {
	snap := querySnap{changes: changes}
	for _, doc := range results {
		snap.docs = append(snap.docs, snapshotOf(doc))
	}
	return snap
}

// diffResults computes the change events between two evaluations of
// the same query.
//
// CRITICAL INVARIANT: indices are stepwise. Each event's OldIndex
// refers to the list with all preceding events already applied, and
// its NewIndex to the list after applying the event itself. Replaying
// the events as splices over the old list therefore reproduces the new
// list exactly. Removals come first (ascending), then additions
// (ascending by final position), then modifications and moves.
func diffResults(old, new []resultDoc) []docbind.DocChange {
	newByID := make(map[string]resultDoc, len(new))
	for _, doc := range new {
		newByID[doc.id] = doc
	}
	oldIDs := make(map[string]struct{}, len(old))
	for _, doc := range old {
		oldIDs[doc.id] = struct{}{}
	}

	working := slices.Clone(old)
	var changes []docbind.DocChange

	// Removals, walking a shrinking working copy.
	for i := 0; i < len(working); {
		doc := working[i]
		if _, kept := newByID[doc.id]; kept {
			i++
			continue
		}
		changes = append(changes, docbind.DocChange{
			Kind:     docbind.ChangeRemoved,
			Doc:      snapshotOf(doc),
			OldIndex: i,
			NewIndex: -1,
		})
		working = slices.Delete(working, i, i+1)
	}

	// Additions at their final positions.
	for i, doc := range new {
		if _, existed := oldIDs[doc.id]; existed {
			continue
		}
		changes = append(changes, docbind.DocChange{
			Kind:     docbind.ChangeAdded,
			Doc:      snapshotOf(doc),
			OldIndex: -1,
			NewIndex: i,
		})
		working = slices.Insert(working, i, doc)
	}

	// Modifications and moves, ascending by final position. Only
	// documents whose content changed are repositioned here; surviving
	// unchanged documents keep their relative order (their sort keys
	// did not change), so moving the changed ones suffices.
	moveTo := func(doc resultDoc, i int) {
		j := slices.IndexFunc(working, func(w resultDoc) bool { return w.id == doc.id })
		changes = append(changes, docbind.DocChange{
			Kind:     docbind.ChangeModified,
			Doc:      snapshotOf(doc),
			OldIndex: j,
			NewIndex: i,
		})
		if j == i {
			working[i] = doc
			return
		}
		working = slices.Delete(working, j, j+1)
		working = slices.Insert(working, i, doc)
	}

	oldCanon := make(map[string]string, len(old))
	for _, doc := range old {
		oldCanon[doc.id] = doc.canon
	}
	for i, doc := range new {
		if canon, existed := oldCanon[doc.id]; existed && canon != doc.canon {
			moveTo(doc, i)
		}
	}

	// Residual fix-up. Should be empty; repositions anything still out
	// of place so replaying the events always reproduces the new list.
	for i, doc := range new {
		if working[i].id != doc.id {
			moveTo(doc, i)
		}
	}

	return changes
}
