package docbind

import (
	"fmt"
	"slices"
)

// onDocumentSnapshot handles one document snapshot delivery for a
// bound property. Stale deliveries (token mismatch after teardown or
// one-shot detach) are dropped. Cache-origin snapshots are skipped
// entirely when the binding declares noCache: the listener keeps
// running, no value and no ready-flag change occur.
func (b *Binder) onDocumentSnapshot(name string, cfg *Config, token string, snap DocumentSnapshot) {
	st := b.state[name]
	if st == nil || st.token != token {
		b.log.Debug("stale document snapshot dropped", "property", name, "token", token)
		return
	}
	if cfg.NoCacheAssign && snap.FromCache() {
		b.log.Debug("cache-origin snapshot skipped", "property", name, "token", token)
		return
	}

	b.assignDocument(name, snap)

	st.ready = true
	b.host.Set(name+ReadySuffix, true)

	if !cfg.Live {
		b.autoUnsubscribe(name, st)
	}
}

// onQuerySnapshot handles one collection snapshot delivery, with the
// same gating as onDocumentSnapshot.
func (b *Binder) onQuerySnapshot(name string, cfg *Config, token string, snap QuerySnapshot) {
	st := b.state[name]
	if st == nil || st.token != token {
		b.log.Debug("stale query snapshot dropped", "property", name, "token", token)
		return
	}
	if cfg.NoCacheAssign && snap.FromCache() {
		b.log.Debug("cache-origin snapshot skipped", "property", name, "token", token)
		return
	}

	b.assignCollection(name, snap)

	st.ready = true
	b.host.Set(name+ReadySuffix, true)

	if !cfg.Live {
		b.autoUnsubscribe(name, st)
	}
}

// autoUnsubscribe implements one-shot semantics: the value has been
// assigned once and the subscription self-terminates. The reference
// and ready flag are NOT cleared; only explicit teardown clears them.
// Clearing the token retires the subscription so any further delivery
// is dropped as stale.
func (b *Binder) autoUnsubscribe(name string, st *bindingState) {
	if st.unsubscribe != nil {
		unsub := st.unsubscribe
		st.unsubscribe = nil
		st.token = ""
		unsub()
		b.log.Debug("one-shot binding detached", "property", name)
		return
	}

	// The initial snapshot arrived synchronously, before the handle
	// was stored; storeHandle invokes and discards it.
	st.autoDetach = true
}

// assignDocument replaces the bound property wholesale with the
// snapshot's resolved value: the document fields with the identifier
// injected under IDKey, or nil if the document does not exist.
func (b *Binder) assignDocument(name string, snap DocumentSnapshot) {
	if !snap.Exists() {
		b.host.Set(name, nil)
		b.host.RequestRender(name)
		return
	}

	b.host.Set(name, documentValue(snap))
	b.host.RequestRender(name)
}

// assignCollection reconciles a query snapshot onto the bound list.
//
// When every document in the snapshot is reported as changed (first
// load, or a full requery), the list is replaced wholesale in snapshot
// order. Otherwise, and only when the current value is already an
// ordered list, the incremental change set is applied splice-style in
// the order the client reports it, so unrelated local entries survive.
// An index-moving modification is a two-step remove-then-insert: the
// remove must happen first because the insert index is reported
// against post-removal positions.
//
// An unknown change kind is a programming-error-class failure and
// panics.
func (b *Binder) assignCollection(name string, snap QuerySnapshot) {
	docs := snap.Docs()
	changes := snap.Changes()

	if len(changes) == len(docs) {
		list := make([]map[string]any, len(docs))
		for i, d := range docs {
			list[i] = documentValue(d)
		}
		b.host.Set(name, list)
		b.host.RequestRender(name)
		return
	}

	cur, ok := b.host.Get(name).([]map[string]any)
	if !ok {
		// Stale or foreign value: never diff into it.
		b.log.Debug("incremental changes skipped: current value is not a list", "property", name)
		return
	}

	for _, ch := range changes {
		switch ch.Kind {
		case ChangeAdded:
			cur = slices.Insert(cur, ch.NewIndex, documentValue(ch.Doc))
		case ChangeRemoved:
			cur = slices.Delete(cur, ch.OldIndex, ch.OldIndex+1)
		case ChangeModified:
			if ch.OldIndex == ch.NewIndex {
				cur[ch.OldIndex] = documentValue(ch.Doc)
			} else {
				cur = slices.Delete(cur, ch.OldIndex, ch.OldIndex+1)
				cur = slices.Insert(cur, ch.NewIndex, documentValue(ch.Doc))
			}
		default:
			panic(&BindError{
				Code:     ErrCodeUnknownChange,
				Message:  fmt.Sprintf("unknown change kind %d", int(ch.Kind)),
				Property: name,
			})
		}
	}

	b.host.Set(name, cur)
	b.host.RequestRender(name)
}

// documentValue transforms a document snapshot into a plain mapping
// with the identifier injected under IDKey.
func documentValue(snap DocumentSnapshot) map[string]any {
	data := snap.Data()
	doc := make(map[string]any, len(data)+1)
	for k, v := range data {
		doc[k] = v
	}
	doc[IDKey] = snap.ID()
	return doc
}
