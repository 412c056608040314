package docbind

import (
	"strings"

	"github.com/roach88/docbind/pathtpl"
)

// Rebuild (re)establishes the named binding's subscription from the
// current positional dependency values (path placeholders followed by
// observed extra properties).
//
// State machine per bound property: Unbound -> PendingPath (some
// dependency values still missing) -> Subscribed (reference resolved,
// listener attached) -> Unbound (teardown or one-shot auto-detach).
//
// Any existing subscription is torn down first, unconditionally, so at
// most one handle is ever live per property. The rebuild proceeds only
// when every placeholder slot and every observed slot holds a defined
// value; partial readiness leaves the binding pending with reference
// and ready flag cleared. A stitched path ending in the path separator
// is malformed (an empty trailing segment) and also leaves the binding
// pending.
func (b *Binder) Rebuild(name string, args ...any) error {
	cfg := b.configs[name]
	if cfg == nil {
		return newConfigError("", name, "not a bound property")
	}

	b.Teardown(name)
	st := b.state[name]

	// Positional split into placeholder and observed slots. Arguments
	// beyond the declared dependency count are ignored; missing slots
	// read as absent.
	slots := make([]any, len(cfg.Placeholders)+len(cfg.Observes))
	copy(slots, args)

	placeholders := slots[:len(cfg.Placeholders)]
	observes := slots[len(cfg.Placeholders):]
	if countDefined(placeholders) < len(placeholders) || countDefined(observes) < len(observes) {
		b.log.Debug("binding pending: missing dependency values",
			"property", name,
			"deps", cfg.DepKey(),
		)
		return nil
	}

	path := pathtpl.Stitch(cfg.PathLiterals, placeholders)
	if strings.HasSuffix(path, pathtpl.Separator) {
		b.log.Debug("binding pending: partial path",
			"property", name,
			"path", path,
		)
		return nil
	}

	token := b.tokens.Generate()
	st.token = token

	switch cfg.Kind {
	case KindDocument:
		ref := b.client.Doc(path)
		st.ref = ref
		b.host.Set(name+RefSuffix, ref)

		unsub := ref.Snapshots(func(snap DocumentSnapshot) {
			b.onDocumentSnapshot(name, cfg, token, snap)
		})
		b.storeHandle(name, st, token, unsub)

	case KindCollection:
		ref := b.client.Collection(path)
		st.ref = ref
		b.host.Set(name+RefSuffix, ref)

		// The exposed reference stays pre-transform; only the
		// listener attaches to the transformed query.
		var q Query = ref
		if cfg.Query != nil {
			q = cfg.Query(ref, b.host)
		}
		unsub := q.Snapshots(func(snap QuerySnapshot) {
			b.onQuerySnapshot(name, cfg, token, snap)
		})
		b.storeHandle(name, st, token, unsub)

	default:
		return &BindError{
			Code:     ErrCodeUnknownKind,
			Message:  "config has neither document nor collection kind",
			Property: name,
		}
	}

	b.log.Info("subscription attached",
		"property", name,
		"kind", cfg.Kind.String(),
		"path", path,
		"live", cfg.Live,
		"token", token,
	)
	return nil
}

// storeHandle registers a freshly attached subscription's unsubscribe
// handle, honoring anything that happened during synchronous initial
// snapshot delivery: a teardown (token changed) or a one-shot
// completion (autoDetach) both mean the handle must be invoked now and
// discarded instead of stored.
func (b *Binder) storeHandle(name string, st *bindingState, token string, unsub Unsubscribe) {
	if st.autoDetach {
		st.autoDetach = false
		st.token = ""
		unsub()
		b.log.Debug("one-shot binding detached", "property", name, "token", token)
		return
	}
	if st.token != token {
		unsub()
		b.log.Debug("subscription superseded during delivery", "property", name, "token", token)
		return
	}
	st.unsubscribe = unsub
}

// countDefined counts non-absent values.
func countDefined(vals []any) int {
	n := 0
	for _, v := range vals {
		if v != nil {
			n++
		}
	}
	return n
}
