package docbind

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeHost is a recording Component for binder tests.
type fakeHost struct {
	def     *Definition
	values  map[string]any
	renders []string
}

func newFakeHost(def *Definition) *fakeHost {
	return &fakeHost{def: def, values: make(map[string]any)}
}

func (h *fakeHost) Definition() *Definition    { return h.def }
func (h *fakeHost) Get(name string) any        { return h.values[name] }
func (h *fakeHost) Set(name string, value any) { h.values[name] = value }
func (h *fakeHost) RequestRender(name string)  { h.renders = append(h.renders, name) }

// fakeClient is a scriptable in-test database client. Tests deliver
// snapshots by hand through the resolved references.
type fakeClient struct {
	docs  map[string]*fakeDocRef
	colls map[string]*fakeCollRef
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		docs:  make(map[string]*fakeDocRef),
		colls: make(map[string]*fakeCollRef),
	}
}

func (c *fakeClient) Doc(path string) DocumentRef {
	if r, ok := c.docs[path]; ok {
		return r
	}
	r := &fakeDocRef{path: path}
	c.docs[path] = r
	return r
}

func (c *fakeClient) Collection(path string) CollectionRef {
	if r, ok := c.colls[path]; ok {
		return r
	}
	r := &fakeCollRef{path: path}
	c.colls[path] = r
	return r
}

type docListener struct {
	fn       func(DocumentSnapshot)
	unsubbed int
}

type fakeDocRef struct {
	path       string
	listeners  []*docListener
	subscribes int

	// onSub, when set, is delivered synchronously inside Snapshots,
	// before the unsubscribe handle is returned.
	onSub DocumentSnapshot
}

func (r *fakeDocRef) Path() string { return r.path }

func (r *fakeDocRef) Snapshots(fn func(DocumentSnapshot)) Unsubscribe {
	l := &docListener{fn: fn}
	r.listeners = append(r.listeners, l)
	r.subscribes++
	if r.onSub != nil {
		fn(r.onSub)
	}
	return func() { l.unsubbed++ }
}

// deliver sends a snapshot to every still-subscribed listener.
func (r *fakeDocRef) deliver(snap DocumentSnapshot) {
	for _, l := range r.listeners {
		if l.unsubbed == 0 {
			l.fn(snap)
		}
	}
}

// forceDeliver sends a snapshot to every listener ever registered,
// simulating a misbehaving client that keeps calling back after
// unsubscribe.
func (r *fakeDocRef) forceDeliver(snap DocumentSnapshot) {
	for _, l := range r.listeners {
		l.fn(snap)
	}
}

// liveListeners counts listeners whose unsubscribe has not been
// invoked.
func (r *fakeDocRef) liveListeners() int {
	n := 0
	for _, l := range r.listeners {
		if l.unsubbed == 0 {
			n++
		}
	}
	return n
}

// totalUnsubs counts unsubscribe invocations across all listeners.
func (r *fakeDocRef) totalUnsubs() int {
	n := 0
	for _, l := range r.listeners {
		n += l.unsubbed
	}
	return n
}

type queryListener struct {
	fn       func(QuerySnapshot)
	unsubbed int
}

type fakeCollRef struct {
	path       string
	listeners  []*queryListener
	subscribes int

	// lastQuery records the derived query Snapshots was last called
	// through; nil means the raw collection reference was used.
	lastQuery *fakeQuery

	onSub QuerySnapshot
}

func (r *fakeCollRef) Path() string { return r.path }

func (r *fakeCollRef) Where(field, op string, value any) Query {
	return (&fakeQuery{root: r}).Where(field, op, value)
}

func (r *fakeCollRef) OrderBy(field string, desc bool) Query {
	return (&fakeQuery{root: r}).OrderBy(field, desc)
}

func (r *fakeCollRef) Limit(n int) Query {
	return (&fakeQuery{root: r}).Limit(n)
}

func (r *fakeCollRef) Snapshots(fn func(QuerySnapshot)) Unsubscribe {
	r.lastQuery = nil
	return r.subscribe(fn)
}

func (r *fakeCollRef) subscribe(fn func(QuerySnapshot)) Unsubscribe {
	l := &queryListener{fn: fn}
	r.listeners = append(r.listeners, l)
	r.subscribes++
	if r.onSub != nil {
		fn(r.onSub)
	}
	return func() { l.unsubbed++ }
}

func (r *fakeCollRef) deliver(snap QuerySnapshot) {
	for _, l := range r.listeners {
		if l.unsubbed == 0 {
			l.fn(snap)
		}
	}
}

func (r *fakeCollRef) liveListeners() int {
	n := 0
	for _, l := range r.listeners {
		if l.unsubbed == 0 {
			n++
		}
	}
	return n
}

type fakeQuery struct {
	root     *fakeCollRef
	wheres   []string
	orderBys []string
	limit    int
}

func (q *fakeQuery) Where(field, op string, value any) Query {
	q.wheres = append(q.wheres, field+op)
	_ = value
	return q
}

func (q *fakeQuery) OrderBy(field string, desc bool) Query {
	dir := "asc"
	if desc {
		dir = "desc"
	}
	q.orderBys = append(q.orderBys, field+" "+dir)
	return q
}

func (q *fakeQuery) Limit(n int) Query {
	q.limit = n
	return q
}

func (q *fakeQuery) Snapshots(fn func(QuerySnapshot)) Unsubscribe {
	q.root.lastQuery = q
	return q.root.subscribe(fn)
}

// fakeDocSnap is a scriptable document snapshot.
type fakeDocSnap struct {
	id        string
	exists    bool
	data      map[string]any
	fromCache bool
}

func (s fakeDocSnap) ID() string      { return s.id }
func (s fakeDocSnap) Exists() bool    { return s.exists }
func (s fakeDocSnap) FromCache() bool { return s.fromCache }

func (s fakeDocSnap) Data() map[string]any {
	if !s.exists {
		return nil
	}
	return s.data
}

// fakeQuerySnap is a scriptable query snapshot.
type fakeQuerySnap struct {
	docs      []DocumentSnapshot
	changes   []DocChange
	fromCache bool
}

func (s fakeQuerySnap) Docs() []DocumentSnapshot { return s.docs }
func (s fakeQuerySnap) Changes() []DocChange     { return s.changes }
func (s fakeQuerySnap) FromCache() bool          { return s.fromCache }

func existingDoc(id string, data map[string]any) fakeDocSnap {
	return fakeDocSnap{id: id, exists: true, data: data}
}

// newTestBinder builds a binder on the fake client with logs
// suppressed.
func newTestBinder(t *testing.T, def *Definition, client Client, opts ...BinderOption) (*Binder, *fakeHost) {
	t.Helper()

	host := newFakeHost(def)
	opts = append([]BinderOption{
		WithClient(client),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	b, err := NewBinder(host, opts...)
	require.NoError(t, err)
	return b, host
}
