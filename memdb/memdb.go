package memdb

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/docbind"
)

//go:embed schema.sql
var schemaSQL string

// DB is an embedded document database implementing docbind.Client.
//
// Writes are serialized by an internal lock; snapshot callbacks are
// invoked synchronously on the writing goroutine after the lock is
// released, so a callback may freely subscribe, unsubscribe, or write
// again.
type DB struct {
	db    *sql.DB
	clock revClock
	log   *slog.Logger

	// initialFromCache flags the snapshot delivered at subscription
	// time as cache-origin.
	initialFromCache bool

	mu             sync.Mutex
	docListeners   map[string][]*docListener
	queryListeners []*queryListener
}

type docListener struct {
	path    string
	fn      func(docbind.DocumentSnapshot)
	removed bool
}

type queryListener struct {
	spec    querySpec
	fn      func(docbind.QuerySnapshot)
	last    []resultDoc
	removed bool
}

// Option configures a DB.
type Option func(*DB)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(d *DB) { d.log = log }
}

// WithInitialFromCache flags the snapshot delivered at subscription
// time as cache-origin (not yet confirmed by the server), the way a
// persistent-cache client would deliver its first result. Snapshots
// triggered by committed writes are always server-confirmed.
func WithInitialFromCache() Option {
	return func(d *DB) { d.initialFromCache = true }
}

// Open creates or opens a document database at the given path.
// Use ":memory:" for an isolated in-memory database.
//
// The database is configured with WAL mode, NORMAL synchronous mode, a
// 5-second busy timeout, and a single connection (SQLite supports one
// writer at a time). Idempotent: safe to call on an existing file.
func Open(path string, opts ...Option) (*DB, error) {
	sqldb, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := sqldb.Ping(); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// Single writer avoids SQLITE_BUSY; one idle connection stays warm.
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)

	if err := applyPragmas(sqldb); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if _, err := sqldb.Exec(schemaSQL); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	d := &DB{
		db:           sqldb,
		docListeners: make(map[string][]*docListener),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = slog.Default()
	}

	return d, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database. Registered listeners are dropped without
// further deliveries.
func (d *DB) Close() error {
	d.mu.Lock()
	d.docListeners = make(map[string][]*docListener)
	d.queryListeners = nil
	d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Doc implements docbind.Client. The path must address a document: an
// even number of non-empty slash-separated segments. An invalid path
// is a caller bug and panics.
func (d *DB) Doc(path string) docbind.DocumentRef {
	mustValidPath(path, true)
	return documentRef{db: d, path: path}
}

// Collection implements docbind.Client. The path must address a
// collection: an odd number of non-empty slash-separated segments.
func (d *DB) Collection(path string) docbind.CollectionRef {
	mustValidPath(path, false)
	return collectionRef{query{db: d, spec: querySpec{parent: path}}}
}

// mustValidPath panics unless path has non-empty segments and the
// required parity (documents even, collections odd).
func mustValidPath(path string, doc bool) {
	segments := strings.Split(path, "/")
	for _, s := range segments {
		if s == "" {
			panic(fmt.Sprintf("memdb: empty segment in path %q", path))
		}
	}
	even := len(segments)%2 == 0
	if doc && !even {
		panic(fmt.Sprintf("memdb: %q is not a document path (odd segment count)", path))
	}
	if !doc && even {
		panic(fmt.Sprintf("memdb: %q is not a collection path (even segment count)", path))
	}
}

// parentOf returns the collection path containing a document path.
func parentOf(docPath string) string {
	i := strings.LastIndex(docPath, "/")
	return docPath[:i]
}

// docIDOf returns the final segment of a document path.
func docIDOf(docPath string) string {
	i := strings.LastIndex(docPath, "/")
	return docPath[i+1:]
}

// subscribeDoc registers a document listener and synchronously
// delivers the current snapshot (exists=false for a missing document).
func (d *DB) subscribeDoc(path string, fn func(docbind.DocumentSnapshot)) docbind.Unsubscribe {
	l := &docListener{path: path, fn: fn}

	d.mu.Lock()
	d.docListeners[path] = append(d.docListeners[path], l)
	initial, err := d.readDoc(path, d.initialFromCache)
	d.mu.Unlock()

	if err != nil {
		d.log.Error("initial document read failed", "path", path, "error", err)
	} else {
		fn(initial)
	}

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		l.removed = true
		listeners := d.docListeners[path]
		for i, cand := range listeners {
			if cand == l {
				d.docListeners[path] = append(listeners[:i:i], listeners[i+1:]...)
				break
			}
		}
	}
}

// subscribeQuery registers a query listener and synchronously delivers
// the current result set with every document reported as added.
func (d *DB) subscribeQuery(spec querySpec, fn func(docbind.QuerySnapshot)) docbind.Unsubscribe {
	l := &queryListener{spec: spec, fn: fn}

	d.mu.Lock()
	results, err := d.evalQuery(spec)
	if err == nil {
		l.last = results
		d.queryListeners = append(d.queryListeners, l)
	}
	fromCache := d.initialFromCache
	d.mu.Unlock()

	if err != nil {
		d.log.Error("initial query evaluation failed", "parent", spec.parent, "error", err)
		return func() {}
	}

	fn(initialSnapshot(results, fromCache))

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		l.removed = true
		for i, cand := range d.queryListeners {
			if cand == l {
				d.queryListeners = append(d.queryListeners[:i:i], d.queryListeners[i+1:]...)
				break
			}
		}
	}
}

// notify re-evaluates listeners affected by a committed write at
// docPath and delivers the resulting snapshots. Deliveries happen
// after the lock is released; listeners unsubscribed in the meantime
// (e.g. by an earlier delivery in the same batch) are skipped.
//
// ERROR HANDLING: a query re-evaluation failure is logged with full
// context and the listener is skipped; delivery to the remaining
// listeners continues.
func (d *DB) notify(docPath string) {
	type docDelivery struct {
		l    *docListener
		snap docbind.DocumentSnapshot
	}
	type queryDelivery struct {
		l    *queryListener
		snap docbind.QuerySnapshot
	}

	d.mu.Lock()

	var docDeliveries []docDelivery
	if listeners := d.docListeners[docPath]; len(listeners) > 0 {
		snap, err := d.readDoc(docPath, false)
		if err != nil {
			d.log.Error("document read failed", "path", docPath, "error", err)
		} else {
			for _, l := range listeners {
				docDeliveries = append(docDeliveries, docDelivery{l: l, snap: snap})
			}
		}
	}

	parent := parentOf(docPath)
	var queryDeliveries []queryDelivery
	for _, l := range d.queryListeners {
		if l.spec.parent != parent {
			continue
		}
		results, err := d.evalQuery(l.spec)
		if err != nil {
			d.log.Error("query evaluation failed",
				"parent", l.spec.parent,
				"path", docPath,
				"error", err,
			)
			continue
		}
		changes := diffResults(l.last, results)
		if len(changes) == 0 {
			continue
		}
		l.last = results
		queryDeliveries = append(queryDeliveries, queryDelivery{
			l:    l,
			snap: changedSnapshot(results, changes),
		})
	}

	d.mu.Unlock()

	for _, del := range docDeliveries {
		if !del.l.removed {
			del.l.fn(del.snap)
		}
	}
	for _, del := range queryDeliveries {
		if !del.l.removed {
			del.l.fn(del.snap)
		}
	}
}
