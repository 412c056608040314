package docbind

import (
	"fmt"
	"sync"
)

// Client is the narrow surface consumed from the remote document
// database. Implementations manage connections, transport, query
// execution, and snapshot delivery; docbind only resolves references
// and registers snapshot callbacks.
//
// The reference implementation for tests and demos is package memdb.
type Client interface {
	// Doc resolves a document reference at a slash-separated path
	// with an even number of segments (e.g. "users/alice").
	Doc(path string) DocumentRef

	// Collection resolves a collection reference at a path with an
	// odd number of segments (e.g. "users/alice/posts").
	Collection(path string) CollectionRef
}

// Unsubscribe cancels a snapshot subscription.
//
// Handles are exclusively owned: exactly one teardown or rebuild may
// invoke a handle, after which it must be discarded. Invoking a handle
// twice is a caller bug.
type Unsubscribe func()

// DocumentRef is a reference to a single document.
type DocumentRef interface {
	Path() string

	// Snapshots registers fn for snapshot delivery and returns the
	// cancellation handle. Registration is synchronous and
	// non-blocking; the initial snapshot may be delivered before
	// Snapshots returns.
	Snapshots(fn func(DocumentSnapshot)) Unsubscribe
}

// Query is a filterable, sortable, limitable collection query.
// The builder methods chain: each returns a derived query and leaves
// the receiver untouched.
type Query interface {
	// Where narrows the query to documents whose field satisfies
	// op ("==", "!=", "<", "<=", ">", ">=") against value.
	Where(field, op string, value any) Query

	// OrderBy sorts results by field, descending if desc.
	OrderBy(field string, desc bool) Query

	// Limit caps the number of results.
	Limit(n int) Query

	// Snapshots registers fn for snapshot delivery and returns the
	// cancellation handle.
	Snapshots(fn func(QuerySnapshot)) Unsubscribe
}

// CollectionRef is a reference to a collection. A bare collection
// reference is itself a query over all documents in the collection.
type CollectionRef interface {
	Path() string
	Query
}

// DocumentSnapshot is a point-in-time view of a single document.
type DocumentSnapshot interface {
	ID() string

	// Exists reports whether the document is present. Data on a
	// non-existent document returns nil.
	Exists() bool

	Data() map[string]any

	// FromCache reports whether the snapshot originates from a local
	// cache and has not yet been confirmed by the server.
	FromCache() bool
}

// QuerySnapshot is a point-in-time view of a query result set,
// carrying both the full ordered document list and the incremental
// changes since the previous snapshot delivered to this listener.
type QuerySnapshot interface {
	Docs() []DocumentSnapshot
	Changes() []DocChange
	FromCache() bool
}

// ChangeKind tags an incremental collection change.
type ChangeKind int

const (
	// ChangeAdded indicates a document entered the result set at NewIndex.
	ChangeAdded ChangeKind = iota + 1
	// ChangeRemoved indicates the document at OldIndex left the result set.
	ChangeRemoved
	// ChangeModified indicates the document changed; if OldIndex and
	// NewIndex differ it also moved within the result set.
	ChangeModified
)

// String returns the change kind name for logging.
func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeModified:
		return "modified"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// DocChange is one incremental change within a query snapshot.
// Indices are reported relative to the listener's result list as it
// evolves change by change: each change assumes all previous changes
// in the same snapshot have already been applied.
type DocChange struct {
	Kind     ChangeKind
	Doc      DocumentSnapshot
	OldIndex int // -1 for added
	NewIndex int // -1 for removed
}

// Process-wide default client. Configured once at startup, read
// thereafter, never mutated.
var (
	defaultClientMu sync.Mutex
	defaultClient   Client
)

// Configure installs the process-wide default client used by binders
// constructed without WithClient. It must be called at most once,
// before any binder is constructed; a second call panics.
func Configure(c Client) {
	defaultClientMu.Lock()
	defer defaultClientMu.Unlock()

	if defaultClient != nil {
		panic("docbind: Configure called twice")
	}
	defaultClient = c
}

// DefaultClient returns the configured default client, or nil if
// Configure has not been called.
func DefaultClient() Client {
	defaultClientMu.Lock()
	defer defaultClientMu.Unlock()
	return defaultClient
}
