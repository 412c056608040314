package memdb

import (
	"fmt"
	"regexp"

	"github.com/roach88/docbind"
)

type documentRef struct {
	db   *DB
	path string
}

func (r documentRef) Path() string { return r.path }

func (r documentRef) Snapshots(fn func(docbind.DocumentSnapshot)) docbind.Unsubscribe {
	return r.db.subscribeDoc(r.path, fn)
}

type collectionRef struct {
	query
}

func (r collectionRef) Path() string { return r.spec.parent }

// fieldPattern restricts filter and order fields to plain identifiers
// with optional dotted nesting. Fields are interpolated into SQL (as
// json_extract paths), so anything else is rejected outright.
var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

var validOps = map[string]string{
	"==": "=",
	"!=": "!=",
	"<":  "<",
	"<=": "<=",
	">":  ">",
	">=": ">=",
}

// query is an immutable query description. Each builder method copies
// the spec, so a derived query never mutates its parent.
type query struct {
	db   *DB
	spec querySpec
}

func (q query) Where(field, op string, value any) docbind.Query {
	if !fieldPattern.MatchString(field) {
		panic(fmt.Sprintf("memdb: invalid filter field %q", field))
	}
	sqlOp, ok := validOps[op]
	if !ok {
		panic(fmt.Sprintf("memdb: unsupported filter operator %q", op))
	}
	spec := q.spec.clone()
	spec.filters = append(spec.filters, filter{field: field, op: sqlOp, value: value})
	return query{db: q.db, spec: spec}
}

func (q query) OrderBy(field string, desc bool) docbind.Query {
	if !fieldPattern.MatchString(field) {
		panic(fmt.Sprintf("memdb: invalid order field %q", field))
	}
	spec := q.spec.clone()
	spec.orders = append(spec.orders, order{field: field, desc: desc})
	return query{db: q.db, spec: spec}
}

func (q query) Limit(n int) docbind.Query {
	if n <= 0 {
		panic(fmt.Sprintf("memdb: invalid limit %d", n))
	}
	spec := q.spec.clone()
	spec.limit = n
	return query{db: q.db, spec: spec}
}

func (q query) Snapshots(fn func(docbind.QuerySnapshot)) docbind.Unsubscribe {
	return q.db.subscribeQuery(q.spec, fn)
}
