package memdb

import (
	"fmt"
	"slices"
	"strings"
)

// querySpec describes a compiled collection query. Parent identifies
// the collection; filters, orders, and limit narrow and arrange the
// result set.
type querySpec struct {
	parent  string
	filters []filter
	orders  []order
	limit   int
}

type filter struct {
	field string
	op    string
	value any
}

type order struct {
	field string
	desc  bool
}

func (s querySpec) clone() querySpec {
	return querySpec{
		parent:  s.parent,
		filters: slices.Clone(s.filters),
		orders:  slices.Clone(s.orders),
		limit:   s.limit,
	}
}

// resultDoc is one row of an evaluated query. canon is the stored
// canonical JSON, used for cheap equality during diffing.
type resultDoc struct {
	id    string
	canon string
	data  map[string]any
}

// evalQuery runs the query against the current database state.
// Callers hold d.mu.
//
// CRITICAL INVARIANT: results are totally ordered. The requested
// orderings apply first; doc_id breaks all remaining ties, so two
// evaluations of the same spec over the same data always return the
// same sequence. Diffing depends on this.
func (d *DB) evalQuery(spec querySpec) ([]resultDoc, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT doc_id, data FROM documents WHERE parent = ?`)
	params := []any{spec.parent}

	for _, f := range spec.filters {
		fmt.Fprintf(&sb, ` AND json_extract(data, '$.%s') %s ?`, f.field, f.op)
		params = append(params, filterParam(f.value))
	}

	sb.WriteString(` ORDER BY `)
	for _, o := range spec.orders {
		dir := "ASC"
		if o.desc {
			dir = "DESC"
		}
		fmt.Fprintf(&sb, `json_extract(data, '$.%s') %s, `, o.field, dir)
	}
	sb.WriteString(`doc_id ASC`)

	if spec.limit > 0 {
		sb.WriteString(` LIMIT ?`)
		params = append(params, spec.limit)
	}

	rows, err := d.db.Query(sb.String(), params...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	var results []resultDoc
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		data, err := unmarshalData(raw)
		if err != nil {
			return nil, fmt.Errorf("decode document %s: %w", id, err)
		}
		results = append(results, resultDoc{id: id, canon: raw, data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return results, nil
}

// filterParam maps a filter value to its SQL parameter. Booleans are
// compared as the 0/1 integers json_extract yields for JSON booleans.
func filterParam(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}
