// Package compiler turns declarative CUE component definitions into
// docbind property tables.
//
// A definition file declares components under a top-level "component"
// struct:
//
//	component: UserCard: {
//		extends: "BaseCard"
//		properties: {
//			user: {
//				doc:      "users/{uid}"
//				type:     "Object"
//				live:     true
//				observes: ["refreshToken"]
//			}
//			messages: {
//				collection: "rooms/{roomId}/messages"
//				type:       "Array"
//				query: {
//					where:   [{field: "pinned", op: "==", value: true}]
//					orderBy: [{field: "ts", desc: true}]
//					limit:   50
//				}
//			}
//		}
//	}
//
// Compilation validates the same rules the binder enforces at attach
// (exactly one of doc|collection, doc implies Object, collection
// implies Array) so a bad definition fails with a source position
// instead of at runtime.
package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/docbind"
)

// CompileString compiles CUE source into component definitions, keyed
// by component name. Extends links are resolved across the compiled
// set; a reference to a component not in the set is an error.
func CompileString(src string) (map[string]*docbind.Definition, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src)
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileComponents(v)
}

// CompileComponents extracts every component under the top-level
// "component" struct of a CUE value.
func CompileComponents(v cue.Value) (map[string]*docbind.Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	compVal := v.LookupPath(cue.ParsePath("component"))
	if !compVal.Exists() {
		return nil, &CompileError{
			Field:   "component",
			Message: "no component definitions found",
			Pos:     v.Pos(),
		}
	}

	iter, err := compVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	defs := make(map[string]*docbind.Definition)
	extends := make(map[string]string)
	positions := make(map[string]token.Pos)
	for iter.Next() {
		name := iter.Label()
		def, base, err := compileComponent(name, iter.Value())
		if err != nil {
			return nil, err
		}
		defs[name] = def
		if base != "" {
			extends[name] = base
		}
		positions[name] = iter.Value().Pos()
	}

	if err := linkExtends(defs, extends, positions); err != nil {
		return nil, err
	}
	return defs, nil
}

// compileComponent parses one component struct. The base component
// name (extends) is returned unresolved; linking happens once the
// whole set is parsed.
func compileComponent(name string, v cue.Value) (*docbind.Definition, string, error) {
	def := &docbind.Definition{
		Name:       name,
		Properties: make(map[string]docbind.Options),
	}

	var base string
	extVal := v.LookupPath(cue.ParsePath("extends"))
	if extVal.Exists() {
		s, err := extVal.String()
		if err != nil {
			return nil, "", formatCUEError(err)
		}
		base = s
	}

	propsVal := v.LookupPath(cue.ParsePath("properties"))
	if !propsVal.Exists() {
		return def, base, nil
	}

	propIter, err := propsVal.Fields()
	if err != nil {
		return nil, "", formatCUEError(err)
	}
	for propIter.Next() {
		propName := propIter.Label()
		opts, err := compileOptions(name, propName, propIter.Value())
		if err != nil {
			return nil, "", err
		}
		def.Properties[propName] = opts
	}

	return def, base, nil
}

// compileOptions parses one property declaration and enforces the
// binding consistency rules.
func compileOptions(component, property string, v cue.Value) (docbind.Options, error) {
	field := func(sub string) string {
		return fmt.Sprintf("component.%s.properties.%s.%s", component, property, sub)
	}

	// Zero-value defaults match direct Options construction: a
	// declaration that omits live gets a one-shot binding.
	opts := docbind.Options{}

	if docVal := v.LookupPath(cue.ParsePath("doc")); docVal.Exists() {
		s, err := docVal.String()
		if err != nil {
			return opts, formatCUEError(err)
		}
		opts.Doc = s
	}
	if collVal := v.LookupPath(cue.ParsePath("collection")); collVal.Exists() {
		s, err := collVal.String()
		if err != nil {
			return opts, formatCUEError(err)
		}
		opts.Collection = s
	}

	if typeVal := v.LookupPath(cue.ParsePath("type")); typeVal.Exists() {
		s, err := typeVal.String()
		if err != nil {
			return opts, formatCUEError(err)
		}
		switch s {
		case string(docbind.TypeObject):
			opts.Type = docbind.TypeObject
		case string(docbind.TypeArray):
			opts.Type = docbind.TypeArray
		default:
			return opts, &CompileError{
				Field:   field("type"),
				Message: fmt.Sprintf("unknown type %q (want Object or Array)", s),
				Pos:     typeVal.Pos(),
			}
		}
	}

	if liveVal := v.LookupPath(cue.ParsePath("live")); liveVal.Exists() {
		b, err := liveVal.Bool()
		if err != nil {
			return opts, formatCUEError(err)
		}
		opts.Live = b
	}

	if ncVal := v.LookupPath(cue.ParsePath("noCache")); ncVal.Exists() {
		b, err := ncVal.Bool()
		if err != nil {
			return opts, formatCUEError(err)
		}
		opts.NoCache = b
	}

	if obsVal := v.LookupPath(cue.ParsePath("observes")); obsVal.Exists() {
		iter, err := obsVal.List()
		if err != nil {
			return opts, formatCUEError(err)
		}
		for iter.Next() {
			s, err := iter.Value().String()
			if err != nil {
				return opts, formatCUEError(err)
			}
			opts.Observes = append(opts.Observes, s)
		}
	}

	queryVal := v.LookupPath(cue.ParsePath("query"))
	if queryVal.Exists() {
		if opts.Collection == "" {
			return opts, &CompileError{
				Field:   field("query"),
				Message: "query requires a collection binding",
				Pos:     queryVal.Pos(),
			}
		}
		transform, err := compileQuery(field("query"), queryVal)
		if err != nil {
			return opts, err
		}
		opts.Query = transform
	}

	if !opts.Bound() {
		return opts, nil
	}

	// Same rules newConfig enforces; failing here carries a source
	// position instead of a runtime config error.
	if opts.Doc != "" && opts.Collection != "" {
		return opts, &CompileError{
			Field:   field("doc"),
			Message: "doc and collection are mutually exclusive",
			Pos:     v.Pos(),
		}
	}
	if opts.Doc != "" && opts.Type != docbind.TypeObject {
		return opts, &CompileError{
			Field:   field("type"),
			Message: "doc binding requires type Object",
			Pos:     v.Pos(),
		}
	}
	if opts.Collection != "" && opts.Type != docbind.TypeArray {
		return opts, &CompileError{
			Field:   field("type"),
			Message: "collection binding requires type Array",
			Pos:     v.Pos(),
		}
	}

	return opts, nil
}

// linkExtends resolves base-component names into Extends pointers and
// rejects unknown targets and inheritance cycles.
func linkExtends(defs map[string]*docbind.Definition, extends map[string]string, positions map[string]token.Pos) error {
	for name, base := range extends {
		target, ok := defs[base]
		if !ok {
			return &CompileError{
				Field:   fmt.Sprintf("component.%s.extends", name),
				Message: fmt.Sprintf("unknown base component %q", base),
				Pos:     positions[name],
			}
		}
		defs[name].Extends = target
	}

	for name := range extends {
		seen := map[string]bool{}
		for cur := name; ; {
			if seen[cur] {
				return &CompileError{
					Field:   fmt.Sprintf("component.%s.extends", name),
					Message: "inheritance cycle detected",
					Pos:     positions[name],
				}
			}
			seen[cur] = true
			base, ok := extends[cur]
			if !ok {
				break
			}
			cur = base
		}
	}
	return nil
}

// valueRefPrefix marks a where-clause value as a host property
// reference, resolved at query-build time.
const valueRefPrefix = "$"

type whereClause struct {
	field string
	op    string
	value any
}

type orderClause struct {
	field string
	desc  bool
}

// compileQuery parses query directives into a transform. Property
// references ("$propName" values) read the host component at each
// rebuild, so the transform stays valid as instance state changes.
func compileQuery(field string, v cue.Value) (docbind.QueryTransform, error) {
	var wheres []whereClause
	var orders []orderClause
	limit := 0

	if whereVal := v.LookupPath(cue.ParsePath("where")); whereVal.Exists() {
		iter, err := whereVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			clause, err := compileWhere(field, iter.Value())
			if err != nil {
				return nil, err
			}
			wheres = append(wheres, clause)
		}
	}

	if orderVal := v.LookupPath(cue.ParsePath("orderBy")); orderVal.Exists() {
		iter, err := orderVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			ov := iter.Value()
			f, err := ov.LookupPath(cue.ParsePath("field")).String()
			if err != nil {
				return nil, formatCUEError(err)
			}
			clause := orderClause{field: f}
			if descVal := ov.LookupPath(cue.ParsePath("desc")); descVal.Exists() {
				d, err := descVal.Bool()
				if err != nil {
					return nil, formatCUEError(err)
				}
				clause.desc = d
			}
			orders = append(orders, clause)
		}
	}

	if limitVal := v.LookupPath(cue.ParsePath("limit")); limitVal.Exists() {
		n, err := limitVal.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if n <= 0 {
			return nil, &CompileError{
				Field:   field + ".limit",
				Message: fmt.Sprintf("limit must be positive, got %d", n),
				Pos:     limitVal.Pos(),
			}
		}
		limit = int(n)
	}

	return func(q docbind.Query, host docbind.Component) docbind.Query {
		for _, w := range wheres {
			value := w.value
			if ref, ok := value.(string); ok && strings.HasPrefix(ref, valueRefPrefix) {
				value = host.Get(strings.TrimPrefix(ref, valueRefPrefix))
			}
			q = q.Where(w.field, w.op, value)
		}
		for _, o := range orders {
			q = q.OrderBy(o.field, o.desc)
		}
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	}, nil
}

var validOps = map[string]bool{
	"==": true, "!=": true,
	"<": true, "<=": true,
	">": true, ">=": true,
}

func compileWhere(field string, v cue.Value) (whereClause, error) {
	var clause whereClause

	f, err := v.LookupPath(cue.ParsePath("field")).String()
	if err != nil {
		return clause, formatCUEError(err)
	}
	clause.field = f

	op, err := v.LookupPath(cue.ParsePath("op")).String()
	if err != nil {
		return clause, formatCUEError(err)
	}
	if !validOps[op] {
		return clause, &CompileError{
			Field:   field + ".where",
			Message: fmt.Sprintf("unsupported operator %q", op),
			Pos:     v.Pos(),
		}
	}
	clause.op = op

	valVal := v.LookupPath(cue.ParsePath("value"))
	if !valVal.Exists() {
		return clause, &CompileError{
			Field:   field + ".where",
			Message: "where clause requires a value",
			Pos:     v.Pos(),
		}
	}
	clause.value, err = extractValue(valVal)
	if err != nil {
		return clause, err
	}

	return clause, nil
}

// extractValue converts a CUE scalar into the Go value passed to the
// query filter.
func extractValue(v cue.Value) (any, error) {
	switch v.Kind() {
	case cue.StringKind:
		return v.String()
	case cue.IntKind:
		return v.Int64()
	case cue.FloatKind, cue.NumberKind:
		return v.Float64()
	case cue.BoolKind:
		return v.Bool()
	case cue.NullKind:
		return nil, nil
	default:
		return nil, &CompileError{
			Field:   "value",
			Message: fmt.Sprintf("unsupported value kind: %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError is a compilation failure with a source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
