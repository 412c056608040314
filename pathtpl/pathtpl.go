// Package pathtpl parses and stitches document path templates.
//
// A path template is a slash-separated database path in which segments
// of the form {name} stand for values supplied later from component
// properties:
//
//	users/{uid}/posts
//
// Parse splits a template into its literal runs and the ordered list of
// placeholder names between them. Stitch is the inverse: it interleaves
// literals with resolved values to produce a concrete path.
//
// The two functions round-trip: for any template and any complete value
// assignment, Stitch(tpl.Literals, values) equals the template with each
// {name} replaced textually by its value.
package pathtpl

import (
	"fmt"
	"strings"
)

// Separator is the path segment separator used by document paths.
const Separator = "/"

// Template is the parsed form of a path template.
//
// Literals always has exactly one more entry than Placeholders, so the
// two sequences strictly alternate literal/placeholder when rejoined.
// A template with no placeholders parses to a single literal.
type Template struct {
	// Literals are the literal runs between placeholders, in order.
	// Entries may be empty strings (adjacent placeholders, or a
	// placeholder at either end of the template).
	Literals []string

	// Placeholders are the placeholder names in order of appearance.
	Placeholders []string
}

// Parse splits a path template into literals and placeholder names.
//
// Placeholder names are taken verbatim from between { and }. The only
// syntactic requirement is that a name contains no nested "{" and that
// every "{" is eventually closed.
func Parse(template string) (Template, error) {
	t := Template{
		Literals: make([]string, 0, 2),
	}

	rest := template
	for {
		open := strings.Index(rest, "{")
		if open < 0 {
			t.Literals = append(t.Literals, rest)
			return t, nil
		}

		close := strings.Index(rest[open:], "}")
		if close < 0 {
			return Template{}, fmt.Errorf("pathtpl: unterminated placeholder in %q", template)
		}
		close += open

		name := rest[open+1 : close]
		if strings.Contains(name, "{") {
			return Template{}, fmt.Errorf("pathtpl: nested %q in placeholder of %q", "{", template)
		}

		t.Literals = append(t.Literals, rest[:open])
		t.Placeholders = append(t.Placeholders, name)
		rest = rest[close+1:]
	}
}

// Stitch recombines literal runs with resolved placeholder values.
//
// values must have exactly len(literals)-1 entries; entry i is placed
// between literals[i] and literals[i+1]. A nil value is treated as the
// empty string. Stitch is a pure function.
func Stitch(literals []string, values []any) string {
	if len(literals) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(literals[0])
	for i := 1; i < len(literals); i++ {
		if i-1 < len(values) {
			b.WriteString(ValueString(values[i-1]))
		}
		b.WriteString(literals[i])
	}
	return b.String()
}

// ValueString renders a placeholder value as a path segment.
// nil renders as the empty string; strings pass through unchanged;
// anything else uses its default formatting.
func ValueString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}
