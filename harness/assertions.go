package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/docbind"
)

// AssertionError is returned when an assertion fails, with enough
// context to debug the failure without re-running.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, event := range e.Trace {
		switch event.Type {
		case "set", "render":
			fmt.Fprintf(&buf, "  [%d] %s %s = %v\n", i+1, event.Type, event.Property, event.Value)
		default:
			fmt.Fprintf(&buf, "  [%d] %s %s%s\n", i+1, event.Type, event.Property, event.Path)
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against the result,
// returning one message per failure. All assertions are evaluated even
// after a failure, so a run reports everything wrong at once.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string
	for _, assertion := range assertions {
		var err error
		switch assertion.Type {
		case AssertValueEquals:
			err = assertValueEquals(result, assertion)
		case AssertReady:
			err = assertReady(result, assertion)
		case AssertRefPath:
			err = assertRefPath(result, assertion)
		case AssertListIDs:
			err = assertListIDs(result, assertion)
		case AssertSubscribeCount:
			err = assertSubscribeCount(result, assertion)
		default:
			err = fmt.Errorf("unknown assertion type %q", assertion.Type)
		}
		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}

func assertValueEquals(result *Result, assertion Assertion) error {
	actual := normalize(result.Final[assertion.Property])
	expected := normalize(assertion.Value)

	if !reflect.DeepEqual(actual, expected) {
		return &AssertionError{
			Type:     AssertValueEquals,
			Expected: fmt.Sprintf("%s = %v", assertion.Property, expected),
			Actual:   fmt.Sprintf("%v", actual),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertReady(result *Result, assertion Assertion) error {
	actual, _ := result.Final[assertion.Property+docbind.ReadySuffix].(bool)
	if actual != assertion.Ready {
		return &AssertionError{
			Type:     AssertReady,
			Expected: fmt.Sprintf("%s ready = %v", assertion.Property, assertion.Ready),
			Actual:   fmt.Sprintf("%v", actual),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertRefPath(result *Result, assertion Assertion) error {
	value := result.Final[assertion.Property+docbind.RefSuffix]
	ref, ok := value.(interface{ Path() string })
	if !ok {
		return &AssertionError{
			Type:     AssertRefPath,
			Expected: fmt.Sprintf("%s%s = reference to %s", assertion.Property, docbind.RefSuffix, assertion.Path),
			Actual:   fmt.Sprintf("no reference (%v)", value),
			Trace:    result.Trace,
		}
	}
	if ref.Path() != assertion.Path {
		return &AssertionError{
			Type:     AssertRefPath,
			Expected: assertion.Path,
			Actual:   ref.Path(),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertListIDs(result *Result, assertion Assertion) error {
	value := result.Final[assertion.Property]
	list, ok := value.([]map[string]any)
	if !ok {
		return &AssertionError{
			Type:     AssertListIDs,
			Expected: fmt.Sprintf("%s = list with ids %v", assertion.Property, assertion.IDs),
			Actual:   fmt.Sprintf("not a list (%T)", value),
			Trace:    result.Trace,
		}
	}

	var ids []string
	for _, doc := range list {
		id, _ := doc[docbind.IDKey].(string)
		ids = append(ids, id)
	}

	if !reflect.DeepEqual(ids, assertion.IDs) {
		return &AssertionError{
			Type:     AssertListIDs,
			Expected: fmt.Sprintf("ids %v", assertion.IDs),
			Actual:   fmt.Sprintf("ids %v", ids),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertSubscribeCount counts reference assignments in the trace; each
// successful rebuild assigns a non-nil reference exactly once.
func assertSubscribeCount(result *Result, assertion Assertion) error {
	refProp := assertion.Property + docbind.RefSuffix
	count := 0
	for _, event := range result.Trace {
		if event.Type == "set" && event.Property == refProp && event.Value != nil {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertSubscribeCount,
			Expected: fmt.Sprintf("%d subscriptions for %s", assertion.Count, assertion.Property),
			Actual:   fmt.Sprintf("%d", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

// normalize rewrites values into a single comparable shape: integers
// widen to int64 (YAML parses small integers as int, the database
// returns int64) and document lists flatten to []any.
func normalize(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, elem := range val {
			m[k] = normalize(elem)
		}
		return m
	case []any:
		list := make([]any, len(val))
		for i, elem := range val {
			list[i] = normalize(elem)
		}
		return list
	case []map[string]any:
		list := make([]any, len(val))
		for i, elem := range val {
			list[i] = normalize(elem)
		}
		return list
	default:
		return v
	}
}
