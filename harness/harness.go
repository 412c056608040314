// Package harness runs declarative binding conformance scenarios.
//
// A scenario names a CUE component definition, seeds documents into a
// fresh in-memory database, attaches a binder to a tracing host
// component, drives property changes and document writes, and asserts
// on the final host state. Every host effect the binder produces is
// recorded in a trace with deterministic sequence numbers, so a
// scenario's trace can be compared byte-for-byte against a golden
// file.
//
// Determinism: each run uses a fresh in-memory database, a
// deterministic sequence clock, and sequential subscription tokens.
// Two runs of the same scenario produce identical traces.
package harness

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/docbind"
	"github.com/roach88/docbind/compiler"
	"github.com/roach88/docbind/internal/testutil"
	"github.com/roach88/docbind/memdb"
)

// traceHost is the component instance under test. It stores property
// values and records every Set and RequestRender the binder performs.
type traceHost struct {
	def    *docbind.Definition
	values map[string]any
	clock  *testutil.DeterministicClock
	result *Result
}

func (h *traceHost) Definition() *docbind.Definition { return h.def }

func (h *traceHost) Get(name string) any { return h.values[name] }

func (h *traceHost) Set(name string, value any) {
	h.values[name] = value
	h.result.Trace = append(h.result.Trace, TraceEvent{
		Type:     "set",
		Property: name,
		Value:    traceValue(value),
		Seq:      h.clock.Next(),
	})
}

func (h *traceHost) RequestRender(name string) {
	h.result.Trace = append(h.result.Trace, TraceEvent{
		Type:     "render",
		Property: name,
		Seq:      h.clock.Next(),
	})
}

// setValue stores a property value without tracing, for scenario-side
// property changes (those appear in the trace as set_property steps).
func (h *traceHost) setValue(name string, value any) {
	h.values[name] = value
}

// traceValue flattens database references to their path so traces
// serialize deterministically.
func traceValue(v any) any {
	if ref, ok := v.(interface{ Path() string }); ok {
		return ref.Path()
	}
	if list, ok := v.([]map[string]any); ok {
		flat := make([]any, len(list))
		for i, m := range list {
			flat[i] = m
		}
		return flat
	}
	return v
}

// Run executes a scenario and returns the result. Each scenario runs
// against a fresh in-memory database for isolation.
func Run(scenario *Scenario) (*Result, error) {
	var opts []memdb.Option
	opts = append(opts, memdb.WithLogger(discardLogger()))
	if scenario.FromCache {
		opts = append(opts, memdb.WithInitialFromCache())
	}
	db, err := memdb.Open(":memory:", opts...)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	src, err := os.ReadFile(scenario.Components)
	if err != nil {
		return nil, fmt.Errorf("read components file: %w", err)
	}
	defs, err := compiler.CompileString(string(src))
	if err != nil {
		return nil, fmt.Errorf("compile components: %w", err)
	}
	def, ok := defs[scenario.Component]
	if !ok {
		return nil, fmt.Errorf("component %q not found in %s", scenario.Component, scenario.Components)
	}

	for i, doc := range scenario.Seed {
		if err := db.Set(doc.Path, doc.Data); err != nil {
			return nil, fmt.Errorf("seed[%d]: %w", i, err)
		}
	}

	result := NewResult()
	host := &traceHost{
		def:    def,
		values: make(map[string]any),
		clock:  testutil.NewDeterministicClock(),
		result: result,
	}
	for name, value := range scenario.Initial {
		host.values[name] = value
	}

	binder, err := docbind.NewBinder(host,
		docbind.WithClient(db),
		docbind.WithTokenGenerator(testutil.NewSeqTokenGenerator("sub")),
		docbind.WithLogger(discardLogger()),
	)
	if err != nil {
		return nil, fmt.Errorf("create binder: %w", err)
	}
	if err := binder.Attach(); err != nil {
		return nil, fmt.Errorf("attach binder: %w", err)
	}

	if err := executeSteps(scenario, host, binder, db); err != nil {
		return nil, err
	}

	result.Final = make(map[string]any, len(host.values))
	for name, value := range host.values {
		result.Final[name] = value
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// executeSteps runs the scenario flow. Each step is traced before it
// executes, so the host effects it triggers follow it in the trace.
func executeSteps(scenario *Scenario, host *traceHost, binder *docbind.Binder, db *memdb.DB) error {
	result := host.result
	for i, step := range scenario.Steps {
		switch {
		case step.Set != nil:
			result.Trace = append(result.Trace, TraceEvent{
				Type:     "set_property",
				Property: step.Set.Property,
				Value:    step.Set.Value,
				Seq:      host.clock.Next(),
			})
			old := host.Get(step.Set.Property)
			host.setValue(step.Set.Property, step.Set.Value)
			if err := binder.PropertyChanged(step.Set.Property, old, step.Set.Value); err != nil {
				return fmt.Errorf("steps[%d]: property change: %w", i, err)
			}

		case step.Write != nil:
			result.Trace = append(result.Trace, TraceEvent{
				Type: "write",
				Path: step.Write.Path,
				Seq:  host.clock.Next(),
			})
			if err := db.Set(step.Write.Path, step.Write.Data); err != nil {
				return fmt.Errorf("steps[%d]: write: %w", i, err)
			}

		case step.Delete != nil:
			result.Trace = append(result.Trace, TraceEvent{
				Type: "delete",
				Path: step.Delete.Path,
				Seq:  host.clock.Next(),
			})
			if err := db.Delete(step.Delete.Path); err != nil {
				return fmt.Errorf("steps[%d]: delete: %w", i, err)
			}
		}
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
