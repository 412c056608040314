package harness

// TraceEvent is one entry in a scenario's execution trace: either a
// scenario step (write, delete, set_property) or a host-side effect
// observed through the tracing component (set, render).
type TraceEvent struct {
	// Type is one of "write", "delete", "set_property", "set",
	// "render".
	Type string `json:"type"`

	// Property names the affected host property (host effects and
	// set_property steps).
	Property string `json:"property,omitempty"`

	// Path is the document path (write and delete steps).
	Path string `json:"path,omitempty"`

	// Value carries the assigned value. Database references are
	// flattened to their path string; a nil assignment is omitted.
	Value any `json:"value,omitempty"`

	// Seq orders events. Assigned from a deterministic clock so the
	// same scenario always produces an identical trace.
	Seq int64 `json:"seq"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace contains all steps and observed host effects in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failure messages. Empty when Pass.
	Errors []string `json:"errors,omitempty"`

	// Final holds the host component's property values at the end of
	// the run, for assertions and debugging.
	Final map[string]any `json:"-"`
}

// NewResult creates a passing result to accumulate into.
func NewResult() *Result {
	return &Result{
		Pass:  true,
		Trace: []TraceEvent{},
	}
}

// AddError records an assertion failure and marks the result failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
