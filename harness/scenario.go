package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario defines a binding conformance scenario: a component
// definition, seed documents, a sequence of steps, and assertions on
// the final host state and trace.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names the golden
	// file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Components is the path to the CUE component-definition file,
	// relative to the scenario file.
	Components string `yaml:"components"`

	// Component names the compiled component to instantiate.
	Component string `yaml:"component"`

	// Initial holds host property values present before attach.
	Initial map[string]any `yaml:"initial,omitempty"`

	// Seed lists documents written before the component attaches.
	// Seed writes are not traced.
	Seed []SeedDoc `yaml:"seed,omitempty"`

	// FromCache opens the database so that subscription-time snapshots
	// are flagged cache-origin, exercising noCache gating.
	FromCache bool `yaml:"from_cache,omitempty"`

	// Steps is the main flow, executed after attach.
	Steps []Step `yaml:"steps,omitempty"`

	// Assertions validate the final state and trace.
	Assertions []Assertion `yaml:"assertions"`
}

// SeedDoc is a document written during setup.
type SeedDoc struct {
	Path string         `yaml:"path"`
	Data map[string]any `yaml:"data"`
}

// Step is a single scenario action. Exactly one of the three forms is
// set.
type Step struct {
	// Set changes a host property and notifies the binder.
	Set *SetStep `yaml:"set,omitempty"`

	// Write creates or replaces a document.
	Write *WriteStep `yaml:"write,omitempty"`

	// Delete removes a document.
	Delete *DeleteStep `yaml:"delete,omitempty"`
}

type SetStep struct {
	Property string `yaml:"property"`
	Value    any    `yaml:"value"`
}

type WriteStep struct {
	Path string         `yaml:"path"`
	Data map[string]any `yaml:"data"`
}

type DeleteStep struct {
	Path string `yaml:"path"`
}

// Assertion validates final host state or the trace.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Property names the bound property under test.
	Property string `yaml:"property,omitempty"`

	// Value is the expected property value (value_equals). Subject to
	// integer normalization; YAML integers compare equal to stored
	// int64 values.
	Value any `yaml:"value,omitempty"`

	// Ready is the expected readiness flag (ready).
	Ready bool `yaml:"ready,omitempty"`

	// Path is the expected reference path (ref_path).
	Path string `yaml:"path,omitempty"`

	// IDs is the expected document identifier order (list_ids).
	IDs []string `yaml:"ids,omitempty"`

	// Count is the expected number of attached subscriptions
	// (subscribe_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertValueEquals    = "value_equals"
	AssertReady          = "ready"
	AssertRefPath        = "ref_path"
	AssertListIDs        = "list_ids"
	AssertSubscribeCount = "subscribe_count"
)

// LoadScenario reads and parses a scenario YAML file. The components
// path is resolved relative to the scenario file's directory. Unknown
// fields are rejected, catching typos like "assertion:" for
// "assertions:".
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario YAML: %w", err)
	}

	if scenario.Components != "" && !filepath.IsAbs(scenario.Components) {
		scenario.Components = filepath.Join(filepath.Dir(path), scenario.Components)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Components == "" {
		return fmt.Errorf("components file is required")
	}
	if s.Component == "" {
		return fmt.Errorf("component name is required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if _, err := os.Stat(s.Components); os.IsNotExist(err) {
		return fmt.Errorf("components file not found: %s", s.Components)
	}

	for i, doc := range s.Seed {
		if doc.Path == "" {
			return fmt.Errorf("seed[%d]: path is required", i)
		}
		if doc.Data == nil {
			return fmt.Errorf("seed[%d]: data is required (use empty map for an empty document)", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step *Step) error {
	forms := 0
	if step.Set != nil {
		forms++
		if step.Set.Property == "" {
			return fmt.Errorf("steps[%d].set: property is required", index)
		}
	}
	if step.Write != nil {
		forms++
		if step.Write.Path == "" {
			return fmt.Errorf("steps[%d].write: path is required", index)
		}
		if step.Write.Data == nil {
			return fmt.Errorf("steps[%d].write: data is required", index)
		}
	}
	if step.Delete != nil {
		forms++
		if step.Delete.Path == "" {
			return fmt.Errorf("steps[%d].delete: path is required", index)
		}
	}
	if forms != 1 {
		return fmt.Errorf("steps[%d]: exactly one of set, write, delete is required", index)
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertValueEquals:
		if a.Property == "" {
			return fmt.Errorf("assertions[%d]: property is required for value_equals", index)
		}
	case AssertReady:
		if a.Property == "" {
			return fmt.Errorf("assertions[%d]: property is required for ready", index)
		}
	case AssertRefPath:
		if a.Property == "" {
			return fmt.Errorf("assertions[%d]: property is required for ref_path", index)
		}
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for ref_path", index)
		}
	case AssertListIDs:
		if a.Property == "" {
			return fmt.Errorf("assertions[%d]: property is required for list_ids", index)
		}
	case AssertSubscribeCount:
		if a.Property == "" {
			return fmt.Errorf("assertions[%d]: property is required for subscribe_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for subscribe_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
