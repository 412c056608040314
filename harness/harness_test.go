package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func runScenario(t *testing.T, name string) *Result {
	t.Helper()
	result, err := Run(loadTestScenario(t, name))
	require.NoError(t, err)
	return result
}

func TestRun_DocumentBinding(t *testing.T) {
	result := runScenario(t, "user-card-basic")

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.NotEmpty(t, result.Trace)

	user, ok := result.Final["user"].(map[string]any)
	require.True(t, ok, "user = %T", result.Final["user"])
	assert.Equal(t, "alice", user["__id__"])
	assert.Equal(t, "Alice Updated", user["name"])
	assert.Equal(t, true, result.Final["userReady"])
}

func TestRun_PathSwap(t *testing.T) {
	result := runScenario(t, "user-card-path-swap")
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_OneShot(t *testing.T) {
	result := runScenario(t, "user-card-one-shot")
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	// The later write must not show up in the bound value.
	user := result.Final["user"].(map[string]any)
	assert.Equal(t, "Alice", user["name"])
}

func TestRun_NoCache(t *testing.T) {
	result := runScenario(t, "user-card-no-cache")
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_CollectionBinding(t *testing.T) {
	result := runScenario(t, "message-list")
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	list, ok := result.Final["messages"].([]map[string]any)
	require.True(t, ok, "messages = %T", result.Final["messages"])
	require.Len(t, list, 2)
	assert.Equal(t, "m2", list[0]["__id__"])
	assert.Equal(t, "m3", list[1]["__id__"])
}

func TestRun_QueryTransform(t *testing.T) {
	result := runScenario(t, "pinned-list")
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_FailingAssertionReportsError(t *testing.T) {
	scenario := loadTestScenario(t, "user-card-basic")
	scenario.Assertions = []Assertion{{
		Type:     AssertValueEquals,
		Property: "user",
		Value:    map[string]any{"name": "Wrong"},
	}}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "value_equals")
}

func TestRun_UnknownComponent(t *testing.T) {
	scenario := loadTestScenario(t, "user-card-basic")
	scenario.Component = "Missing"

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRun_Deterministic(t *testing.T) {
	scenario := loadTestScenario(t, "user-card-basic")

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
}
