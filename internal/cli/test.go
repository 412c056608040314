package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/docbind/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter string // scenario filter (glob pattern on scenario name)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run binding conformance scenarios",
		Long: `Run every scenario YAML file in a directory against a fresh
in-memory database and report assertion results.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, malformed scenarios)

Examples:
  docbind test ./scenarios
  docbind test ./scenarios --filter "user-card-*"
  docbind test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("scenarios directory not found: %s", scenariosDir), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	paths, err := filepath.Glob(filepath.Join(scenariosDir, "*.yaml"))
	if err != nil {
		return WrapExitError(ExitCommandError, "list scenarios", err)
	}
	ymlPaths, _ := filepath.Glob(filepath.Join(scenariosDir, "*.yml"))
	paths = append(paths, ymlPaths...)
	sort.Strings(paths)

	if len(paths) == 0 {
		_ = formatter.Error(ErrCodeBadScenario, fmt.Sprintf("no scenario files in %s", scenariosDir), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("no scenario files in %s", scenariosDir))
	}

	result := &TestResult{}
	for _, path := range paths {
		scenario, err := harness.LoadScenario(path)
		if err != nil {
			_ = formatter.Error(ErrCodeBadScenario, fmt.Sprintf("%s: %v", path, err), nil)
			return WrapExitError(ExitCommandError, fmt.Sprintf("load %s", path), err)
		}

		if opts.Filter != "" {
			matched, err := filepath.Match(opts.Filter, scenario.Name)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid filter pattern", err)
			}
			if !matched {
				continue
			}
		}

		formatter.VerboseLog("Running scenario: %s", scenario.Name)

		run, err := harness.Run(scenario)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("run %s", scenario.Name), err)
		}

		result.Scenarios = append(result.Scenarios, ScenarioResult{
			Name:   scenario.Name,
			Pass:   run.Pass,
			Errors: run.Errors,
		})
		result.Total++
		if run.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if err := outputTestResult(formatter, result); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", result.Failed, result.Total))
	}
	return nil
}

func outputTestResult(formatter *OutputFormatter, result *TestResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	for _, s := range result.Scenarios {
		if s.Pass {
			fmt.Fprintf(formatter.Writer, "✓ %s\n", s.Name)
			continue
		}
		fmt.Fprintf(formatter.Writer, "✗ %s\n", s.Name)
		for _, msg := range s.Errors {
			fmt.Fprintf(formatter.Writer, "    %s\n", msg)
		}
	}

	fmt.Fprintf(formatter.Writer, "\n%d passed, %d failed, %d total\n",
		result.Passed, result.Failed, result.Total)
	return nil
}
