package cli

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/docbind"
	"github.com/roach88/docbind/compiler"
	"github.com/roach88/docbind/pathtpl"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
}

// ValidationResult reports per-component validation outcomes.
type ValidationResult struct {
	Valid      bool     `json:"valid"`
	Components []string `json:"components"`
	Problems   []string `json:"problems,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <components.cue>",
		Short: "Validate CUE component definitions",
		Long: `Validate a component-definition file beyond compilation: every
bound property's path template must parse, so placeholder syntax
errors surface here instead of at attach.

Exit codes:
  0 - Definitions are valid
  1 - Validation problems found
  2 - Command error (file missing, CUE parse failure)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	src, err := os.ReadFile(path)
	if err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("read %s: %v", path, err), nil)
		return WrapExitError(ExitCommandError, "read definitions", err)
	}

	defs, err := compiler.CompileString(string(src))
	if err != nil {
		return outputCompileError(formatter, err)
	}

	result := validateDefinitions(defs)

	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		if result.Valid {
			fmt.Fprintf(formatter.Writer, "✓ %d component(s) valid\n", len(result.Components))
		} else {
			fmt.Fprintf(formatter.Writer, "✗ %d problem(s) found\n\n", len(result.Problems))
			for _, p := range result.Problems {
				fmt.Fprintf(formatter.Writer, "  %s\n", p)
			}
		}
	}

	if !result.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d problem(s)", len(result.Problems)))
	}
	return nil
}

// validateDefinitions checks every bound property's merged declaration
// the way the binder would at attach: path templates must parse.
func validateDefinitions(defs map[string]*docbind.Definition) *ValidationResult {
	result := &ValidationResult{Valid: true}

	for name := range defs {
		result.Components = append(result.Components, name)
	}
	sort.Strings(result.Components)

	for _, name := range result.Components {
		merged := docbind.CollectProperties(defs[name])

		props := make([]string, 0, len(merged))
		for prop := range merged {
			props = append(props, prop)
		}
		sort.Strings(props)

		for _, prop := range props {
			declOpts := merged[prop]
			if !declOpts.Bound() {
				continue
			}
			template := declOpts.Doc
			if template == "" {
				template = declOpts.Collection
			}
			if _, err := pathtpl.Parse(template); err != nil {
				result.Problems = append(result.Problems,
					fmt.Sprintf("%s.%s: %v", name, prop, err))
				result.Valid = false
			}
		}
	}

	return result
}
