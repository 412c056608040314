package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/docbind"
	"github.com/roach88/docbind/compiler"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// PropertyView is the serializable form of a property declaration.
// Query transforms are opaque functions, so only their presence is
// reported.
type PropertyView struct {
	Doc        string   `json:"doc,omitempty"`
	Collection string   `json:"collection,omitempty"`
	Type       string   `json:"type,omitempty"`
	Live       bool     `json:"live"`
	Observes   []string `json:"observes,omitempty"`
	NoCache    bool     `json:"noCache,omitempty"`
	HasQuery   bool     `json:"hasQuery,omitempty"`
}

// ComponentView is the serializable form of a compiled component.
type ComponentView struct {
	Name       string                  `json:"name"`
	Extends    string                  `json:"extends,omitempty"`
	Properties map[string]PropertyView `json:"properties"`
}

// CompilationResult holds the compiled component set, sorted by name
// for stable output.
type CompilationResult struct {
	Components []ComponentView `json:"components"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <components.cue>",
		Short: "Compile CUE component definitions to a property table",
		Long: `Compile a CUE component-definition file and print the resolved
property tables as JSON or text.

Compilation applies the same validation the binder performs at attach,
so a definition that compiles cleanly will not fail configuration at
runtime.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result, err := compileFile(path)
	if err != nil {
		return outputCompileError(formatter, err)
	}

	formatter.VerboseLog("Compiled %d component(s) from %s", len(result.Components), path)

	if opts.Output != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return WrapExitError(ExitCommandError, "marshal result", err)
		}
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
			return WrapExitError(ExitCommandError, "write output", err)
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// compileFile compiles one CUE definition file into views.
func compileFile(path string) (*CompilationResult, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("read %s", path), Err: err}
	}

	defs, err := compiler.CompileString(string(src))
	if err != nil {
		return nil, err
	}

	result := &CompilationResult{}
	for _, def := range defs {
		result.Components = append(result.Components, componentView(def))
	}
	sort.Slice(result.Components, func(i, j int) bool {
		return result.Components[i].Name < result.Components[j].Name
	})
	return result, nil
}

func componentView(def *docbind.Definition) ComponentView {
	view := ComponentView{
		Name:       def.Name,
		Properties: make(map[string]PropertyView, len(def.Properties)),
	}
	if def.Extends != nil {
		view.Extends = def.Extends.Name
	}
	for name, opts := range def.Properties {
		view.Properties[name] = PropertyView{
			Doc:        opts.Doc,
			Collection: opts.Collection,
			Type:       string(opts.Type),
			Live:       opts.Live,
			Observes:   opts.Observes,
			NoCache:    opts.NoCache,
			HasQuery:   opts.Query != nil,
		}
	}
	return view
}

func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d component(s)\n\n", len(result.Components))
	for _, comp := range result.Components {
		bound := 0
		for _, p := range comp.Properties {
			if p.Doc != "" || p.Collection != "" {
				bound++
			}
		}
		suffix := ""
		if comp.Extends != "" {
			suffix = fmt.Sprintf(" (extends %s)", comp.Extends)
		}
		fmt.Fprintf(formatter.Writer, "  %s%s: %d propert(ies), %d bound\n",
			comp.Name, suffix, len(comp.Properties), bound)
	}
	fmt.Fprintln(formatter.Writer)

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote property tables to %s\n", outputFile)
	}
	return nil
}

func outputCompileError(formatter *OutputFormatter, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		_ = formatter.Error(ErrCodeNotFound, exitErr.Error(), nil)
		return exitErr
	}

	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		if formatter.Format == "json" {
			_ = formatter.Error(ErrCodeCompile, compileErr.Error(), nil)
		} else {
			fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
			fmt.Fprintln(formatter.Writer)
			if compileErr.Pos.IsValid() {
				fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
					compileErr.Pos.Filename(), compileErr.Pos.Line(), compileErr.Pos.Column())
			}
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", compileErr.Field, compileErr.Message)
		}
		return WrapExitError(ExitCommandError, "compilation failed", err)
	}

	_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
	return WrapExitError(ExitCommandError, "compilation failed", err)
}
