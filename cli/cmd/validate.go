package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BDNK1/chatflow/runtime"
	flowyaml "github.com/BDNK1/chatflow/runtime/engine/yaml"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <flow-file|flows-dir>...",
	Short: "Check flow files for shape and graph problems",
	Long: `Validate loads each flow and reports errors (the flow cannot be served)
and warnings (the flow runs, but some routes end the conversation early).

Example:
  chatflow validate flows/
  chatflow validate flows/support.yaml
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	loader := flowyaml.NewFlowLoader()
	evaluator := flowyaml.NewExpressionEvaluator()

	files, err := flowFiles(loader, args)
	if err != nil {
		return err
	}

	failed := 0
	for _, file := range files {
		flow, err := loader.Load(file)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", file, err)
			failed++
			continue
		}
		report := runtime.ValidateFlowWith(&flow, evaluator)
		printReport(cmd.OutOrStdout(), file, report)
		if !report.OK() {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d flow(s) failed validation", failed, len(files))
	}
	return nil
}

func printReport(w io.Writer, file string, report runtime.FlowReport) {
	status := "ok"
	if !report.OK() {
		status = "invalid"
	}
	fmt.Fprintf(w, "%s: %s (%s)\n", file, status, report)
	for _, e := range report.Errors {
		fmt.Fprintf(w, "  error:   %v\n", e)
	}
	for _, e := range report.Warnings {
		fmt.Fprintf(w, "  warning: %v\n", e)
	}
}

// flowFiles expands directories into the flow files they contain.
func flowFiles(loader runtime.FlowLoader, args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		for _, pattern := range loader.Extensions() {
			matches, err := filepath.Glob(filepath.Join(arg, pattern))
			if err != nil {
				return nil, fmt.Errorf("error reading directory: %w", err)
			}
			files = append(files, matches...)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no flow files found")
	}
	return files, nil
}
