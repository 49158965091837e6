package annotate

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/wasmcov/wasmcov/pkg/annotate"
	"github.com/wasmcov/wasmcov/pkg/diag"
)

var (
	annotatePath        string
	annotateText        string
	annotateBinaryPath  string
	annotateOutputPath  string
	annotateDataPath    string
	annotateProfilePath string
	annotateVerbose     bool
)

// AnnotateCmd represents the annotate command
var AnnotateCmd = &cobra.Command{
	Use:   "annotate",
	Short: "Instrument a component with coverage counters",
	Long: `Inserts a counter-increment call at every source basic block of a
WebAssembly component, threading the counter import through every nested
core module and renumbering every downstream index space.

The component text is read from --path, --text, or stdin. The binary form
of the same component (--binary) is required: it carries the code-section
offsets that anchor the DWARF addresses to the printed text.

The instrumented text goes to --output (stdout by default); the debug
data bundle consumed by the report commands goes to --data.

Examples:
  # Instrument a printed component, keep the debug bundle
  wasmcov annotate --path app.wat --binary app.wasm -o app.cov.wat --data app.cov.json

  # Read the text from stdin
  wat-print app.wasm | wasmcov annotate --binary app.wasm`,
	Args: cobra.NoArgs,
	Run:  runAnnotate,
}

func init() {
	AnnotateCmd.Flags().StringVarP(&annotatePath, "path", "p", "", "Component text file")
	AnnotateCmd.Flags().StringVarP(&annotateText, "text", "t", "", "Component text passed inline")
	AnnotateCmd.Flags().StringVarP(&annotateBinaryPath, "binary", "b", "", "Component binary file (required)")
	AnnotateCmd.Flags().StringVarP(&annotateOutputPath, "output", "o", "", "Instrumented text output path (default: stdout)")
	AnnotateCmd.Flags().StringVar(&annotateDataPath, "data", "", "Debug data JSON output path")
	AnnotateCmd.Flags().StringVar(&annotateProfilePath, "printer-profile", "", "YAML printer profile")
	AnnotateCmd.Flags().BoolVarP(&annotateVerbose, "verbose", "v", false, "Print verbose output")
	AnnotateCmd.MarkFlagsMutuallyExclusive("path", "text")
}

func runAnnotate(cmd *cobra.Command, args []string) {
	text, err := readInput()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if annotateBinaryPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --binary is required; the encoded component anchors the DWARF addresses")
		os.Exit(1)
	}
	binary, err := os.ReadFile(annotateBinaryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	opts := annotate.Options{Sink: diag.New(annotateVerbose)}
	if annotateProfilePath != "" {
		profile, err := annotate.LoadProfile(annotateProfilePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		opts.Profile = profile
	}

	result, err := annotate.Annotate(text, binary, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if annotateDataPath != "" {
		bundle, err := json.MarshalIndent(result.Data, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(annotateDataPath, bundle, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if annotateOutputPath != "" {
		if err := os.WriteFile(annotateOutputPath, []byte(result.Text), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if annotateVerbose {
			fmt.Fprintf(os.Stderr, "Output: %s (%d counters)\n", annotateOutputPath, len(result.Counters))
		}
	} else {
		fmt.Print(result.Text)
	}
}

func readInput() (string, error) {
	if annotatePath != "" {
		contents, err := os.ReadFile(annotatePath)
		if err != nil {
			return "", err
		}
		return string(contents), nil
	}
	if annotateText != "" {
		return annotateText, nil
	}
	contents, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(contents), nil
}
