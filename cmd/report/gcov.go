package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/wasmcov/wasmcov/pkg/coverage"
)

var (
	gcovOutputDir string
	gcovColor     bool
)

var gcovCmd = &cobra.Command{
	Use:   "gcov",
	Short: "Write GCov-style annotated source listings",
	Long: `Produces one annotated listing per source file of the debug bundle:
each line carries the total hit count of its basic blocks, '-' when the
line holds no instrumented block, and a '*' marker when only part of the
line's blocks executed.

Listings are written to --output as <file>.gcov, or to stdout when no
directory is given.`,
	Args: cobra.NoArgs,
	Run:  runGcov,
}

func init() {
	ReportCmd.AddCommand(gcovCmd)
	gcovCmd.Flags().StringVarP(&gcovOutputDir, "output", "o", "", "Output directory (default: stdout)")
	gcovCmd.Flags().BoolVar(&gcovColor, "color", false, "Colorize covered and uncovered lines")
}

func runGcov(cmd *cobra.Command, args []string) {
	data, counters, err := loadInputs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for fileIdx := range data.FileMap {
		listing := coverage.NewGCovFile(data, fileIdx, counters)
		rendered, err := listing.Render(gcovColor)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping %s: %v\n", listing.Path(), err)
			continue
		}

		if gcovOutputDir == "" {
			fmt.Printf("== %s ==\n%s", listing.Path(), rendered)
			continue
		}
		outPath := filepath.Join(gcovOutputDir, filepath.Base(listing.Path())+".gcov")
		if err := os.WriteFile(outPath, []byte(rendered), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}
