package report

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wasmcov/wasmcov/pkg/coverage"
	"github.com/wasmcov/wasmcov/pkg/debug"
)

var (
	lcovOutputPath string
	lcovTestName   string
)

var lcovCmd = &cobra.Command{
	Use:   "lcov",
	Short: "Write an LCov tracefile",
	Long: `Produces an LCov tracefile (.info) from the debug bundle and the
counter dump. One SF block is emitted per source file whose path exists
on disk; files that cannot be found are omitted, as downstream LCov
tooling insists on reading them.`,
	Args: cobra.NoArgs,
	Run:  runLcov,
}

func init() {
	ReportCmd.AddCommand(lcovCmd)
	lcovCmd.Flags().StringVarP(&lcovOutputPath, "output", "o", "coverage.info", "Tracefile output path")
	lcovCmd.Flags().StringVar(&lcovTestName, "test-name", "", "TN record value")
}

func runLcov(cmd *cobra.Command, args []string) {
	data, counters, err := loadInputs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	sdiByFile := map[int]*debug.SourceDebugInfo{}
	for i := range data.SDI {
		sdiByFile[data.SDI[i].PathIdx] = &data.SDI[i]
	}

	var files []*coverage.SourceFile
	for fileIdx := range data.FileMap {
		listing := coverage.NewGCovFile(data, fileIdx, counters)
		files = append(files, coverage.NewSourceFile(listing, sdiByFile[fileIdx]))
	}

	trace := coverage.NewTraceFile(lcovTestName, files)
	if err := os.WriteFile(lcovOutputPath, []byte(trace.Render()), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(lcovOutputPath)
}
