package report

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/wasmcov/wasmcov/pkg/coverage"
	"github.com/wasmcov/wasmcov/pkg/debug"
)

var (
	reportDataPath     string
	reportCountersPath string
)

// ReportCmd represents the report command
var ReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Produce coverage reports from collected counters",
	Long: `Turns the debug bundle written by 'wasmcov annotate' and a counter dump
produced by the host into human- or tool-readable coverage reports.

The counter dump is a JSON array of hit records of the form
[idx, type, file_idx, line, column], optionally with a sixth count
field. One-element [count] entries are not accepted here: the debug
bundle carries no counter catalogue to rejoin them with.`,
}

func init() {
	ReportCmd.PersistentFlags().StringVar(&reportDataPath, "data", "", "Debug data JSON written by annotate (required)")
	ReportCmd.PersistentFlags().StringVar(&reportCountersPath, "counters", "", "Counter dump JSON (required)")
}

// loadInputs reads the debug bundle and the counter dump shared by the
// report subcommands
func loadInputs() (*debug.DebugData, *coverage.CounterSet, error) {
	if reportDataPath == "" || reportCountersPath == "" {
		return nil, nil, fmt.Errorf("--data and --counters are required")
	}

	rawData, err := os.ReadFile(reportDataPath)
	if err != nil {
		return nil, nil, err
	}
	var data debug.DebugData
	if err := json.Unmarshal(rawData, &data); err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", reportDataPath, err)
	}

	rawCounters, err := os.ReadFile(reportCountersPath)
	if err != nil {
		return nil, nil, err
	}
	counters, err := coverage.LoadCounters(rawCounters, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing %s: %w", reportCountersPath, err)
	}

	return &data, counters, nil
}
