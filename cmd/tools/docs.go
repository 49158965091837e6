package tools

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/wasmcov/wasmcov/pkg/debug"
	"github.com/wasmcov/wasmcov/pkg/utils"
)

var module string
var supportedModules = map[string]func() string{
	"counter.types": counterTypesDoc,
	"data.schema":   dataSchemaDoc,
}

var docsCmd = &cobra.Command{
	Use:   "docs module",
	Short: "Show wasmcov documentation",
	Long: `Dumps the documentation of the specified wasmcov module.
By default the tool dumps the documentation to stdout, but it can be redirected to a file using the --output flag.

Supported modules:
` + strings.Join(utils.Map(utils.Keys(supportedModules), func(module string) string { return "  " + module }), "\n"),
	Args:      cobra.MatchAll(cobra.OnlyValidArgs, cobra.MaximumNArgs(1), cobra.MinimumNArgs(1)),
	ValidArgs: utils.Keys(supportedModules),
	Run: func(cmd *cobra.Command, args []string) {
		module = args[0]
		outputFile, _ := cmd.Flags().GetString("output")
		if outputFile != "" {
			file, err := os.Create(outputFile)
			if err != nil {
				fmt.Println("Error creating file:", err)
				os.Exit(1)
			}
			defer file.Close()
			fmt.Fprintln(file, supportedModules[module]())
		} else {
			fmt.Println(supportedModules[module]())
		}
	},
}

func init() {
	ToolsCmd.AddCommand(docsCmd)
	docsCmd.Flags().StringP("output", "o", "", "Output file. If not specified, the documentation is dumped to stdout.")
}

// counterTypesDoc documents the i32 values the instrumented component
// passes as the counter 'type' argument
func counterTypesDoc() string {
	var out strings.Builder
	out.WriteString("Counter types passed over the host FFI border as i32:\n\n")
	for t := debug.CounterType(0); ; t++ {
		if _, ok := debug.CounterTypeFromInt(int32(t)); !ok {
			break
		}
		fmt.Fprintf(&out, "  %d  %s\n", int32(t), t)
	}
	out.WriteString("\nThe instrumenter currently emits Block only; hosts must accept the full range.")
	return out.String()
}

// dataSchemaDoc documents the debug bundle layout shared with the report
// printers
func dataSchemaDoc() string {
	return `Debug data bundle (JSON):

  file_map        ordered, deduplicated source file paths; every
                  path_idx in the bundle indexes this list
  blocks_per_line per file index, [{line, count}] where count is the
                  number of instrumented basic blocks on the line
  sdi_vec         per source file: {path_idx, functions, branches};
                  each function is {start_line, end_line, name,
                  start_address}; branches is reserved and empty

Counter dump (JSON), produced by the host:

  [[idx, type, file_idx, line, column], ...]   one entry per hit, or
  [[idx, type, file_idx, line, column, count], ...]  aggregated`
}
