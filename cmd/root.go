package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	annotatecmd "github.com/wasmcov/wasmcov/cmd/annotate"
	"github.com/wasmcov/wasmcov/cmd/report"
	"github.com/wasmcov/wasmcov/cmd/tools"
)

var cfgFile string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "wasmcov",
	Short: "Line coverage for WebAssembly components",
	Long: `Wasmcov instruments WebAssembly components compiled with DWARF debug info
so that every source basic block reports its execution to a host counter,
then turns the collected counters into GCov annotated listings and LCov
tracefiles.

This CLI is the entry point for the wasmcov toolchain, providing access to the instrumenter, the report printers, etc`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	err := RootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	RootCmd.AddCommand(annotatecmd.AnnotateCmd, report.ReportCmd, tools.ToolsCmd)
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.wasmcov.yaml)")
	cobra.OnInitialize(initConfig)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".wasmcov" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".wasmcov")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
