package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:           "affrollup",
		Short:         "Offline affiliate rollups over a transaction export",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the affrollup version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	cfgFile     string
	arsenalFile string
	output      string
	logLevel    string
	version     = "dev"
)

type globalFlags struct {
	arsenal string
	output  string
}

func globals() globalFlags {
	return globalFlags{arsenal: arsenalFile, output: output}
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to configuration file (optional)")
	rootCmd.PersistentFlags().StringVarP(&arsenalFile, "arsenal", "a", "", "arsenal definition file (yaml)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", outputTable, "output format: table or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "error", "log level written to stderr")
	rootCmd.AddCommand(versionCmd, newReportCmd(), newClassifyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
