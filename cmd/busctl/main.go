package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// execute runs the root command and closes the log sinks afterwards,
// including when the command fails.
func execute() error {
	defer closeLogging()
	return rootCmd.Execute()
}

var rootCmd = &cobra.Command{
	Use:           "busctl",
	Short:         "Drive a patternbus from scenario files or stdin",
	Long:          "busctl binds regular-expression listeners on an in-process patternbus, fires events at it, and reports what was delivered.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level (debug|info|warn|error); defaults to LOG_LEVEL")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}
