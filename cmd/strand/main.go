package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"strand/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "strand",
	Short: "Strand build-job runner",
	Long:  `Strand runs project build jobs concurrently over a cooperative coroutine scheduler`,
}

func main() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().Bool("quiet", false, "suppress non-essential output")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
