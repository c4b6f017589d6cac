package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"strand/internal/trace"
)

var traceCmd = &cobra.Command{
	Use:   "trace <file>",
	Short: "Decode a msgpack runtime trace",
	Long:  `Decode a msgpack trace stream written by "strand run --trace" into text`,
	Args:  cobra.ExactArgs(1),
	RunE:  decodeTrace,
}

func decodeTrace(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open trace file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return trace.Decode(f, os.Stdout)
}
