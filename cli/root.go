package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go-pulse/debug"
)

var flagDebug bool

var rootCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Sample-accurate MIDI playback engine",
	Long: `pulse plays MIDI sequences with sample-accurate timing through a
lookahead scheduler. Tempo can change mid-playback without hung notes
or double-fired events.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagDebug {
			debug.Enable()
		}
	},
}

// Execute runs the CLI.
func Execute() {
	defer debug.Disable()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "write a debug log to ~/.config/go-pulse/debug.log")
}
