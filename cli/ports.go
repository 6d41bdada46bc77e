package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"go-pulse/midi"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List available MIDI output ports",
	Run: func(cmd *cobra.Command, args []string) {
		names := midi.OutPortNames()
		if len(names) == 0 {
			fmt.Println("no MIDI output ports found")
			return
		}
		for _, name := range names {
			fmt.Println(name)
		}
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
