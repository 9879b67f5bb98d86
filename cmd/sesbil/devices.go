package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hasanylld/sesbil/internal/audio/portaudio"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio input devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		devices, err := portaudio.ListInputDevices()
		if err != nil {
			return fmt.Errorf("failed to list input devices: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCHANNELS\tSAMPLE RATE\tDEFAULT")
		for _, d := range devices {
			def := ""
			if d.Default {
				def = "*"
			}
			fmt.Fprintf(w, "%s\t%d\t%.0f\t%s\n", d.Name, d.MaxInputChannels, d.DefaultSampleRate, def)
		}
		return w.Flush()
	},
}
