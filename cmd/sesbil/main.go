package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const serviceName = "sesbil"

var (
	version = "1.0.0"
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "sesbil",
	Short: "Sesbil audio capture service",
	Long: `Sesbil records from a microphone on demand, streams live waveform and
spectrogram images to websocket viewers and transcribes the recording.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "Sesbil v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (defaults are used when empty)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
