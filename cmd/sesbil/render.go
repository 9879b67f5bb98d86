package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hasanylld/sesbil/internal/audio"
	"github.com/hasanylld/sesbil/internal/config"
)

var (
	renderIn  string
	renderOut string
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a WAV file to a waveform and spectrogram PNG",
	RunE:  runRender,
}

func init() {
	renderCmd.Flags().StringVar(&renderIn, "in", "", "input WAV file")
	renderCmd.Flags().StringVar(&renderOut, "out", "", "output PNG file")
	renderCmd.MarkFlagRequired("in")
	renderCmd.MarkFlagRequired("out")
}

func runRender(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	return renderFile(cfg.Spectrogram, renderIn, renderOut)
}

// renderFile renders the WAV file at in to a PNG at out, using the file's
// own sample rate.
func renderFile(cfg config.SpectrogramConfig, in, out string) error {
	f, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", in, err)
	}
	defer f.Close()

	samples, info, err := audio.ReadWAV(f)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", in, err)
	}
	if len(samples) == 0 {
		return errors.New("input contains no audio")
	}

	renderer, err := newRenderer(cfg, info.SampleRate)
	if err != nil {
		return err
	}

	frame, err := renderer.Render(samples)
	if err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}

	if err := os.WriteFile(out, frame, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	return nil
}
