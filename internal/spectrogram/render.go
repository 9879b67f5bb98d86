package spectrogram

import (
	"bytes"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

const (
	dpi           = 96
	paletteColors = 256
)

// Config controls rendering
type Config struct {
	SampleRate int
	Width      int // pixels
	Height     int // pixels
	Background color.Color
	Analysis   AnalysisConfig
}

// DefaultConfig returns a 1000x500 image config for sampleRate.
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate: sampleRate,
		Width:      1000,
		Height:     500,
		Background: color.RGBA{R: 43, G: 172, B: 201, A: 255},
		Analysis:   DefaultAnalysisConfig(),
	}
}

// Renderer turns a sample snapshot into a PNG with a waveform panel on top
// and a time/frequency power heatmap below. It keeps no state between calls
// and is safe for concurrent use.
type Renderer struct {
	cfg Config
}

// NewRenderer creates a renderer.
func NewRenderer(cfg Config) (*Renderer, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", cfg.SampleRate)
	}
	if cfg.Width < 100 || cfg.Height < 100 {
		return nil, fmt.Errorf("image must be at least 100x100 pixels, got %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Background == nil {
		cfg.Background = color.White
	}
	return &Renderer{cfg: cfg}, nil
}

// Panels is the data behind one rendered frame.
type Panels struct {
	Waveform    plotter.XYs
	Duration    float64
	Spectrogram *Spectrogram
}

// Analyze derives both panels from samples. It returns nil for empty input.
func (r *Renderer) Analyze(samples []int16) *Panels {
	if len(samples) == 0 {
		return nil
	}

	axis := TimeAxis(len(samples), r.cfg.SampleRate)
	waveform := make(plotter.XYs, len(samples))
	for i, s := range samples {
		waveform[i].X = axis[i]
		waveform[i].Y = float64(s)
	}

	return &Panels{
		Waveform:    waveform,
		Duration:    float64(len(samples)) / float64(r.cfg.SampleRate),
		Spectrogram: Compute(samples, r.cfg.SampleRate, r.cfg.Analysis),
	}
}

// Render returns the encoded PNG frame for samples, or nil when there is no
// data yet.
func (r *Renderer) Render(samples []int16) ([]byte, error) {
	panels := r.Analyze(samples)
	if panels == nil {
		return nil, nil
	}
	return r.Encode(panels)
}

// Encode draws panels into a PNG.
func (r *Renderer) Encode(panels *Panels) ([]byte, error) {
	wave, err := waveformPlot(panels)
	if err != nil {
		return nil, err
	}
	heat, bar := spectrogramPlots(panels)

	width := vg.Length(r.cfg.Width) * vg.Inch / dpi
	height := vg.Length(r.cfg.Height) * vg.Inch / dpi
	img := vgimg.NewWith(
		vgimg.UseWH(width, height),
		vgimg.UseDPI(dpi),
		vgimg.UseBackgroundColor(r.cfg.Background),
	)
	dc := draw.New(img)

	pad := 4 * vg.Millimeter
	dc = draw.Crop(dc, pad, -pad, pad, -pad)
	half := (dc.Max.Y - dc.Min.Y) / 2
	barWidth := (dc.Max.X - dc.Min.X) / 10

	wave.Draw(draw.Crop(dc, 0, -barWidth, half+pad/2, 0))
	heat.Draw(draw.Crop(dc, 0, -barWidth, 0, -half-pad/2))
	bar.Draw(draw.Crop(dc, dc.Max.X-dc.Min.X-barWidth+pad, 0, 0, -half-pad/2))

	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

func waveformPlot(panels *Panels) (*plot.Plot, error) {
	p := plot.New()
	p.BackgroundColor = color.White
	p.Title.Text = "Dalga Formu"
	p.X.Label.Text = "Zaman (s)"
	p.Y.Label.Text = "Amplitüd"

	line, err := plotter.NewLine(panels.Waveform)
	if err != nil {
		return nil, fmt.Errorf("failed to build waveform line: %w", err)
	}
	line.LineStyle.Color = color.RGBA{B: 255, A: 255}
	line.LineStyle.Width = vg.Points(0.5)
	p.Add(line)

	p.X.Min = 0
	p.X.Max = panels.Duration
	return p, nil
}

// spectrogramPlots returns the heatmap plot and its dB color bar.
func spectrogramPlots(panels *Panels) (*plot.Plot, *plot.Plot) {
	heat := plot.New()
	heat.BackgroundColor = color.White
	heat.X.Label.Text = "Zaman (s)"
	heat.Y.Label.Text = "Frekans (Hz)"
	heat.X.Min = 0
	heat.X.Max = panels.Duration

	bar := plot.New()
	bar.BackgroundColor = color.White
	bar.HideX()
	bar.Y.Label.Text = "Güç (dB)"

	grid := newPowerGrid(panels.Spectrogram)
	cm := moreland.ExtendedKindlmann()
	lo, hi := grid.Range()
	if hi <= lo {
		hi = lo + 1
	}
	cm.SetMin(lo)
	cm.SetMax(hi)

	cols, rows := grid.Dims()
	if cols >= 2 && rows >= 2 {
		hm := plotter.NewHeatMap(grid, cm.Palette(paletteColors))
		hm.Min, hm.Max = lo, hi
		heat.Add(hm)
	}
	bar.Add(&plotter.ColorBar{ColorMap: cm, Vertical: true})

	return heat, bar
}

// powerGrid exposes a spectrogram in dB as a plotter.GridXYZ: columns are
// segments, rows are frequency bins.
type powerGrid struct {
	s  *Spectrogram
	db [][]float64
}

func newPowerGrid(s *Spectrogram) *powerGrid {
	g := &powerGrid{s: s}
	if s == nil {
		return g
	}
	g.db = make([][]float64, len(s.Power))
	for t, row := range s.Power {
		g.db[t] = make([]float64, len(row))
		for f, p := range row {
			g.db[t][f] = Decibels(p)
		}
	}
	return g
}

func (g *powerGrid) Dims() (c, r int) {
	if g.s == nil {
		return 0, 0
	}
	return len(g.s.Times), len(g.s.Freqs)
}

func (g *powerGrid) Z(c, r int) float64 { return g.db[c][r] }
func (g *powerGrid) X(c int) float64    { return g.s.Times[c] }
func (g *powerGrid) Y(r int) float64    { return g.s.Freqs[r] }

// Range returns the lowest and highest dB values.
func (g *powerGrid) Range() (lo, hi float64) {
	first := true
	for _, row := range g.db {
		for _, v := range row {
			if first {
				lo, hi = v, v
				first = false
				continue
			}
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}
	return lo, hi
}
