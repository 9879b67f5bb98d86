package spectrogram

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// MinPower replaces zero power before the dB conversion.
const MinPower = 1e-10

// AnalysisConfig controls the short-time Fourier analysis.
//
// Defaults reproduce the usual one-sided power spectral density
// spectrogram: 256-sample Tukey(0.25) segments overlapping by 32 samples,
// mean removed per segment, density scaling.
type AnalysisConfig struct {
	SegmentLength int
	Overlap       int
	TukeyAlpha    float64
}

// DefaultAnalysisConfig returns the default analysis parameters.
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		SegmentLength: 256,
		Overlap:       32,
		TukeyAlpha:    0.25,
	}
}

// Spectrogram holds the power of each frequency bin over time.
type Spectrogram struct {
	Times []float64   // segment centers in seconds
	Freqs []float64   // bin frequencies in Hz
	Power [][]float64 // Power[t][f], units²/Hz
}

// Compute returns the power spectrogram of samples captured at sampleRate.
// It returns nil for empty input.
func Compute(samples []int16, sampleRate int, cfg AnalysisConfig) *Spectrogram {
	n := len(samples)
	if n == 0 || sampleRate <= 0 {
		return nil
	}

	seg := cfg.SegmentLength
	overlap := cfg.Overlap
	if seg <= 0 {
		seg = DefaultAnalysisConfig().SegmentLength
	}
	if seg > n {
		seg = n
		overlap = seg / 8
	}
	if overlap < 0 || overlap >= seg {
		overlap = seg / 8
	}
	step := seg - overlap
	frames := (n-seg)/step + 1

	window := tukeyWindow(seg, cfg.TukeyAlpha)
	var energy float64
	for _, w := range window {
		energy += w * w
	}
	if energy == 0 {
		for i := range window {
			window[i] = 1
		}
		energy = float64(seg)
	}
	scale := 1 / (float64(sampleRate) * energy)

	bins := seg/2 + 1
	freqs := make([]float64, bins)
	for k := range freqs {
		freqs[k] = float64(k) * float64(sampleRate) / float64(seg)
	}

	fft := fourier.NewFFT(seg)
	segment := make([]float64, seg)
	coeffs := make([]complex128, bins)

	times := make([]float64, frames)
	power := make([][]float64, frames)
	for t := 0; t < frames; t++ {
		start := t * step
		times[t] = (float64(start) + float64(seg)/2) / float64(sampleRate)

		var mean float64
		for i := 0; i < seg; i++ {
			mean += float64(samples[start+i])
		}
		mean /= float64(seg)
		for i := 0; i < seg; i++ {
			segment[i] = (float64(samples[start+i]) - mean) * window[i]
		}

		coeffs = fft.Coefficients(coeffs, segment)

		row := make([]float64, bins)
		for k, c := range coeffs {
			p := (real(c)*real(c) + imag(c)*imag(c)) * scale
			// one-sided: fold the negative frequencies, except DC and
			// Nyquist (present only for even lengths)
			if k > 0 && (k < bins-1 || seg%2 == 1) {
				p *= 2
			}
			row[k] = p
		}
		power[t] = row
	}

	return &Spectrogram{Times: times, Freqs: freqs, Power: power}
}

// Decibels converts power to 10*log10(power). Zero, negative and NaN values
// become MinPower so the result is always finite. Small positive values are
// kept as they are.
func Decibels(power float64) float64 {
	if !(power > 0) {
		power = MinPower
	}
	return 10 * math.Log10(power)
}

// TimeAxis returns n points evenly spaced over [0, n/sampleRate], both ends
// included.
func TimeAxis(n, sampleRate int) []float64 {
	if n <= 0 || sampleRate <= 0 {
		return nil
	}
	axis := make([]float64, n)
	if n == 1 {
		return axis
	}
	end := float64(n) / float64(sampleRate)
	step := end / float64(n-1)
	for i := range axis {
		axis[i] = float64(i) * step
	}
	axis[n-1] = end
	return axis
}

// tukeyWindow returns a periodic Tukey window of length m.
func tukeyWindow(m int, alpha float64) []float64 {
	if m <= 1 {
		return []float64{1}
	}
	if alpha <= 0 {
		w := make([]float64, m)
		for i := range w {
			w[i] = 1
		}
		return w
	}
	if alpha > 1 {
		alpha = 1
	}

	// periodic window: symmetric window of m+1 points without the last one
	size := m + 1
	width := int(math.Floor(alpha * float64(size-1) / 2))
	w := make([]float64, m)
	for i := 0; i < m; i++ {
		x := float64(i)
		switch {
		case i <= width:
			w[i] = 0.5 * (1 + math.Cos(math.Pi*(-1+2*x/(alpha*float64(size-1)))))
		case i >= size-width-1:
			w[i] = 0.5 * (1 + math.Cos(math.Pi*(-2/alpha+1+2*x/(alpha*float64(size-1)))))
		default:
			w[i] = 1
		}
	}
	return w
}
