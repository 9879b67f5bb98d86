// Package spectrogram computes short-time Fourier power spectrograms of
// PCM-16 audio and renders them, together with the waveform, as PNG frames.
package spectrogram
