// Package audio holds the recording session sample store, the input device
// abstraction with a synthetic signal source, and WAV encoding/decoding of
// mono PCM-16 audio.
package audio
