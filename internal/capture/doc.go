// Package capture implements the recording lifecycle: an Idle/Recording
// state machine owning the goroutine that reads fixed-size chunks from an
// input device into the session sample buffer.
package capture
