// Package vad implements an energy-based speech gate used to skip
// recognition of recordings that contain only silence.
package vad
