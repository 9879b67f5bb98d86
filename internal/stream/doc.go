// Package stream manages connected spectrogram viewers. Each viewer runs
// its own loop rendering fresh frames from the recording session until the
// recording ends or the viewer disconnects.
package stream
