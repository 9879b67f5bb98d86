// Package transcription turns the captured recording into text.
//
// Service snapshots the buffer, writes it to a temporary WAV file and hands
// it to a Recognizer. Two recognizers are provided: OpenAI, for the OpenAI
// audio transcription API and compatible servers, and Client, a retrying
// multipart uploader for self-hosted endpoints.
//
// A recording with no recognizable speech yields ErrRecognitionFailure.
// Transport and service problems are reported as *ServiceError, which
// matches ErrRecognitionService with errors.Is.
package transcription
