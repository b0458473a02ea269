// Package transcription implements the HTTP client for the transcription server.
// It uploads WAV containers as multipart form data with a bounded number of
// concurrent requests and reports every failure as a TransportError.
package transcription
