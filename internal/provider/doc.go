// Package provider adapts speech-to-text engines to a single Transcribe call
// used by the transcription server.
package provider
