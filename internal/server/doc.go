// Package server implements the transcription HTTP server. It accepts WAV
// uploads on /transcribe and /transcribe-chunk, hands them to the configured
// speech provider and exposes health, statistics and Prometheus endpoints.
package server
