// Package transcript assembles per-chunk transcription fragments into a
// running transcript in chunk emission order.
package transcript
