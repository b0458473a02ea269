// Package session implements the push-to-talk capture controller.
//
// A Controller owns at most one CaptureSession at a time. While recording it
// collects frames from a capture.Source, detaches them into numbered chunks
// every chunk period and submits each chunk in its own goroutine. Results
// are ordered by a per-session transcript.Assembler and reported to a
// Notifier. Stop waits briefly for the backend's last frame, flushes the
// remainder and returns to idle while submissions finish in the background.
package session
