// Package capture provides audio capture backends for the push-to-talk client.
//
// A Source produces FrameArrived events carrying self-delimiting audio
// frames of the type reported by MediaType, bracketed by CaptureStarted and
// CaptureStopped. Two backends exist: FileSource replays a decoded file in
// real time and UDPSource receives frames from a network microphone,
// restoring packet order with a ReorderBuffer.
package capture
