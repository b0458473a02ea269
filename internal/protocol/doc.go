// Package protocol implements the datagram format spoken by network
// microphones: an 8-byte header followed by either a PCM format announcement
// or a sequenced block of big-endian 16-bit samples.
package protocol
