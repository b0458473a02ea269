// Package audio converts captured audio containers into canonical WAV.
// It decodes WAV, MP3, FLAC, Ogg Vorbis and raw L16 blobs into float
// samples and encodes them as 16-bit PCM or 32-bit float WAV files.
package audio
