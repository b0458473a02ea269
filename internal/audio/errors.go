package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedChannelLayout is returned for buffers that are neither mono nor stereo.
	ErrUnsupportedChannelLayout = errors.New("unsupported channel layout")

	// ErrDecode matches every *DecodeError via errors.Is.
	ErrDecode = errors.New("audio decode failed")
)

// DecodeError reports a captured blob that could not be decoded.
type DecodeError struct {
	MediaType string
	Err       error
}

func (e *DecodeError) Error() string {
	if e.MediaType == "" {
		return fmt.Sprintf("decode audio: %v", e.Err)
	}
	return fmt.Sprintf("decode %s: %v", e.MediaType, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrDecode) match any DecodeError.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func decodeErr(mediaType string, format string, args ...any) error {
	return &DecodeError{MediaType: mediaType, Err: fmt.Errorf(format, args...)}
}
