package transcription

import "fmt"

// TransportError reports a submission that did not produce a transcription:
// a network failure, a non-2xx status or an unreadable response.
type TransportError struct {
	Endpoint   string
	StatusCode int // zero when no response was received
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 && e.Err == nil {
		return fmt.Sprintf("transcription request to %s failed: HTTP error %d: %s", e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("transcription request to %s failed: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
