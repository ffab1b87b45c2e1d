package fbupload

import (
	"errors"
	"fmt"
)

var (
	ErrUnreadableSource = errors.New("source is unreadable")
	ErrSourceRead       = errors.New("source read error")
	ErrSizeUnknown      = errors.New("source size is unknown")
	ErrSessionStart     = errors.New("cannot start upload session")
	ErrTransfer         = errors.New("chunk transfer failed")
	ErrSessionFinish    = errors.New("cannot finish upload session")
	ErrProtocol         = errors.New("graph protocol error")
)

// resumableSubcodes are the error subcodes the Graph API uses for the resumable video upload error family
var resumableSubcodes = map[int]struct{}{
	1363030: {},
	1363019: {},
	1363037: {},
	1363033: {},
	1363021: {},
	1363041: {},
}

// ResponseError is an error returned by the remote endpoint in the response body
type ResponseError struct {
	StatusCode int
	Code       int
	Subcode    int
	Type       string
	Message    string
	UserTitle  string
	UserMsg    string
	TraceID    string

	// Resumable is set when the error belongs to the resumable upload error family
	Resumable *ResumableUploadError
}

func (e *ResponseError) Error() string {
	msg := fmt.Sprintf("graph error (http %d, code %d", e.StatusCode, e.Code)
	if e.Subcode != 0 {
		msg += fmt.Sprintf(", subcode %d", e.Subcode)
	}
	msg += ")"
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *ResponseError) Unwrap() error {
	if e.Resumable != nil {
		return e.Resumable
	}
	return nil
}

// ResumableUploadError is a resumable upload error. If the server knows which bytes it actually holds,
// StartOffset and EndOffset contain the window the client must send next.
type ResumableUploadError struct {
	Message     string
	StartOffset *int64
	EndOffset   *int64
}

func (e *ResumableUploadError) Error() string {
	if o, ok := e.Offsets(); ok {
		return fmt.Sprintf("resumable upload error, server expects [%d, %d): %s", o[0], o[1], e.Message)
	}
	return "resumable upload error: " + e.Message
}

// Offsets returns the server-reported resume window, if any
func (e *ResumableUploadError) Offsets() (offsets [2]int64, ok bool) {
	if e.StartOffset == nil || e.EndOffset == nil {
		return
	}
	return [2]int64{*e.StartOffset, *e.EndOffset}, true
}

func isResumableSubcode(subcode int) bool {
	_, ok := resumableSubcodes[subcode]
	return ok
}
