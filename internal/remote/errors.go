package remote

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes remote failures.
type ErrorKind string

const (
	// KindNetwork covers transport failures and non-2xx responses.
	KindNetwork ErrorKind = "network"

	// KindMalformed means the response body was not the expected JSON shape.
	KindMalformed ErrorKind = "malformed"

	// KindRejected means the API answered with a non-success status.
	KindRejected ErrorKind = "rejected"
)

// Error is returned by every Client operation that fails.
type Error struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Op is the API action that failed, e.g. "getRequisitions".
	Op string

	// StatusCode is the HTTP status, when a response was received.
	StatusCode int

	// Message is the server's message for rejected calls, or a short
	// description otherwise.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote %s: %s (http %d): %s", e.Op, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("remote %s: %s: %s", e.Op, e.Kind, msg)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func kindOf(err error) (ErrorKind, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return "", false
}

// IsNetworkError reports whether err is a transport or HTTP status failure.
func IsNetworkError(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindNetwork
}

// IsMalformed reports whether err is an undecodable response.
func IsMalformed(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindMalformed
}

// IsRejected reports whether the API refused the request.
func IsRejected(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindRejected
}

// ErrNoFileID is returned by FetchImage when the photo URL carries no
// recognizable file id.
var ErrNoFileID = errors.New("no file id in photo url")
