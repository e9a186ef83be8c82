package protocol

import (
	"errors"
	"fmt"
)

// DecodeErrorCode categorizes protocol errors.
type DecodeErrorCode string

const (
	// ErrCodeMalformed indicates the frame is not valid JSON.
	ErrCodeMalformed DecodeErrorCode = "MALFORMED"

	// ErrCodeMissingType indicates the frame has no type field.
	ErrCodeMissingType DecodeErrorCode = "MISSING_TYPE"

	// ErrCodeUnknownType indicates the type is not part of the protocol.
	ErrCodeUnknownType DecodeErrorCode = "UNKNOWN_TYPE"

	// ErrCodeMissingData indicates a payload was expected but absent.
	ErrCodeMissingData DecodeErrorCode = "MISSING_DATA"

	// ErrCodeInvalidData indicates the payload does not fit its type.
	ErrCodeInvalidData DecodeErrorCode = "INVALID_DATA"
)

// DecodeError is a protocol error: one frame could not be understood. The
// connection carrying the frame stays usable.
type DecodeError struct {
	Code    DecodeErrorCode
	Type    MessageType
	Message string
	Err     error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Type != "" {
		msg = fmt.Sprintf("%s (type=%s)", msg, e.Type)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsDecodeError reports whether err is, or wraps, a DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

func newDecodeError(code DecodeErrorCode, t MessageType, msg string, err error) *DecodeError {
	return &DecodeError{Code: code, Type: t, Message: msg, Err: err}
}
