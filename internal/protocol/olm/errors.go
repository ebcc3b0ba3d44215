package olm

import (
	"errors"
	"fmt"
)

// ErrorCode enumerates primitive failures.
type ErrorCode int

const (
	Success ErrorCode = iota
	NotEnoughRandom
	OutputBufferTooSmall
	BadMessageVersion
	BadMessageFormat
	BadMessageMac
	BadMessageKeyID
	InvalidBase64
	BadAccountKey
	UnknownPickleVersion
	CorruptedPickle
	BadSessionKey
	UnknownMessageIndex
	BadSignature
	InputBufferTooSmall
)

var codeNames = map[ErrorCode]string{
	Success:              "SUCCESS",
	NotEnoughRandom:      "NOT_ENOUGH_RANDOM",
	OutputBufferTooSmall: "OUTPUT_BUFFER_TOO_SMALL",
	BadMessageVersion:    "BAD_MESSAGE_VERSION",
	BadMessageFormat:     "BAD_MESSAGE_FORMAT",
	BadMessageMac:        "BAD_MESSAGE_MAC",
	BadMessageKeyID:      "BAD_MESSAGE_KEY_ID",
	InvalidBase64:        "INVALID_BASE64",
	BadAccountKey:        "BAD_ACCOUNT_KEY",
	UnknownPickleVersion: "UNKNOWN_PICKLE_VERSION",
	CorruptedPickle:      "CORRUPTED_PICKLE",
	BadSessionKey:        "BAD_SESSION_KEY",
	UnknownMessageIndex:  "UNKNOWN_MESSAGE_INDEX",
	BadSignature:         "BAD_SIGNATURE",
	InputBufferTooSmall:  "INPUT_BUFFER_TOO_SMALL",
}

func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN_ERROR(%d)", int(c))
}

// Error is a primitive failure. Two errors match under errors.Is when their
// codes are equal, whatever the operation.
type Error struct {
	Code ErrorCode
	Op   string
}

func (e *Error) Error() string {
	if e.Op == "" {
		return "olm: " + e.Code.String()
	}
	return "olm: " + e.Op + ": " + e.Code.String()
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrNotEnoughRandom      = &Error{Code: NotEnoughRandom}
	ErrBadMessageVersion    = &Error{Code: BadMessageVersion}
	ErrBadMessageFormat     = &Error{Code: BadMessageFormat}
	ErrBadMessageMac        = &Error{Code: BadMessageMac}
	ErrBadMessageKeyID      = &Error{Code: BadMessageKeyID}
	ErrInvalidBase64        = &Error{Code: InvalidBase64}
	ErrBadAccountKey        = &Error{Code: BadAccountKey}
	ErrUnknownPickleVersion = &Error{Code: UnknownPickleVersion}
	ErrCorruptedPickle      = &Error{Code: CorruptedPickle}
	ErrUnknownMessageIndex  = &Error{Code: UnknownMessageIndex}
	ErrBadSignature         = &Error{Code: BadSignature}
)

// CodeOf extracts the code from err, Success for nil, and -1 when err did
// not come from this package.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return -1
}

// lastError records the outcome of the most recent operation.
type lastError struct {
	code ErrorCode
}

func (l *lastError) fail(op string, code ErrorCode) error {
	l.code = code
	return &Error{Code: code, Op: op}
}

func (l *lastError) ok() { l.code = Success }

// LastErrorCode returns the code of the most recent operation.
func (l *lastError) LastErrorCode() ErrorCode { return l.code }

// LastError returns the text of the most recent operation's code.
func (l *lastError) LastError() string { return l.code.String() }
