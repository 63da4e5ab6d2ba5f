package tus

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
)

// ErrorKind enumerates the protocol level failures a handler can report.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidLength
	KindMissingOffset
	KindInvalidContentType
	KindInvalidOffset
	KindFileNotFound
	KindSizeExceeded

	// KindBackend marks an error whose status and body were supplied by a
	// storage backend.
	KindBackend
)

var kindNames = map[ErrorKind]string{
	KindUnknown:            "UNKNOWN_ERROR",
	KindInvalidLength:      "INVALID_LENGTH",
	KindMissingOffset:      "MISSING_OFFSET",
	KindInvalidContentType: "INVALID_CONTENT_TYPE",
	KindInvalidOffset:      "INVALID_OFFSET",
	KindFileNotFound:       "FILE_NOT_FOUND",
	KindSizeExceeded:       "SIZE_EXCEEDED",
	KindBackend:            "BACKEND_ERROR",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is a failure that knows how it should be rendered as an HTTP
// response.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Body       string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%d)", e.Kind, e.StatusCode)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality so that wrapped or re-created errors still match
// the package sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind == KindBackend || t.Kind == KindBackend {
		return e == t
	}
	return e.Kind == t.Kind
}

var (
	ErrInvalidLength = &Error{
		Kind:       KindInvalidLength,
		StatusCode: http.StatusPreconditionFailed,
		Body:       "Invalid Upload-Length\n",
	}
	ErrMissingOffset = &Error{
		Kind:       KindMissingOffset,
		StatusCode: http.StatusForbidden,
		Body:       "Missing Upload-Offset\n",
	}
	ErrInvalidContentType = &Error{
		Kind:       KindInvalidContentType,
		StatusCode: http.StatusForbidden,
		Body:       "Missing Content-Type\n",
	}
	ErrInvalidOffset = &Error{
		Kind:       KindInvalidOffset,
		StatusCode: http.StatusConflict,
		Body:       "Incorrect Upload-Offset\n",
	}
	ErrFileNotFound = &Error{
		Kind:       KindFileNotFound,
		StatusCode: http.StatusNotFound,
		Body:       "The file for this url was not found\n",
	}
	ErrSizeExceeded = &Error{
		Kind:       KindSizeExceeded,
		StatusCode: http.StatusRequestEntityTooLarge,
		Body:       "Upload-Length exceeded\n",
	}
)

// NewError creates a backend supplied error which is rendered verbatim with
// the given status code and body.
func NewError(statusCode int, body string) *Error {
	return &Error{
		Kind:       KindBackend,
		StatusCode: statusCode,
		Body:       body,
	}
}

// ErrUnknown wraps an unrecognised failure. The message of err is appended to
// the response body.
func ErrUnknown(err error) *Error {
	body := "Unknown error\n"
	if err != nil && err.Error() != "" {
		body = "Unknown error: " + err.Error() + "\n"
	}

	return &Error{
		Kind:       KindUnknown,
		StatusCode: http.StatusInternalServerError,
		Body:       body,
		Err:        err,
	}
}

// AsError maps any error returned by a DataStore onto the taxonomy.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}

	var tusErr *Error
	if errors.As(err, &tusErr) {
		return tusErr
	}

	if errors.Is(err, fs.ErrNotExist) {
		return ErrFileNotFound
	}

	return ErrUnknown(err)
}
