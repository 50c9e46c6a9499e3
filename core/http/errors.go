package http

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Error is a failure with a fixed status code and client-facing message.
// Internal detail never goes into Message.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return strconv.Itoa(e.Code) + " " + e.Message
}

// Fixed status/message pairs used by error dispatch.
var (
	ErrBadRequest           = &Error{Code: 400, Message: "Bad Request"}
	ErrRouteNotFound        = &Error{Code: 404, Message: "Route Not Found"}
	ErrMethodNotAllowed     = &Error{Code: 405, Message: "Method Not Allowed"}
	ErrUnsupportedMediaType = &Error{Code: 415, Message: "Unsupported Media Type"}
	ErrInternal             = &Error{Code: 500, Message: "Internal Server Error"}
)

// ErrAlreadyWritten is returned by a terminal operation on a context whose
// response has already been written.
var ErrAlreadyWritten = errors.New("response already written")

// ErrorPayload is the JSON body of dispatched errors and middleware failures.
type ErrorPayload struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// AsError maps err onto a dispatch error. Parse failures become 400,
// anything that is not already an *Error becomes 500.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, ErrInvalidRequest) {
		return ErrBadRequest
	}
	return ErrInternal
}

// CodeOf returns the status code err maps to.
func CodeOf(err error) int {
	return AsError(err).Code
}

// WriteError writes e as a complete response. It is used before a Context
// exists, e.g. when the request could not be parsed, and bypasses the cache.
func WriteError(w io.Writer, e *Error) error {
	_, err := w.Write(errorResponse(e, nil))
	return errors.Wrap(err, "writing error response")
}

func errorResponse(e *Error, headers headerList) []byte {
	body, _ := json.Marshal(ErrorPayload{Message: e.Message, Status: e.Code})
	return buildResponse(e.Code, e.Message, MIMEJSON, headers, body)
}
