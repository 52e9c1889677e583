package exchange

import (
	"net/http"
)

// Messages carried in the "message" field of error replies.
const (
	MsgUnsupportedAccept = "Unsupported response content type"
	MsgInvalidBody       = "Invalid request body"
	MsgLoadSettings      = "Could not load proxy settings"
	MsgClientSecret      = "Could not retrieve client secret"
	MsgTokenURL          = "Could not retrieve token URL"
	MsgEncodeRequest     = "Could not encode token request"
	MsgUpstream          = "Error retrieving response from token URL"
	MsgResponseHeader    = "Error retrieving a token response header"
	MsgResponseBody      = "Could not unwrap body of token response"
	MsgConstructResponse = "Could not unwrap constructed response"
)

// Error is a terminal exchange failure rendered to the caller as
// {"message": Message, "error": Err.Error()} with the given Status.
type Error struct {
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Detail returns the underlying diagnostic, or "" when there is none.
func (e *Error) Detail() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func badRequest(msg string, err error) *Error {
	return &Error{Status: http.StatusBadRequest, Message: msg, Err: err}
}

func internalError(msg string, err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Message: msg, Err: err}
}

// InvalidBody wraps a request body decoding failure.
func InvalidBody(err error) *Error {
	return badRequest(MsgInvalidBody, err)
}
