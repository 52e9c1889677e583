// Package model defines shared types for the proxy.
package model

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// TokenRequest is the decoded inbound token exchange request.
type TokenRequest struct {
	Accept string
	Body   map[string]string
}

// UpstreamResponse is the raw token endpoint response.
// The caller is responsible for closing Body.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}

// Reply is the fully buffered response relayed back to the caller.
type Reply struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Validate reports whether the reply can be written as a well-formed HTTP response.
func (r *Reply) Validate() error {
	if r.StatusCode < 100 || r.StatusCode > 599 {
		return fmt.Errorf("invalid status code %d", r.StatusCode)
	}
	if len(r.Body) > 0 && !bodyAllowed(r.StatusCode) {
		return fmt.Errorf("status %d does not permit a body (%d bytes)", r.StatusCode, len(r.Body))
	}
	if cl := r.Header.Get("Content-Length"); cl != "" {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid Content-Length %q: %w", cl, err)
		}
		if n != int64(len(r.Body)) {
			return fmt.Errorf("Content-Length %d does not match body length %d", n, len(r.Body))
		}
	}
	return nil
}

func bodyAllowed(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == http.StatusNoContent, status == http.StatusNotModified:
		return false
	}
	return true
}
