package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"oauth-token-proxy/internal/exchange"
	"oauth-token-proxy/internal/middleware"
	"oauth-token-proxy/internal/model"
)

// Exchanger performs a token exchange.
type Exchanger interface {
	Exchange(ctx context.Context, req *model.TokenRequest) (*model.Reply, error)
}

// TokenHandler serves POST /oauth/token.
type TokenHandler struct {
	exchanger Exchanger
	logger    *slog.Logger
}

// NewTokenHandler creates a TokenHandler.
func NewTokenHandler(svc *exchange.Service, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{
		exchanger: svc,
		logger:    logger.With("component", "token_handler"),
	}
}

// Handle checks the Accept header, decodes the JSON body and relays the token
// endpoint's response back to the caller.
func (h *TokenHandler) Handle(c echo.Context) error {
	req := c.Request()

	// The Accept check comes first so a bad Accept wins over a bad body.
	accept := req.Header.Get(echo.HeaderAccept)
	if err := exchange.CheckAccept(accept); err != nil {
		return h.writeError(c, err)
	}

	body, err := decodeBody(req.Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he // body limit exceeded mid-stream
		}
		return h.writeError(c, exchange.InvalidBody(err))
	}

	reply, err := h.exchanger.Exchange(req.Context(), &model.TokenRequest{
		Accept: accept,
		Body:   body,
	})
	if err != nil {
		return h.writeError(c, err)
	}

	return writeReply(c, reply)
}

// decodeBody parses a flat JSON object of string values. Empty bodies, null,
// non-object documents, non-string values and trailing data are rejected.
func decodeBody(r io.Reader) (map[string]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("request body is empty")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	var body map[string]string
	if err := dec.Decode(&body); err != nil {
		return nil, err
	}
	if body == nil {
		return nil, errors.New("request body must be a JSON object")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after JSON object")
	}
	return body, nil
}

// serverDefaultHeaders are set by net/http when a handler leaves them unset.
var serverDefaultHeaders = []string{
	echo.HeaderContentType,
	echo.HeaderContentLength,
	"Date",
}

// writeReply writes the relayed status, headers and body unchanged.
func writeReply(c echo.Context, reply *model.Reply) error {
	header := c.Response().Header()
	for key, vals := range reply.Header {
		header[key] = append([]string(nil), vals...)
	}
	// A present nil entry stops the server from sniffing or filling it in.
	for _, key := range serverDefaultHeaders {
		if _, ok := reply.Header[key]; !ok {
			header[key] = nil
		}
	}
	c.Response().WriteHeader(reply.StatusCode)
	if len(reply.Body) == 0 {
		return nil
	}
	_, err := c.Response().Write(reply.Body)
	return err
}

// errorDocument is the JSON body of every proxy-generated error.
type errorDocument struct {
	Message string  `json:"message"`
	Error   *string `json:"error,omitempty"`
}

// writeError renders err as an error document. Errors that are not
// *exchange.Error become a 500 with a generic message.
func (h *TokenHandler) writeError(c echo.Context, err error) error {
	var xerr *exchange.Error
	if !errors.As(err, &xerr) {
		xerr = &exchange.Error{
			Status:  http.StatusInternalServerError,
			Message: "Internal proxy error",
			Err:     err,
		}
	}

	level := slog.LevelWarn
	if xerr.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(c.Request().Context(), level, "token exchange failed",
		"status", xerr.Status,
		"message", xerr.Message,
		"err", xerr.Detail(),
		"request_id", middleware.RequestID(c),
	)

	var detail *string
	if xerr.Err != nil {
		d := xerr.Err.Error()
		detail = &d
	}
	return WriteErrorDocument(c, xerr.Status, xerr.Message, detail)
}

// WriteErrorDocument writes {"message": msg}, or {"message": msg, "error": *detail}
// when detail is non-nil, with Content-Type application/json.
func WriteErrorDocument(c echo.Context, status int, msg string, detail *string) error {
	data, err := json.Marshal(errorDocument{Message: msg, Error: detail})
	if err != nil {
		return err
	}
	return c.Blob(status, echo.MIMEApplicationJSON, data)
}
