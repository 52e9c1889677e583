// Package middleware provides Echo middleware for logging, metrics, CORS and
// hop-by-hop header handling.
package middleware

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const requestIDKey = "request_id"

// maxRequestIDLen bounds caller-supplied request ids accepted into logs.
const maxRequestIDLen = 128

// RequestLogger returns an Echo middleware that logs each request with slog.
//
// Each request gets an id, taken from the inbound X-Request-Id header or
// generated. The id is stored on the context for other log lines and is not
// written to the response: relayed replies carry the token endpoint's headers only.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			req := c.Request()
			rid := req.Header.Get(echo.HeaderXRequestID)
			if rid == "" || len(rid) > maxRequestIDLen {
				rid = uuid.NewString()
			}
			c.Set(requestIDKey, rid)

			err := next(c)

			res := c.Response()
			status := responseStatus(c, err)

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}

			logger.Log(req.Context(), level, "request",
				"method", req.Method,
				"path", req.URL.Path,
				"status", status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", rid,
				"remote_ip", c.RealIP(),
				"bytes_out", res.Size,
			)

			return err
		}
	}
}

// RequestID returns the id RequestLogger assigned to the request, or "".
func RequestID(c echo.Context) string {
	if id, ok := c.Get(requestIDKey).(string); ok {
		return id
	}
	return ""
}
