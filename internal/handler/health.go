package handler

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"oauth-token-proxy/internal/settings"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints on the admin listener.
type HealthHandler struct {
	settings settings.Loader
	version  Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(loader settings.Loader, v Version) *HealthHandler {
	return &HealthHandler{settings: loader, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status reports the build version and whether the settings currently load.
// Only the token endpoint's host is exposed, never the secret.
func (h *HealthHandler) Status(c echo.Context) error {
	resp := map[string]string{
		"status":   "ok",
		"version":  string(h.version),
		"settings": "ok",
	}

	st, err := h.settings.Load()
	if err != nil {
		resp["status"] = "degraded"
		resp["settings"] = err.Error()
		return c.JSON(http.StatusOK, resp)
	}

	if _, err := st.String(settings.KeyClientSecret); err != nil {
		resp["status"] = "degraded"
		resp["settings"] = err.Error()
	}
	if raw, err := st.String(settings.KeyTokenURL); err != nil {
		resp["status"] = "degraded"
		resp["settings"] = err.Error()
	} else if u, err := url.Parse(raw); err == nil {
		resp["token_host"] = u.Host
	}

	return c.JSON(http.StatusOK, resp)
}
