package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"oauth-token-proxy/internal/config"
	"oauth-token-proxy/internal/metrics"
)

// TokenPath is the only route on the public listener.
const TokenPath = "/oauth/token"

// RegisterRoutes wires the token route onto the public Echo instance.
func RegisterRoutes(e *echo.Echo, token *TokenHandler) {
	e.POST(TokenPath, token.Handle)
}

// RegisterAdminRoutes wires health, status and (when enabled) metrics onto
// the admin Echo instance.
func RegisterAdminRoutes(e *echo.Echo, health *HealthHandler, cfg *config.Config, m *metrics.Metrics) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	if cfg.Metrics.Enabled && m != nil {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}
}
