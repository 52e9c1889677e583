package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/labstack/echo/v4"

	"oauth-token-proxy/internal/config"
)

// CORS returns an Echo middleware that lets browser clients on the allowed
// origins call the token route, answering preflight requests itself.
func CORS(cfg config.CORSConfig) echo.MiddlewareFunc {
	return echo.WrapMiddleware(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           cfg.MaxAge,
	}))
}
