package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"oauth-token-proxy/internal/client"
	"oauth-token-proxy/internal/config"
	"oauth-token-proxy/internal/exchange"
	"oauth-token-proxy/internal/handler"
	"oauth-token-proxy/internal/metrics"
	"oauth-token-proxy/internal/middleware"
	"oauth-token-proxy/internal/settings"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// adminServer is the optional listener for health, status and metrics.
type adminServer struct {
	*echo.Echo
}

func main() {
	var cli config.CLI
	kong.Parse(&cli,
		kong.Name("oauth-token-proxy"),
		kong.Description("Injects a client secret into OAuth token requests and relays the token endpoint's response."),
		kong.Vars{"version": fmt.Sprintf("%s (%s, %s)", version, commit, date)},
	)

	// Validate the port before fx starts so argument errors exit with a
	// plain diagnostic instead of a dependency graph failure.
	if _, err := config.ParsePort(cli.Port); err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}

	fx.New(
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With("component", "fx")}
		}),
		fx.Provide(
			func() *config.CLI { return &cli },
			func() handler.Version { return handler.Version(version) },
			config.Load,
			newLogger,
			metrics.New,
			newSettingsLoader,
			newUpstream,
			newEcho,
			newAdminServer,
			client.NewTokenClient,
			exchange.NewService,
			handler.NewTokenHandler,
			handler.NewHealthHandler,
		),
		fx.Invoke(handler.RegisterRoutes, registerAdminRoutes, checkSettings, startServer, startAdminServer),
	).Run()
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "text":
		h = slog.NewTextHandler(os.Stdout, opts)
	default:
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(h)
}

func newSettingsLoader(cfg *config.Config, logger *slog.Logger) settings.Loader {
	var loader settings.Loader = settings.NewFileLoader(cfg.Settings.Name, cfg.Settings.Dir)
	if cfg.Settings.Cache {
		loader = settings.NewCachedLoader(loader)
		logger.Info("settings cache enabled")
	}
	return loader
}

func newUpstream(c *client.TokenClient) exchange.Upstream {
	return c
}

func newEcho(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Inbound timeouts to mitigate slow-client attacks.
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = time.Duration(cfg.Upstream.TimeoutSeconds+30) * time.Second
	e.Server.IdleTimeout = 120 * time.Second
	e.Server.ReadHeaderTimeout = 10 * time.Second

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger))
	if cfg.Metrics.Enabled {
		e.Use(middleware.MetricsMiddleware(m))
	}
	if cfg.Server.CORS.Enabled {
		e.Use(middleware.CORS(cfg.Server.CORS))
		logger.Info("CORS enabled", "origins", cfg.Server.CORS.AllowedOrigins)
	}
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dB", cfg.Server.BodyMaxBytes)))
	e.Use(middleware.StripHopByHop())

	return e
}

func newAdminServer() *adminServer {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	return &adminServer{Echo: e}
}

func registerAdminRoutes(a *adminServer, health *handler.HealthHandler, cfg *config.Config, m *metrics.Metrics) {
	handler.RegisterAdminRoutes(a.Echo, health, cfg, m)
}

// checkSettings probes the settings source once at startup. Failure is logged,
// not fatal: settings are read again for every exchange.
func checkSettings(loader settings.Loader, cfg *config.Config, logger *slog.Logger) {
	if path := cfg.FilePath(); path != "" {
		logger.Info("loaded config", "path", path)
	}

	st, err := loader.Load()
	if err != nil {
		logger.Warn("settings not loadable yet; token requests will fail until they are",
			"name", cfg.Settings.Name,
			"dir", cfg.Settings.Dir,
			"err", err,
		)
		return
	}
	st.WarnPermissions(logger)
	for _, key := range []string{settings.KeyClientSecret, settings.KeyTokenURL} {
		if _, err := st.String(key); err != nil {
			logger.Warn("settings incomplete", "path", st.Path(), "err", err)
		}
	}
}

func startServer(lc fx.Lifecycle, e *echo.Echo, cfg *config.Config, logger *slog.Logger) {
	serve(lc, e, cfg.Server.Addr(), "token", logger)
}

func startAdminServer(lc fx.Lifecycle, a *adminServer, cfg *config.Config, logger *slog.Logger) {
	if !cfg.Admin.Enabled {
		return
	}
	serve(lc, a.Echo, cfg.Admin.Addr, "admin", logger)
}

func serve(lc fx.Lifecycle, e *echo.Echo, addr, name string, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("bind %s: %w", addr, err)
			}
			logger.Info("starting server", "server", name, "addr", addr)
			go func() {
				if err := e.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server error", "server", name, "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down server", "server", name)
			return e.Shutdown(ctx)
		},
	})
}
