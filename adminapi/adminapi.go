// Package adminapi implements the small operational HTTP surface the
// spec's ambient stack adds around the scraper engine: a health check,
// per-source status, and a manual scrape trigger (spec.md's
// supplemented Admin HTTP surface). It uses an echo server with a
// standard middleware stack (logger, recover, JSON error handler) and
// tags every request with a google/uuid operation ID.
package adminapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"eve.evalgo.org/otelscrape/common"
	"eve.evalgo.org/otelscrape/engine"
	"eve.evalgo.org/otelscrape/version"
)

// Engine is the subset of engine.Engine the admin surface depends on,
// narrowed so this package doesn't need the concrete type for tests.
type Engine interface {
	Sources() []string
	Status(name string) (engine.Status, bool)
	Tick(ctx context.Context, name string) error
}

// Config configures the admin server.
type Config struct {
	Port           int
	AdminSecretEnv string // env var holding the shared secret; empty disables auth
}

// New builds an echo server exposing the admin routes: a standard
// logger/recover/request-ID middleware stack plus a shared-secret
// guard in front of every route but healthz.
func New(eng Engine, cfg Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${time_rfc3339}] ${status} ${method} ${uri} (${latency_human})\n",
	}))
	e.Use(operationIDMiddleware())
	e.HTTPErrorHandler = jsonErrorHandler

	e.GET("/healthz", healthzHandler)

	secret := common.GetEnv(cfg.AdminSecretEnv, "")
	guarded := e.Group("", secretMiddleware(secret))
	guarded.GET("/sources/:name/status", statusHandler(eng))
	guarded.POST("/sources/:name/scrape-now", scrapeNowHandler(eng))

	return e
}

func operationIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("operation_id", uuid.New().String())
			return next(c)
		}
	}
}

// secretMiddleware requires the X-Admin-Secret header to match secret.
// An empty secret (adminSecretEnv unset or the env var empty) disables
// the guard entirely, since an operator who didn't configure one has
// no secret to check requests against.
func secretMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if secret == "" {
				return next(c)
			}
			if c.Request().Header.Get("X-Admin-Secret") != secret {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing X-Admin-Secret")
			}
			return next(c)
		}
	}
}

func healthzHandler(c echo.Context) error {
	info := version.GetBuildInfo()
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": info.MainVersion,
		"go":      info.GoVersion,
	})
}

func statusHandler(eng Engine) echo.HandlerFunc {
	return func(c echo.Context) error {
		name := c.Param("name")
		st, ok := eng.Status(name)
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown source %q", name))
		}
		return c.JSON(http.StatusOK, st)
	}
}

func scrapeNowHandler(eng Engine) echo.HandlerFunc {
	return func(c echo.Context) error {
		name := c.Param("name")
		if _, ok := eng.Status(name); !ok {
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("unknown source %q", name))
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Minute)
		defer cancel()

		if err := eng.Tick(ctx, name); err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, map[string]string{"source": name, "status": "triggered"})
	}
}

// jsonErrorHandler returns a JSON body instead of echo's default
// plain-text error response.
func jsonErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	message := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			message = msg
		}
	}
	if c.Response().Committed {
		return
	}
	if writeErr := c.JSON(code, map[string]string{"error": http.StatusText(code), "message": message}); writeErr != nil {
		c.Logger().Error(writeErr)
	}
}
