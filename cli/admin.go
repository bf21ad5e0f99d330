package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"eve.evalgo.org/otelscrape/adminapi"
	"eve.evalgo.org/otelscrape/common"
	"eve.evalgo.org/otelscrape/config"
	"eve.evalgo.org/otelscrape/engine"
)

// adminServer runs the admin echo server in the background with a
// "start now, shut down on signal" lifecycle.
type adminServer struct {
	echo   *echo.Echo
	logger *common.ContextLogger
}

func startAdminServer(eng *engine.Engine, cfg config.Scraper, logger *common.ContextLogger) *adminServer {
	secret := common.GetEnv(cfg.AdminSecretEnv, "")
	logger.WithField("admin_secret", common.MaskSecret(secret)).Info("admin api enabled")

	e := adminapi.New(eng, adminapi.Config{Port: cfg.ServicePort, AdminSecretEnv: cfg.AdminSecretEnv})
	srv := &adminServer{echo: e, logger: logger}

	go func() {
		addr := fmt.Sprintf(":%d", cfg.ServicePort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.WithFields(common.ErrorFields(err, "admin_server")).Error("admin server stopped unexpectedly")
		}
	}()

	return srv
}

func (a *adminServer) stop(graceful bool) {
	timeout := 2 * time.Second
	if graceful {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := a.echo.Shutdown(ctx); err != nil {
		a.logger.WithFields(common.ErrorFields(err, "admin_shutdown")).Warn("admin server did not shut down cleanly")
	}
}
