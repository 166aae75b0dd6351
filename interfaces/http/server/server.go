package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/octabyte/mmm-dashboard/interfaces/http/echo/middleware"
	otelecho "github.com/octabyte/mmm-dashboard/otel/echo"
	"github.com/octabyte/mmm-dashboard/utils/logger"
	"go.uber.org/zap"
)

type Config struct {
	Port         string
	ServiceName  string
	BodyLimit    string // echo size notation, e.g. "200M"
	AllowOrigins []string
	Tracing      bool
	Metrics      bool
	// ShutdownTimeout bounds graceful shutdown; defaults to 10s.
	ShutdownTimeout time.Duration
}

// Routes registers handlers on the configured server.
type Routes interface {
	Register(e *echo.Echo)
}

func isHealthCheck(c echo.Context) bool {
	return c.Path() == HealthPath
}

const HealthPath = "/healthz"

// New builds the echo server with the middleware chain every route shares.
func New(cfg Config, routes ...Routes) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(log.ERROR)
	e.JSONSerializer = JSONSerializer{}
	e.HTTPErrorHandler = ErrorHandler

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))
	if cfg.Tracing {
		e.Use(otelecho.MiddlewareWithConfig(cfg.ServiceName, isHealthCheck))
	}
	e.Use(middleware.SetTokenInContext())
	e.Use(middleware.RequestLogger(isHealthCheck))
	if cfg.Metrics {
		e.Use(middleware.Metrics(isHealthCheck))
	}
	if cfg.BodyLimit != "" {
		e.Use(echomw.BodyLimit(cfg.BodyLimit))
	}
	if len(cfg.AllowOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: cfg.AllowOrigins,
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
			AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		}))
	}

	e.GET(HealthPath, func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	for _, r := range routes {
		r.Register(e)
	}
	return e
}

// ErrorHandler renders every error with the {"detail": ...} envelope.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	detail := http.StatusText(status)

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if msg, ok := he.Message.(string); ok {
			detail = msg
		} else {
			detail = fmt.Sprint(he.Message)
		}
	}

	if status >= http.StatusInternalServerError {
		logger.LogError("unhandled error", zap.Error(err), zap.String("uri", c.Request().RequestURI))
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, map[string]string{"detail": detail})
	}
	if writeErr != nil {
		logger.LogError("write error response", zap.Error(writeErr))
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, e *echo.Echo, cfg Config) error {
	errCh := make(chan error, 1)
	go func() {
		logger.LogInfo("http server listening", zap.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.LogInfo("http server shutting down")
	return e.Shutdown(shutdownCtx)
}
