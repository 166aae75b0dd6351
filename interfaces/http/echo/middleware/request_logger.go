package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/bytes"
	ctxutil "github.com/octabyte/mmm-dashboard/utils/context"
	"github.com/octabyte/mmm-dashboard/utils/logger"
	"go.uber.org/zap"
)

// RequestLogger writes one structured access-log line per request. It expects
// echo's RequestID middleware to run first.
func RequestLogger(skipper func(c echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}

			req := c.Request()
			id := c.Response().Header().Get(RequestIDHeader)
			if id != "" {
				c.SetRequest(req.WithContext(ctxutil.WithRequestID(req.Context(), id)))
			}

			start := time.Now()
			err := next(c)
			if err != nil {
				// Let echo render the error so the logged status is final.
				c.Error(err)
			}

			res := c.Response()
			fields := []zap.Field{
				zap.String("request_id", id),
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", res.Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("bytes_out", bytes.Format(res.Size)),
				zap.String("remote_ip", c.RealIP()),
			}

			switch {
			case res.Status >= 500:
				logger.LogError("request", fields...)
			case res.Status >= 400:
				logger.LogWarn("request", fields...)
			default:
				logger.LogInfo("request", fields...)
			}
			return nil
		}
	}
}
