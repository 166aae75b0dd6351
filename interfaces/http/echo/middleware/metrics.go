package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/octabyte/mmm-dashboard/otel/metrics"
)

// Metrics records request count, latency, sizes and in-flight requests per
// route template.
func Metrics(skipper func(c echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}

			req := c.Request()
			ctx := req.Context()
			route := c.Path()

			metrics.IncrementInFlightRequests(ctx, req.Method, route)
			defer metrics.DecrementInFlightRequests(ctx, req.Method, route)

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			res := c.Response()
			metrics.RecordHTTPRequest(ctx, req.Method, route, res.Status, time.Since(start), req.ContentLength, res.Size)
			return nil
		}
	}
}
