package echo

import (
	"github.com/labstack/echo/v4"
	"github.com/octabyte/mmm-dashboard/interfaces/http/echo/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MiddlewareWithConfig returns an Echo middleware that instruments HTTP
// requests with OpenTelemetry. Requests matching skipper (health checks) are
// not traced.
func MiddlewareWithConfig(serviceName string, skipper func(c echo.Context) bool) echo.MiddlewareFunc {
	var opts []otelecho.Option
	if skipper != nil {
		opts = append(opts, otelecho.WithSkipper(skipper))
	}
	baseMiddleware := otelecho.Middleware(serviceName, opts...)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		// The attributes are added inside the otelecho span, before it ends.
		annotated := func(c echo.Context) error {
			err := next(c)

			span := trace.SpanFromContext(c.Request().Context())
			if !span.IsRecording() {
				return err
			}

			span.SetAttributes(
				attribute.String("http.route", c.Path()),
				attribute.Int("http.status_code", c.Response().Status),
				attribute.Bool("user.token_present", middleware.GetToken(c) != ""),
			)
			if err != nil {
				span.SetAttributes(attribute.String("error.message", err.Error()))
			}
			return err
		}
		return baseMiddleware(annotated)
	}
}
