// Package proxy relays browser calls made under a path namespace to the
// modeling backend, passing bodies through byte for byte.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	"github.com/labstack/echo/v4"
	"github.com/octabyte/mmm-dashboard/otel"
	otellogger "github.com/octabyte/mmm-dashboard/otel/logger"
	"github.com/octabyte/mmm-dashboard/otel/metrics"
	"github.com/octabyte/mmm-dashboard/utils/logger"
	"go.uber.org/zap"
)

const (
	DefaultBackendURL   = "http://localhost:8000"
	DefaultNamespace    = "/api/backend"
	DefaultTimeout      = 120 * time.Second
	DefaultLogBodyLimit = 500

	downstreamName = "backend"
)

type Config struct {
	BackendURL   string        `validate:"required,url"`
	Namespace    string        `validate:"required,startswith=/"`
	Timeout      time.Duration `validate:"gt=0"`
	ServiceName  string
	LogBodyLimit int `validate:"gte=0"`
}

type Option func(*Handler)

// WithHTTPClient replaces the underlying transport client. The configured
// timeout still applies.
func WithHTTPClient(hc *http.Client) Option {
	return func(h *Handler) {
		h.http = resty.NewWithClient(hc)
	}
}

type Handler struct {
	cfg  Config
	http *resty.Client
}

func New(cfg Config, opts ...Option) (*Handler, error) {
	if cfg.Namespace != "/" {
		cfg.Namespace = strings.TrimRight(cfg.Namespace, "/")
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid proxy configuration: %w", err)
	}
	cfg.BackendURL = strings.TrimRight(cfg.BackendURL, "/")
	if cfg.ServiceName == "" {
		cfg.ServiceName = "mmm-dashboard"
	}

	h := &Handler{cfg: cfg, http: resty.New()}
	for _, opt := range opts {
		opt(h)
	}
	h.http.
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetLogger(zap.S()).
		SetPreRequestHook(restrictHeaders)
	return h, nil
}

type allowedHeadersKey struct{}

// restrictHeaders removes every header the relay did not set itself, such as
// a Content-Type guessed from the body or the client's default User-Agent.
func restrictHeaders(_ *resty.Client, req *http.Request) error {
	allowed, ok := req.Context().Value(allowedHeadersKey{}).(map[string]bool)
	if !ok {
		return nil
	}
	for name := range req.Header {
		if !allowed[http.CanonicalHeaderKey(name)] {
			delete(req.Header, name)
		}
	}
	if !allowed["User-Agent"] {
		// An empty value keeps net/http from adding its default.
		req.Header["User-Agent"] = []string{""}
	}
	return nil
}

func (h *Handler) Register(e *echo.Echo) {
	e.Any(h.cfg.Namespace, h.Forward)
	e.Any(strings.TrimRight(h.cfg.Namespace, "/")+"/*", h.Forward)
}

// Target maps an inbound escaped path and raw query onto the backend URL.
// The query is appended unmodified.
func (h *Handler) Target(escapedPath, rawQuery string) string {
	suffix := escapedPath
	if h.cfg.Namespace != "/" {
		suffix = strings.TrimPrefix(escapedPath, h.cfg.Namespace)
	}
	target := h.cfg.BackendURL + suffix
	if rawQuery != "" {
		target += "?" + rawQuery
	}
	return target
}

// outbound is the fully resolved request sent to the backend. Headers are
// computed once, after the body and its exact Content-Type are known.
type outbound struct {
	method  string
	target  string
	headers map[string]string
	body    []byte
	hasBody bool
}

func (h *Handler) buildOutbound(req *http.Request) (*outbound, error) {
	out := &outbound{
		method:  req.Method,
		target:  h.Target(req.URL.EscapedPath(), req.URL.RawQuery),
		headers: map[string]string{},
	}

	contentType := req.Header.Get(echo.HeaderContentType)
	if req.Method != http.MethodGet && req.Method != http.MethodHead && req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		switch {
		case isMultipart(contentType):
			// Exact bytes with the boundary-bearing header of the client.
			out.body, out.hasBody = body, true
		case len(body) > 0:
			out.body, out.hasBody = body, true
		}
	}

	if v := req.Header.Get(echo.HeaderAuthorization); v != "" {
		out.headers[echo.HeaderAuthorization] = v
	}
	if contentType != "" {
		out.headers[echo.HeaderContentType] = contentType
	}
	return out, nil
}

func isMultipart(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), echo.MIMEMultipartForm)
	}
	return mediaType == echo.MIMEMultipartForm
}

// Forward relays the request and always answers: backend responses are
// copied as-is and transport failures become 502.
func (h *Handler) Forward(c echo.Context) error {
	out, err := h.buildOutbound(c.Request())
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read request body")
	}

	ctx := c.Request().Context()
	otellogger.InfoCtx(ctx, "proxy request",
		zap.String("method", out.method),
		zap.String("target", out.target),
	)

	start := time.Now()
	resp, err := h.do(ctx, out)
	duration := time.Since(start)
	metrics.RecordDownstreamCall(ctx, downstreamName, duration, err == nil && resp.StatusCode() < http.StatusInternalServerError)

	if err != nil {
		otellogger.ErrorCtx(ctx, "backend unreachable", err,
			zap.String("method", out.method),
			zap.String("target", out.target),
			zap.Duration("duration", duration),
		)
		return c.JSON(http.StatusBadGateway, map[string]string{
			"detail": "Backend unreachable: " + err.Error(),
		})
	}

	body := resp.Body()
	status := resp.StatusCode()
	fields := []zap.Field{
		zap.String("method", out.method),
		zap.String("target", out.target),
		zap.Int("status", status),
		zap.Duration("duration", duration),
		zap.Int("bytes", len(body)),
	}
	if status >= http.StatusBadRequest {
		otellogger.WarnCtx(ctx, "backend error response",
			append(fields, zap.String("body", logger.Truncate(string(body), h.cfg.LogBodyLimit)))...)
	} else {
		otellogger.DebugCtx(ctx, "backend response", fields...)
	}

	contentType := resp.Header().Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = echo.MIMEApplicationJSON
	}
	return c.Blob(status, contentType, body)
}

func (h *Handler) do(ctx context.Context, out *outbound) (*resty.Response, error) {
	ctx, finish := otel.StartHTTPSpan(ctx, h.cfg.ServiceName, downstreamName, "proxy", out.method, h.cfg.BackendURL, strings.TrimPrefix(out.target, h.cfg.BackendURL))

	headers := otel.InjectTraceHeaders(ctx, out.headers)
	allowed := make(map[string]bool, len(headers))
	for name := range headers {
		allowed[http.CanonicalHeaderKey(name)] = true
	}

	req := h.http.R().
		SetContext(context.WithValue(ctx, allowedHeadersKey{}, allowed)).
		SetHeaders(headers)
	if out.hasBody {
		req.SetBody(out.body)
	}

	resp, err := req.Execute(out.method, out.target)
	if err != nil {
		finish(0, err)
		return nil, err
	}
	finish(resp.StatusCode(), nil)
	return resp, nil
}
