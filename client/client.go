// Package client is the typed request/response wrapper used by UI code to
// reach the modeling backend, directly or through the dashboard proxy.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/octabyte/mmm-dashboard/auth"
	"github.com/octabyte/mmm-dashboard/otel"
)

type Config struct {
	// BaseURL is the backend origin, or the dashboard's proxy namespace URL.
	BaseURL   string        `validate:"required,url"`
	Timeout   time.Duration `validate:"gte=0"`
	UserAgent string
}

func (cfg *Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(cfg)
}

type Client struct {
	http     *resty.Client
	sessions auth.SessionSource
	validate *validator.Validate
}

// New returns a client that attaches the bearer token of sessions to every call.
func New(cfg Config, sessions auth.SessionSource) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client configuration: %w", err)
	}

	rc := otel.NewTracedRestyClient(strings.TrimRight(cfg.BaseURL, "/")).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)
	if cfg.Timeout > 0 {
		rc.SetTimeout(cfg.Timeout)
	}
	if cfg.UserAgent != "" {
		rc.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Client{
		http:     rc,
		sessions: sessions,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}, nil
}

type RequestOptions struct {
	Method  string // defaults to GET
	Body    interface{}
	Headers map[string]string
}

// Request issues a JSON call and decodes a 2xx body into T. Without a valid
// session it fails with a 401 *Error before touching the network.
func Request[T any](ctx context.Context, c *Client, path string, opts RequestOptions) (*T, error) {
	authorization, err := auth.AuthorizationHeader(ctx, c.sessions)
	if err != nil {
		return nil, notAuthenticated()
	}

	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeaders(opts.Headers).
		SetHeader("Authorization", authorization)

	if opts.Body != nil {
		body, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	return decode[T](resp, err)
}

type FormFile struct {
	Field    string
	FileName string
	// ContentType is detected from the content when empty.
	ContentType string
	Reader      io.Reader
}

type UploadForm struct {
	Fields map[string]string
	Files  []FormFile
}

// UploadFile posts form as multipart/form-data. The Content-Type header,
// including its boundary, is produced by the HTTP client and never set here.
func UploadFile[T any](ctx context.Context, c *Client, path string, form UploadForm) (*T, error) {
	authorization, err := auth.AuthorizationHeader(ctx, c.sessions)
	if err != nil {
		return nil, notAuthenticated()
	}

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", authorization)
	if len(form.Fields) > 0 {
		req.SetMultipartFormData(form.Fields)
	}
	for _, f := range form.Files {
		if f.ContentType == "" {
			req.SetFileReader(f.Field, f.FileName, f.Reader)
			continue
		}
		req.SetMultipartField(f.Field, f.FileName, f.ContentType, f.Reader)
	}

	resp, err := req.Post(path)
	return decode[T](resp, err)
}

func decode[T any](resp *resty.Response, err error) (*T, error) {
	if err != nil {
		return nil, &Error{Detail: err.Error()}
	}
	if !resp.IsSuccess() {
		return nil, errorFromResponse(resp)
	}

	out := new(T)
	body := bytes.TrimSpace(resp.Body())
	if len(body) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", resp.Request.URL, err)
	}
	return out, nil
}
