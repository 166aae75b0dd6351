package client

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// Error is the single error kind returned to callers. Status 0 means no
// response was received (transport failure).
type Error struct {
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return "api request failed: " + e.Detail
	}
	return fmt.Sprintf("api error %d: %s", e.Status, e.Detail)
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

func IsUnauthorized(err error) bool {
	e, ok := AsError(err)
	return ok && e.Status == http.StatusUnauthorized
}

func IsClientError(err error) bool {
	e, ok := AsError(err)
	return ok && e.Status >= 400 && e.Status < 500
}

func IsServerError(err error) bool {
	e, ok := AsError(err)
	return ok && e.Status >= 500
}

func notAuthenticated() *Error {
	return &Error{Status: http.StatusUnauthorized, Detail: "Not authenticated"}
}

// errorFromResponse reads the {"detail": ...} envelope, falling back to the
// status text when the body is not JSON or carries no detail.
func errorFromResponse(resp *resty.Response) *Error {
	status := resp.StatusCode()
	e := &Error{Status: status, Detail: statusText(resp)}

	body := resp.Body()
	if !gjson.ValidBytes(body) {
		return e
	}

	detail := gjson.GetBytes(body, "detail")
	switch {
	case !detail.Exists():
	case detail.Type == gjson.String:
		if detail.Str != "" {
			e.Detail = detail.Str
		}
	case detail.Type != gjson.Null:
		// Structured validation errors are passed through as raw JSON.
		e.Detail = detail.Raw
	}
	return e
}

func statusText(resp *resty.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status(), strconv.Itoa(resp.StatusCode())))
	if text == "" {
		text = http.StatusText(resp.StatusCode())
	}
	return text
}
