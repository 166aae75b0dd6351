package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/octabyte/mmm-dashboard/auth"
)

// SetTokenInContext records the inbound bearer token on the echo context,
// taken from the Authorization header or else the Authorization cookie. The
// header itself is left untouched for the relay.
func SetTokenInContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// First, look in the request header for the Authorization key
			token := auth.BearerToken(c.Request().Header.Get(Authorization))

			// If not present, look in cookie
			if token == "" {
				if cookie, err := c.Cookie(Authorization); err == nil {
					token = cookie.Value
				}
			}

			if token != "" {
				c.Set(TokenKey, token)
			}
			return next(c)
		}
	}
}

// GetToken returns the token stored by SetTokenInContext, or "".
func GetToken(c echo.Context) string {
	token, _ := c.Get(TokenKey).(string)
	return token
}
