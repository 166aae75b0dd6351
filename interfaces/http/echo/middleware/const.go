package middleware

const (
	Authorization   = "Authorization"
	TokenKey        = "requestToken"
	RequestIDHeader = "X-Request-Id"
)
