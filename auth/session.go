// Package auth reads the current session's bearer token for outgoing calls.
// Sessions are owned by the identity provider; nothing here mutates them.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/octabyte/mmm-dashboard/enums"
	"github.com/tidwall/gjson"
)

var ErrNoSession = errors.New("no active session")

// Session is the provider-issued credential. A zero ExpiresAt means the
// expiry is unknown and the token is treated as valid. Subject is the
// provider's user id, empty when the token does not carry one.
type Session struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Subject     string    `json:"subject,omitempty"`
}

func (s *Session) Valid(now time.Time) bool {
	if s == nil || s.AccessToken == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}

// SessionSource yields the current session. (nil, nil) means signed out.
type SessionSource interface {
	Session(ctx context.Context) (*Session, error)
}

// SessionEvent is an asynchronous session-change notification.
// Session is nil for sign-out.
type SessionEvent struct {
	Kind    enums.SessionEventKind `json:"kind"`
	Session *Session               `json:"session,omitempty"`
}

// ValidSession returns the source's session when it is present and not expired.
func ValidSession(ctx context.Context, src SessionSource) (*Session, error) {
	if src == nil {
		return nil, ErrNoSession
	}
	s, err := src.Session(ctx)
	if err != nil {
		return nil, err
	}
	if !s.Valid(time.Now()) {
		return nil, ErrNoSession
	}
	return s, nil
}

// AuthorizationHeader returns "Bearer <token>" for the current session.
func AuthorizationHeader(ctx context.Context, src SessionSource) (string, error) {
	s, err := ValidSession(ctx, src)
	if err != nil {
		return "", err
	}
	return "Bearer " + s.AccessToken, nil
}

// BearerToken strips a case-insensitive "Bearer " scheme from an
// Authorization header value. Other schemes yield "".
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// SessionFromJWT builds a Session from an access token, taking the expiry
// from the JWT "exp" claim and the subject from "sub". The signature is not verified; the backend does that.
func SessionFromJWT(token string) *Session {
	s := &Session{AccessToken: token}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return s
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return s
	}

	if exp := gjson.GetBytes(payload, "exp"); exp.Exists() && exp.Int() > 0 {
		s.ExpiresAt = time.Unix(exp.Int(), 0)
	}
	s.Subject = gjson.GetBytes(payload, "sub").String()
	return s
}
