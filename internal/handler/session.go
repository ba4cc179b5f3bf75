package handler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionCookieName is the cookie carrying the signed session token.
const SessionCookieName = "session_token"

// DefaultSessionTTL is how long a session cookie stays valid.
const DefaultSessionTTL = 24 * time.Hour

// ErrNoSession is returned when the request carries no valid session token.
var ErrNoSession = errors.New("no session")

// Session identifies the browser session that owns a credential.
type Session struct {
	ID    string
	Email string
}

// Sessions signs and verifies session tokens.
type Sessions struct {
	secret   []byte
	ttl      time.Duration
	sameSite string
	now      func() time.Time
}

// NewSessions creates a Sessions. Outside dev mode cookies are sent with
// SameSite=None so the frontend and API can sit on different origins.
func NewSessions(secret string, devMode bool) *Sessions {
	sameSite := "None"
	if devMode {
		sameSite = "Lax"
	}
	return &Sessions{
		secret:   []byte(secret),
		ttl:      DefaultSessionTTL,
		sameSite: sameSite,
		now:      time.Now,
	}
}

// New starts a session with a fresh id.
func (s *Sessions) New() *Session {
	return &Session{ID: uuid.New().String()}
}

// Get reads the session from the Authorization header or the session cookie.
func (s *Sessions) Get(req events.APIGatewayProxyRequest) (*Session, error) {
	tokenString := ""
	authHeader := Header(req, "Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		tokenString = strings.TrimPrefix(authHeader, "Bearer ")
	}

	if tokenString == "" {
		// Cookie format: session_token=xxx; ...
		for _, part := range strings.Split(Header(req, "Cookie"), ";") {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(part, SessionCookieName+"=") {
				tokenString = strings.TrimPrefix(part, SessionCookieName+"=")
				break
			}
		}
	}

	if tokenString == "" {
		return nil, ErrNoSession
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid token: %v", ErrNoSession, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", ErrNoSession)
	}
	sid, _ := claims["sid"].(string)
	if sid == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrNoSession)
	}
	email, _ := claims["email"].(string)
	return &Session{ID: sid, Email: email}, nil
}

// Cookie signs sess and formats it as a Set-Cookie value.
func (s *Sessions) Cookie(sess *Session) (string, error) {
	claims := jwt.MapClaims{
		"sid": sess.ID,
		"exp": s.now().Add(s.ttl).Unix(),
	}
	if sess.Email != "" {
		claims["email"] = sess.Email
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return fmt.Sprintf("%s=%s; HttpOnly; Path=/; Max-Age=%d; SameSite=%s; Secure",
		SessionCookieName, signed, int(s.ttl.Seconds()), s.sameSite), nil
}

// ClearCookie returns a Set-Cookie value that removes the session cookie.
func (s *Sessions) ClearCookie() string {
	return fmt.Sprintf("%s=; HttpOnly; Path=/; Max-Age=0; SameSite=%s; Secure", SessionCookieName, s.sameSite)
}
