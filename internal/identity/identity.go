// Package identity exchanges a Google ID token for a short-lived session
// token and resolves the owner identifier on later requests. An absent
// identifier is not an error; it simply scopes every query to no data.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/api/idtoken"
)

var (
	ErrInvalidIDToken = errors.New("invalid google id token")
	ErrInvalidSession = errors.New("invalid session token")
)

// googleValidator matches idtoken.Validate, injectable for tests.
type googleValidator func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// Service verifies Google sign-ins and mints session tokens signed with the
// local HMAC secret. The session subject is the Google account's email,
// which is the owner key on every stored row.
type Service struct {
	audience string
	secret   []byte
	ttl      time.Duration
	now      func() time.Time
	validate googleValidator
}

type Option func(*Service)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithGoogleValidator replaces the live Google certificate check, for tests.
func WithGoogleValidator(v func(ctx context.Context, token, audience string) (*idtoken.Payload, error)) Option {
	return func(s *Service) { s.validate = v }
}

func NewService(audience string, secret []byte, ttl time.Duration, opts ...Option) *Service {
	s := &Service{
		audience: audience,
		secret:   secret,
		ttl:      ttl,
		now:      time.Now,
		validate: idtoken.Validate,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Exchange validates the Google ID token against this deployment's OAuth
// audience and returns a session token for the verified account.
func (s *Service) Exchange(ctx context.Context, rawIDToken string) (string, error) {
	payload, err := s.validate(ctx, rawIDToken, s.audience)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}
	email, _ := payload.Claims["email"].(string)
	if email == "" {
		return "", fmt.Errorf("%w: token carries no email", ErrInvalidIDToken)
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Owner returns the owner identifier carried by a session token. An empty
// token yields an empty owner with no error; a malformed or expired token is
// rejected.
func (s *Service) Owner(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidSession)
	}
	return claims.Subject, nil
}
