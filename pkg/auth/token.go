// Package auth issues and verifies access tokens, runs the login and registration flows
// and decides which actor may perform which action on a complaint.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"civicfix/pkg/apperror"
	"civicfix/pkg/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var errInvalidToken = apperror.Unauthorized("Invalid token")

// Claims is the payload of an access token.
type Claims struct {
	UserID int64       `json:"user_id"`
	Email  string      `json:"email"`
	Name   string      `json:"name"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) Actor() Actor {
	return Actor{ID: c.UserID, Name: c.Name, Email: c.Email, Role: c.Role}
}

// Tokens signs and parses HS256 access tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for u with a fresh token id.
func (t *Tokens) Issue(u models.User) (string, *Claims, error) {
	now := t.now()
	claims := &Claims{
		UserID: u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   fmt.Sprint(u.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", nil, apperror.Internal("Failed to generate token", err)
	}
	return signed, claims, nil
}

// Parse verifies the signature and expiry of raw and returns its claims.
func (t *Tokens) Parse(raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errInvalidToken
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, &apperror.Error{Kind: apperror.KindUnauthorized, Message: errInvalidToken.Message, Err: err}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == 0 {
		return nil, errInvalidToken
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}
