package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"civicfix/pkg/apperror"
	"civicfix/pkg/models"
	"civicfix/pkg/security"
)

var errInvalidCredentials = apperror.Unauthorized("Invalid credentials")

// UserRepository is the account storage the service reads and writes.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id int64) (models.User, error)
	Create(ctx context.Context, u models.User) (models.User, error)
}

// Revoker remembers logged-out token ids until the tokens would have expired anyway.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Session is returned by a successful login or registration.
type Session struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

type Service struct {
	users    UserRepository
	tokens   *Tokens
	revoker  Revoker
	verifier *Verifier
}

func NewService(users UserRepository, tokens *Tokens, revoker Revoker) *Service {
	return &Service{
		users:    users,
		tokens:   tokens,
		revoker:  revoker,
		verifier: NewVerifier(tokens, revoker),
	}
}

func (s *Service) Login(ctx context.Context, creds models.Credentials) (Session, error) {
	if err := models.Validate(creds); err != nil {
		return Session{}, err
	}

	u, err := s.users.FindByEmail(ctx, strings.TrimSpace(creds.Email))
	if errors.Is(err, apperror.ErrNotFound) {
		return Session{}, errInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if !security.CheckPasswordHash(creds.Password, u.PasswordHash) {
		return Session{}, errInvalidCredentials
	}
	return s.session(u)
}

func (s *Service) Register(ctx context.Context, reg models.Registration) (Session, error) {
	reg.Name = strings.TrimSpace(reg.Name)
	reg.Email = strings.TrimSpace(reg.Email)
	if err := models.Validate(reg); err != nil {
		return Session{}, err
	}

	hash, err := security.HashPassword(reg.Password)
	if err != nil {
		return Session{}, apperror.Internal("Failed to process registration", err)
	}

	u, err := s.users.Create(ctx, models.User{
		Email:        reg.Email,
		Name:         reg.Name,
		PasswordHash: hash,
		Role:         models.RoleUser,
	})
	if err != nil {
		return Session{}, err
	}
	return s.session(u)
}

// Authenticate verifies token and rejects it if it was logged out.
func (s *Service) Authenticate(ctx context.Context, token string) (*Claims, error) {
	return s.verifier.Authenticate(ctx, token)
}

// Verifier authenticates bearer tokens for services that do not own the user table.
type Verifier struct {
	tokens  *Tokens
	revoker Revoker
}

// NewVerifier returns a Verifier. A nil revoker skips the logout check.
func NewVerifier(tokens *Tokens, revoker Revoker) *Verifier {
	return &Verifier{tokens: tokens, revoker: revoker}
}

func (v *Verifier) Authenticate(ctx context.Context, token string) (*Claims, error) {
	claims, err := v.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	if v.revoker == nil {
		return claims, nil
	}

	revoked, err := v.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, apperror.Internal("Failed to check session", err)
	}
	if revoked {
		return nil, errInvalidToken
	}
	return claims, nil
}

// CurrentUser resolves the account behind token.
func (s *Service) CurrentUser(ctx context.Context, token string) (models.User, error) {
	claims, err := s.Authenticate(ctx, token)
	if err != nil {
		return models.User{}, err
	}

	u, err := s.users.FindByID(ctx, claims.UserID)
	if errors.Is(err, apperror.ErrNotFound) {
		return models.User{}, errInvalidToken
	}
	return u, err
}

// Logout revokes token. Logging out an already invalid token is not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.tokens.Parse(token)
	if err != nil || s.revoker == nil {
		return nil
	}

	until := time.Now().Add(time.Hour)
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	if err := s.revoker.Revoke(ctx, claims.ID, until); err != nil {
		return apperror.Internal("Failed to log out", err)
	}
	return nil
}

func (s *Service) session(u models.User) (Session, error) {
	token, _, err := s.tokens.Issue(u)
	if err != nil {
		return Session{}, err
	}
	return Session{User: u, Token: token}, nil
}
