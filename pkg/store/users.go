package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"civicfix/pkg/apperror"
	"civicfix/pkg/models"
)

var errUserNotFound = apperror.NotFound("User not found")

// UserStore is the in-memory user directory.
type UserStore struct {
	mu      sync.RWMutex
	users   []models.User
	nextID  int64
	latency time.Duration
	now     func() time.Time
}

type UserOption func(*UserStore)

// WithUserLatency sets the delay of every user lookup and insert.
func WithUserLatency(d time.Duration) UserOption {
	return func(s *UserStore) { s.latency = d }
}

func WithUsers(users []models.User) UserOption {
	return func(s *UserStore) { s.users = users }
}

// NewUserStore builds a store seeded with the demo accounts unless WithUsers is given.
func NewUserStore(opts ...UserOption) (*UserStore, error) {
	s := &UserStore{
		latency: 500 * time.Millisecond,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.users == nil {
		seeded, err := SeedUsers()
		if err != nil {
			return nil, err
		}
		s.users = seeded
	}
	for _, u := range s.users {
		s.nextID = max(s.nextID, u.ID)
	}
	s.nextID++
	return s, nil
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (models.User, error) {
	if err := wait(ctx, s.latency); err != nil {
		return models.User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return models.User{}, errUserNotFound
}

func (s *UserStore) FindByID(ctx context.Context, id int64) (models.User, error) {
	if err := wait(ctx, s.latency); err != nil {
		return models.User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return models.User{}, errUserNotFound
}

// Create inserts u with a fresh id. The email must not be taken.
func (s *UserStore) Create(ctx context.Context, u models.User) (models.User, error) {
	if err := wait(ctx, s.latency); err != nil {
		return models.User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return models.User{}, apperror.Conflict("User already exists")
		}
	}

	now := s.now().UTC()
	u.ID = s.nextID
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	s.nextID++
	s.users = append(s.users, u)
	return u, nil
}
