package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"civicfix/pkg/apperror"
	"civicfix/pkg/models"

	"gorm.io/gorm"
)

// GormUserRepository keeps accounts in PostgreSQL through GORM.
type GormUserRepository struct {
	db *gorm.DB
}

func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

// Migrate creates the users table and inserts the demo accounts when it is empty.
func (r *GormUserRepository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&models.User{}); err != nil {
		return fmt.Errorf("failed to migrate users: %w", err)
	}

	var n int64
	if err := r.db.WithContext(ctx).Model(&models.User{}).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to count users: %w", err)
	}
	if n > 0 {
		return nil
	}

	seed, err := SeedUsers()
	if err != nil {
		return err
	}
	for i := range seed {
		seed[i].ID = 0
	}
	if err := r.db.WithContext(ctx).Create(&seed).Error; err != nil {
		return fmt.Errorf("failed to seed users: %w", err)
	}
	return nil
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(email)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, errUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to fetch user: %w", err)
	}
	return u, nil
}

func (r *GormUserRepository) FindByID(ctx context.Context, id int64) (models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).First(&u, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.User{}, errUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to fetch user: %w", err)
	}
	return u, nil
}

func (r *GormUserRepository) Create(ctx context.Context, u models.User) (models.User, error) {
	if _, err := r.FindByEmail(ctx, u.Email); err == nil {
		return models.User{}, apperror.Conflict("User already exists")
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return models.User{}, err
	}

	u.ID = 0
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	err := r.db.WithContext(ctx).Create(&u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return models.User{}, apperror.Conflict("User already exists")
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}
