package models

import (
	"slices"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
)

var Roles = []Role{RoleUser, RoleAdmin, RoleModerator}

func (r Role) Valid() bool {
	return slices.Contains(Roles, r)
}

type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Name         string    `gorm:"not null" json:"name"`
	Role         Role      `gorm:"default:'user'" json:"role"`
	Avatar       string    `json:"avatar,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// AsReporter embeds the user into a complaint.
func (u User) AsReporter() Reporter {
	return Reporter{ID: u.ID, Name: u.Name, Email: u.Email}
}

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type Registration struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=100"`
}
