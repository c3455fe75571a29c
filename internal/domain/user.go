package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is an account together with its profile (org membership and role).
type User struct {
	UserID       uuid.UUID      `gorm:"column:user_id;type:uuid;primaryKey" json:"user_id"`
	Fullname     string         `gorm:"column:fullname" json:"fullname"`
	Email        string         `gorm:"column:email;not null;uniqueIndex" json:"email"`
	PasswordHash string         `gorm:"column:password_hash;not null" json:"-"`
	OrgID        *uuid.UUID     `gorm:"column:org_id;type:uuid" json:"org_id"`
	Role         string         `gorm:"column:role;not null;default:'member'" json:"role"`
	CreatedAt    time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// BeforeCreate sets UUID if not set (for DBs without gen_random_uuid).
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.UserID == uuid.Nil {
		u.UserID = uuid.New()
	}
	return nil
}

// Actor is the authenticated profile a request or a session acts as. It is
// derived from the cookie session and passed explicitly; nothing caches it globally.
type Actor struct {
	UserID uuid.UUID `json:"user_id"`
	OrgID  uuid.UUID `json:"org_id"`
	Role   string    `json:"role"`
	Email  string    `json:"email"`
}

// Valid reports whether a belongs to a user inside an org.
func (a *Actor) Valid() bool {
	return a != nil && a.UserID != uuid.Nil && a.OrgID != uuid.Nil
}
