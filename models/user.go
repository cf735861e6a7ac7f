package models

import (
	"time"

	"gorm.io/gorm"
)

// Roles recognised by the incentive engine.
const (
	RoleEmployee = "EMPLOYEE"
	RoleAdmin    = "ADMIN"
)

// User is an employee or administrator. Passwords are stored as bcrypt hashes only.
// The Token* columns hold the exclusive-token lifecycle: a present TokenDisabledAt
// makes the token inert for login until an administrator clears it.
type User struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	Email               string         `gorm:"size:255;uniqueIndex;not null" json:"email"`
	PasswordHash        string         `gorm:"size:255" json:"-"`
	DisplayName         string         `gorm:"size:64;not null" json:"display_name"`
	Role                string         `gorm:"size:16;index;not null;default:'EMPLOYEE'" json:"role"`
	EmailVerifiedAt     *time.Time     `json:"email_verified_at"`
	ExclusiveToken      *string        `gorm:"size:64;uniqueIndex" json:"-"`
	TokenIssuedAt       *time.Time     `json:"token_issued_at"`
	TokenDisabledAt     *time.Time     `json:"token_disabled_at"`
	TokenDisabledReason string         `gorm:"size:255" json:"token_disabled_reason,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
	PointsAccount       *PointsAccount `gorm:"foreignKey:UserID" json:"points_account,omitempty"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// IsVerified reports whether the external OTP flow has confirmed the email.
func (u *User) IsVerified() bool {
	return u.EmailVerifiedAt != nil
}

// HasToken reports whether an exclusive token has been issued.
func (u *User) HasToken() bool {
	return u.ExclusiveToken != nil && *u.ExclusiveToken != ""
}
