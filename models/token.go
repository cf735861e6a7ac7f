package models

import "time"

// TokenIssuance is written once per newly minted exclusive token and only used for quota counting.
type TokenIssuance struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Email    string    `gorm:"size:255;index:idx_issuance_email_at;not null" json:"email"`
	IssuedAt time.Time `gorm:"index:idx_issuance_email_at;not null" json:"issued_at"`
}
