package entities

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// User is an account allowed to register servers and read their health.
type User struct {
	ID           string    `gorm:"type:varchar(26);primaryKey" json:"id"`
	Username     string    `gorm:"type:varchar(150);uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = NewID()
	}
	return
}

// NormalizeUsername trims and lowercases a username so lookups are
// case-insensitive.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
