package entities

import (
	"time"

	"gorm.io/gorm"
)

// Server is an on-premise machine reporting sensor readings.
type Server struct {
	ULID      string    `gorm:"column:ulid;type:varchar(26);primaryKey" json:"ulid"`
	Name      string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"name"`
	UserID    *string   `gorm:"type:varchar(26);index" json:"user_id,omitempty"`
	User      *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func (Server) TableName() string { return "servers" }

func (s *Server) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ULID == "" {
		s.ULID = NewID()
	}
	return
}

// OwnedBy reports whether userID owns the server.
func (s *Server) OwnedBy(userID string) bool {
	return s.UserID != nil && *s.UserID == userID
}
