package model

import (
	"fmt"
	"strings"
	"time"
)

// User stores Telegram user metadata.
type User struct {
	ID         uint  `gorm:"primaryKey"`
	TelegramID int64 `gorm:"uniqueIndex"`
	FirstName  string
	LastName   string
	Username   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// DisplayName prefers the @handle, then the full name.
func (u User) DisplayName() string {
	if handle := strings.TrimSpace(u.Username); handle != "" {
		return "@" + handle
	}
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	return fmt.Sprintf("user %d", u.TelegramID)
}
