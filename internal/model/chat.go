package model

import "time"

// Chat is a Telegram group in which household tasks are tracked.
type Chat struct {
	ID         uint  `gorm:"primaryKey"`
	TelegramID int64 `gorm:"uniqueIndex"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Members    []User `gorm:"many2many:chat_members;constraint:OnDelete:CASCADE"`
}
