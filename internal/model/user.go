package model

import "time"

// User is the owner of tasks. TelegramID is the messaging address used for
// deadline reminders; users without one never receive notifications.
type User struct {
	ID               uint   `gorm:"primaryKey"`
	TelegramID       *int64 `gorm:"uniqueIndex"`
	TelegramUsername string `gorm:"size:255"`
	FirstName        string `gorm:"size:255"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ChatID returns the Telegram chat to deliver notifications to.
func (u *User) ChatID() (int64, bool) {
	if u == nil || u.TelegramID == nil {
		return 0, false
	}
	return *u.TelegramID, true
}
