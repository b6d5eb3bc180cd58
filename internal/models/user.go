package models

import (
	"time"
)

type UserRole string

const (
	RoleUser      UserRole = "USER"
	RoleModerator UserRole = "MODERATOR"
	RoleAdmin     UserRole = "ADMIN"
)

type User struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Username    string    `gorm:"uniqueIndex;size:50;not null" json:"username"`
	Email       string    `gorm:"uniqueIndex;not null" json:"email"`
	Password    string    `gorm:"not null" json:"-"` // bcrypt hash
	DisplayName string    `gorm:"size:100" json:"display_name"`
	AvatarURL   string    `json:"avatar_url"`
	Role        UserRole  `gorm:"size:20;default:'USER';not null" json:"role"`
	Reputation  int       `gorm:"default:0" json:"reputation"`
	IsActive    bool      `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Name returns the display name, falling back to the username.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// UserSummary is the public projection embedded in question/answer/notification
// responses.
type UserSummary struct {
	ID          uint      `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Role        UserRole  `json:"role"`
	AvatarURL   string    `json:"avatar_url"`
	Reputation  int       `json:"reputation"`
	CreatedAt   time.Time `json:"created_at"`
}

func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Role:        u.Role,
		AvatarURL:   u.AvatarURL,
		Reputation:  u.Reputation,
		CreatedAt:   u.CreatedAt,
	}
}
