package models

import (
	"time"
)

type NotificationType string

const (
	NotificationQuestionAnswered NotificationType = "QUESTION_ANSWERED"
	NotificationAnswerAccepted   NotificationType = "ANSWER_ACCEPTED"
	NotificationAnswerUpvoted    NotificationType = "ANSWER_UPVOTED"
	NotificationAnswerDownvoted  NotificationType = "ANSWER_DOWNVOTED"
	NotificationUserMentioned    NotificationType = "USER_MENTIONED"
)

// ReferenceType tells clients what ReferenceID points at.
const (
	RefQuestion = "QUESTION"
	RefAnswer   = "ANSWER"
)

type Notification struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	UserID        uint             `gorm:"not null;index" json:"user_id"` // recipient
	User          User             `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	ActorID       *uint            `gorm:"index" json:"actor_id"` // triggering user
	Actor         *User            `gorm:"foreignKey:ActorID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"actor,omitempty"`
	Type          NotificationType `gorm:"size:30;not null" json:"type"`
	Message       string           `gorm:"size:500;not null" json:"message"`
	ReferenceID   uint             `gorm:"index" json:"reference_id"`
	ReferenceType string           `gorm:"size:50" json:"reference_type"`
	ActionURL     string           `json:"action_url"`
	IsRead        bool             `gorm:"default:false;index" json:"is_read"`
	ReadAt        *time.Time       `json:"read_at"`
	CreatedAt     time.Time        `json:"created_at"`
}
