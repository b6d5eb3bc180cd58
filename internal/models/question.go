package models

import (
	"time"
)

type Question struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"not null;index" json:"user_id"`
	User             User      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"user"`
	Title            string    `gorm:"size:200;not null" json:"title"`
	Description      string    `gorm:"type:text;not null" json:"description"`
	ViewCount        int       `gorm:"default:0;not null" json:"view_count"`
	IsActive         bool      `gorm:"default:true;not null" json:"is_active"`
	IsClosed         bool      `gorm:"default:false;not null" json:"is_closed"`
	CloseReason      string    `json:"close_reason"`
	AcceptedAnswerID *uint     `gorm:"index" json:"accepted_answer_id"`
	// Version guards the acceptance triple-write; every accepted-answer
	// update must compare-and-swap against it.
	Version   int64     `gorm:"default:0;not null" json:"-"`
	Tags      []Tag     `gorm:"many2many:question_tags;" json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 非数据库字段，查询时填充
	AnswerCount int `gorm:"-" json:"answer_count"`
}
