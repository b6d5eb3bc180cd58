package models

import (
	"time"
)

type Answer struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	QuestionID uint       `gorm:"not null;index" json:"question_id"`
	Question   Question   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	UserID     uint       `gorm:"not null;index" json:"user_id"`
	User       User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"user"`
	Content    string     `gorm:"type:text;not null" json:"content"`
	IsAccepted bool       `gorm:"default:false;not null" json:"is_accepted"`
	IsActive   bool       `gorm:"default:true;not null" json:"is_active"`
	EditedAt   *time.Time `json:"edited_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// 非数据库字段，查询时从 votes 表统计填充
	Score     int `gorm:"-" json:"score"`
	Upvotes   int `gorm:"-" json:"upvotes"`
	Downvotes int `gorm:"-" json:"downvotes"`
}
