package models

import (
	"time"
)

type VoteDirection string

const (
	DirectionUp   VoteDirection = "UP"
	DirectionDown VoteDirection = "DOWN"
)

// Value maps a direction to its score contribution.
func (d VoteDirection) Value() int {
	if d == DirectionDown {
		return -1
	}
	return 1
}

func (d VoteDirection) Valid() bool {
	return d == DirectionUp || d == DirectionDown
}

// Vote is one row of the ledger. The (user_id, answer_id) unique index is the
// identity: a voter holds at most one vote per answer.
type Vote struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	UserID    uint          `gorm:"not null;uniqueIndex:idx_voter_answer" json:"user_id"`
	AnswerID  uint          `gorm:"not null;uniqueIndex:idx_voter_answer;index" json:"answer_id"`
	Direction VoteDirection `gorm:"size:10;not null" json:"direction"`
	CreatedAt time.Time     `json:"created_at"`
}
