package services

import (
	"log"
	"sync"

	"stackit/internal/db"
	"stackit/internal/models"

	"gorm.io/gorm"
)

// 声望动作常量
const (
	ActionAnswerUpvoted   = "answer upvoted"
	ActionAnswerDownvoted = "answer downvoted"
	ActionAnswerAccepted  = "answer accepted"
	ActionDownvoteCast    = "cast a downvote"
)

// 声望值常量
const (
	RepAnswerUpvoted   = 10
	RepAnswerDownvoted = -2
	RepAnswerAccepted  = 15
	RepDownvoteCast    = -1
)

// Reputation mirrors vote/acceptance outcomes into a per-user reputation
// ledger. It is best-effort: failures are logged and never fail the
// triggering action.
type Reputation struct {
	// wg lets tests wait for async awards; the server never does.
	wg sync.WaitGroup
}

func NewReputation() *Reputation {
	return &Reputation{}
}

// Award writes one ledger row and bumps the user's balance in a transaction.
func (r *Reputation) Award(userID uint, amount int, action string) error {
	return db.DB.Transaction(func(tx *gorm.DB) error {
		entry := models.ReputationLog{
			UserID: userID,
			Amount: amount,
			Action: action,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}
		return tx.Model(&models.User{}).
			Where("id = ?", userID).
			UpdateColumn("reputation", gorm.Expr("reputation + ?", amount)).
			Error
	})
}

func (r *Reputation) awardAsync(userID uint, amount int, action string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.Award(userID, amount, action); err != nil {
			log.Printf("reputation: award %q to user %d failed: %v", action, userID, err)
		}
	}()
}

// OnVoteCast adjusts both sides of a vote: the author gains or loses on the
// direction, and a downvoter pays the usual toll.
func (r *Reputation) OnVoteCast(authorID, voterID uint, direction models.VoteDirection) {
	if direction == models.DirectionUp {
		r.awardAsync(authorID, RepAnswerUpvoted, ActionAnswerUpvoted)
		return
	}
	r.awardAsync(authorID, RepAnswerDownvoted, ActionAnswerDownvoted)
	r.awardAsync(voterID, RepDownvoteCast, ActionDownvoteCast)
}

// OnAnswerAccepted credits the answer author.
func (r *Reputation) OnAnswerAccepted(authorID uint) {
	r.awardAsync(authorID, RepAnswerAccepted, ActionAnswerAccepted)
}

// Wait blocks until pending async awards finish.
func (r *Reputation) Wait() {
	r.wg.Wait()
}
