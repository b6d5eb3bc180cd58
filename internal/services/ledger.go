package services

import (
	"errors"
	"log"

	"stackit/internal/events"
	"stackit/internal/fanout"
	"stackit/internal/models"
	"stackit/internal/store"
)

// VoteLedger owns the one-vote-per-(voter,answer) invariant and derives
// answer scores from the stored rows. Scores are always recomputed from the
// ledger; nothing in memory is authoritative.
type VoteLedger struct {
	store      store.Store
	hub        *fanout.Hub
	notifier   *Notifier
	reputation *Reputation
}

func NewVoteLedger(s store.Store, hub *fanout.Hub, notifier *Notifier, reputation *Reputation) *VoteLedger {
	return &VoteLedger{store: s, hub: hub, notifier: notifier, reputation: reputation}
}

// VoteResult is the authoritative post-mutation tally.
type VoteResult struct {
	Score     int `json:"score"`
	Upvotes   int `json:"upvotes"`
	Downvotes int `json:"downvotes"`
	// Delta is the score change this call produced.
	Delta int `json:"delta"`
}

// CastVote applies the tri-state toggle: no existing vote inserts one, the
// same direction retracts it, the opposite direction flips it. The toggle
// runs as one atomic read-modify-write per (voter, answer).
func (l *VoteLedger) CastVote(voterID, answerID uint, direction models.VoteDirection) (VoteResult, error) {
	if !direction.Valid() {
		return VoteResult{}, ErrInvalidInput
	}

	answer, err := l.store.GetAnswer(answerID)
	if err != nil {
		return VoteResult{}, err
	}
	if answer.UserID == voterID {
		return VoteResult{}, ErrSelfVote
	}
	if _, err := l.store.GetUser(voterID); err != nil {
		return VoteResult{}, err
	}

	var retracted bool
	var prev, next int
	err = l.store.Atomic(func(tx store.Store) error {
		// Re-check inside the transaction: the answer may have been soft
		// deleted since the precondition read.
		if _, err := tx.GetAnswer(answerID); err != nil {
			return err
		}
		existing, err := tx.GetVote(voterID, answerID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			next = direction.Value()
			return tx.UpsertVote(&models.Vote{
				UserID:    voterID,
				AnswerID:  answerID,
				Direction: direction,
			})
		case err != nil:
			return err
		case existing.Direction == direction:
			// Same direction again: retraction.
			retracted = true
			prev = existing.Direction.Value()
			return tx.DeleteVote(voterID, answerID)
		default:
			prev = existing.Direction.Value()
			next = direction.Value()
			existing.Direction = direction
			return tx.UpsertVote(existing)
		}
	})
	if err != nil {
		return VoteResult{}, err
	}

	result, err := l.tally(answerID)
	if err != nil {
		return VoteResult{}, err
	}
	result.Delta = next - prev

	l.hub.Publish(events.QuestionTopic(answer.QuestionID), events.New(events.VoteChangedPayload{
		QuestionID: answer.QuestionID,
		AnswerID:   answerID,
		Score:      result.Score,
		Upvotes:    result.Upvotes,
		Downvotes:  result.Downvotes,
	}))

	if !retracted {
		kind := models.NotificationAnswerUpvoted
		if direction == models.DirectionDown {
			kind = models.NotificationAnswerDownvoted
		}
		if _, err := l.notifier.Notify(kind, answer.UserID, voterID, answerID, models.RefAnswer); err != nil {
			log.Printf("vote notification failed for answer %d: %v", answerID, err)
		}
		if l.reputation != nil {
			l.reputation.OnVoteCast(answer.UserID, voterID, direction)
		}
	}

	return result, nil
}

// RemoveVote deletes the voter's vote if present. Removing an absent vote is
// a no-op, not an error.
func (l *VoteLedger) RemoveVote(voterID, answerID uint) (VoteResult, error) {
	answer, err := l.store.GetAnswer(answerID)
	if err != nil {
		return VoteResult{}, err
	}

	var removed bool
	err = l.store.Atomic(func(tx store.Store) error {
		if _, err := tx.GetVote(voterID, answerID); errors.Is(err, store.ErrNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		removed = true
		return tx.DeleteVote(voterID, answerID)
	})
	if err != nil {
		return VoteResult{}, err
	}

	result, err := l.tally(answerID)
	if err != nil {
		return VoteResult{}, err
	}

	if removed {
		l.hub.Publish(events.QuestionTopic(answer.QuestionID), events.New(events.VoteChangedPayload{
			QuestionID: answer.QuestionID,
			AnswerID:   answerID,
			Score:      result.Score,
			Upvotes:    result.Upvotes,
			Downvotes:  result.Downvotes,
		}))
	}
	return result, nil
}

// Score recomputes an answer's tally from the ledger.
func (l *VoteLedger) Score(answerID uint) (VoteResult, error) {
	if _, err := l.store.GetAnswer(answerID); err != nil {
		return VoteResult{}, err
	}
	return l.tally(answerID)
}

// UserVote reports the direction the voter currently holds on the answer,
// or "" when none.
func (l *VoteLedger) UserVote(voterID, answerID uint) (models.VoteDirection, error) {
	vote, err := l.store.GetVote(voterID, answerID)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return vote.Direction, nil
}

func (l *VoteLedger) tally(answerID uint) (VoteResult, error) {
	up, err := l.store.CountVotesByDirection(answerID, models.DirectionUp)
	if err != nil {
		return VoteResult{}, err
	}
	down, err := l.store.CountVotesByDirection(answerID, models.DirectionDown)
	if err != nil {
		return VoteResult{}, err
	}
	return VoteResult{
		Score:     int(up - down),
		Upvotes:   int(up),
		Downvotes: int(down),
	}, nil
}
