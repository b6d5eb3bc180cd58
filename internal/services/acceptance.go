package services

import (
	"log"

	"stackit/internal/events"
	"stackit/internal/fanout"
	"stackit/internal/models"
	"stackit/internal/store"
)

// Acceptance enforces at-most-one-accepted-answer-per-question. The
// clear-siblings / set-flag / update-pointer triple commits as one unit
// guarded by the question's version column, so two racing accepts resolve to
// exactly one winner.
type Acceptance struct {
	store      store.Store
	hub        *fanout.Hub
	notifier   *Notifier
	reputation *Reputation
}

func NewAcceptance(s store.Store, hub *fanout.Hub, notifier *Notifier, reputation *Reputation) *Acceptance {
	return &Acceptance{store: s, hub: hub, notifier: notifier, reputation: reputation}
}

// AcceptAnswer marks answerID as the question's accepted answer. Only the
// question's author may accept; a lost race returns ErrConflict and is safe
// to retry once.
func (a *Acceptance) AcceptAnswer(questionID, answerID, requesterID uint) error {
	question, err := a.store.GetQuestion(questionID)
	if err != nil {
		return err
	}
	if question.UserID != requesterID {
		return ErrNotAuthorized
	}

	answer, err := a.store.GetAnswer(answerID)
	if err != nil {
		return err
	}
	if answer.QuestionID != questionID {
		return ErrNotFound
	}

	err = a.store.Atomic(func(tx store.Store) error {
		if err := tx.ClearAcceptedFlagForSiblings(questionID); err != nil {
			return err
		}
		if err := tx.SetAcceptedFlag(answerID, true); err != nil {
			return err
		}
		return tx.SetAcceptedAnswer(questionID, &answerID, question.Version)
	})
	if err != nil {
		return err
	}

	a.hub.Publish(events.QuestionTopic(questionID), events.New(events.AnswerAcceptedPayload{
		QuestionID: questionID,
		AnswerID:   answerID,
	}))

	if _, err := a.notifier.Notify(models.NotificationAnswerAccepted, answer.UserID, requesterID, answerID, models.RefAnswer); err != nil {
		log.Printf("acceptance notification failed for answer %d: %v", answerID, err)
	}
	if a.reputation != nil && answer.UserID != requesterID {
		a.reputation.OnAnswerAccepted(answer.UserID)
	}
	return nil
}

// ClearAcceptanceFor removes the accepted state when the accepted answer is
// deleted. No other answer is auto-promoted.
func (a *Acceptance) ClearAcceptanceFor(answer *models.Answer) error {
	if !answer.IsAccepted {
		return nil
	}
	question, err := a.store.GetQuestion(answer.QuestionID)
	if err != nil {
		return err
	}
	return a.store.Atomic(func(tx store.Store) error {
		if err := tx.SetAcceptedFlag(answer.ID, false); err != nil {
			return err
		}
		return tx.SetAcceptedAnswer(question.ID, nil, question.Version)
	})
}
