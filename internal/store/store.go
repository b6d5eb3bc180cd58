package store

import (
	"errors"
	"time"

	"stackit/internal/models"
)

var (
	// ErrNotFound covers any referenced entity that is missing or inactive.
	ErrNotFound = errors.New("record not found")
	// ErrConflict means an optimistic write lost a race and may be retried.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrTransient wraps store timeouts and connectivity failures; safe to
	// retry with backoff.
	ErrTransient = errors.New("transient store failure")
)

// Store is the durable record interface the consistency core runs against.
// Production is backed by postgres via gorm; tests use the in-memory
// implementation. Every method maps to a single read or write; multi-step
// transitions go through Atomic.
type Store interface {
	// Lookups. Get* return ErrNotFound for missing or inactive rows.
	GetUser(id uint) (*models.User, error)
	GetUserByUsername(username string) (*models.User, error)
	GetQuestion(id uint) (*models.Question, error)
	GetAnswer(id uint) (*models.Answer, error)

	// Vote ledger.
	GetVote(voterID, answerID uint) (*models.Vote, error)
	UpsertVote(v *models.Vote) error
	DeleteVote(voterID, answerID uint) error
	CountVotesByDirection(answerID uint, dir models.VoteDirection) (int64, error)

	// Acceptance. SetAcceptedAnswer compares the question's version column and
	// returns ErrConflict when another writer got there first.
	ClearAcceptedFlagForSiblings(questionID uint) error
	SetAcceptedFlag(answerID uint, accepted bool) error
	SetAcceptedAnswer(questionID uint, answerID *uint, expectedVersion int64) error

	// Notifications.
	CreateNotification(n *models.Notification) error
	GetNotification(id uint) (*models.Notification, error)
	NotificationExists(recipientID, referenceID uint, kind models.NotificationType) (bool, error)
	CountUnreadNotifications(userID uint) (int64, error)
	MarkNotificationRead(id uint, at time.Time) error
	MarkAllNotificationsRead(userID uint, at time.Time) error
	DeleteNotificationsBefore(cutoff time.Time) (int64, error)

	// Atomic runs fn inside a single transaction boundary. The Store handed to
	// fn sees uncommitted writes; returning an error rolls everything back.
	Atomic(fn func(Store) error) error
}
