package store

import (
	"context"
	"errors"
	"net"
	"time"

	"stackit/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Postgres implements Store on a gorm connection.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return transient(err)
}

// transient tags timeouts and connection drops so callers can retry.
func transient(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return errors.Join(ErrTransient, err)
	}
	return err
}

func (p *Postgres) GetUser(id uint) (*models.User, error) {
	var user models.User
	if err := p.db.First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (p *Postgres) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	if err := p.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (p *Postgres) GetQuestion(id uint) (*models.Question, error) {
	var question models.Question
	if err := p.db.Where("is_active = ?", true).First(&question, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &question, nil
}

func (p *Postgres) GetAnswer(id uint) (*models.Answer, error) {
	var answer models.Answer
	if err := p.db.Where("is_active = ?", true).First(&answer, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &answer, nil
}

func (p *Postgres) GetVote(voterID, answerID uint) (*models.Vote, error) {
	var vote models.Vote
	err := p.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND answer_id = ?", voterID, answerID).
		First(&vote).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &vote, nil
}

func (p *Postgres) UpsertVote(v *models.Vote) error {
	// The (user_id, answer_id) unique index makes this the serialization point
	// for two racing first-votes from the same voter: the loser's insert
	// collides and surfaces as a conflict.
	err := p.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "answer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"direction"}),
	}).Create(v).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	return transient(err)
}

func (p *Postgres) DeleteVote(voterID, answerID uint) error {
	return transient(p.db.Where("user_id = ? AND answer_id = ?", voterID, answerID).
		Delete(&models.Vote{}).Error)
}

func (p *Postgres) CountVotesByDirection(answerID uint, dir models.VoteDirection) (int64, error) {
	var count int64
	err := p.db.Model(&models.Vote{}).
		Where("answer_id = ? AND direction = ?", answerID, dir).
		Count(&count).Error
	return count, transient(err)
}

func (p *Postgres) ClearAcceptedFlagForSiblings(questionID uint) error {
	return transient(p.db.Model(&models.Answer{}).
		Where("question_id = ? AND is_accepted = ?", questionID, true).
		Update("is_accepted", false).Error)
}

func (p *Postgres) SetAcceptedFlag(answerID uint, accepted bool) error {
	res := p.db.Model(&models.Answer{}).
		Where("id = ?", answerID).
		Update("is_accepted", accepted)
	if res.Error != nil {
		return transient(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SetAcceptedAnswer(questionID uint, answerID *uint, expectedVersion int64) error {
	res := p.db.Model(&models.Question{}).
		Where("id = ? AND version = ?", questionID, expectedVersion).
		Updates(map[string]interface{}{
			"accepted_answer_id": answerID,
			"version":            gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return transient(res.Error)
	}
	if res.RowsAffected == 0 {
		// Either the question vanished or another accept bumped the version.
		return ErrConflict
	}
	return nil
}

func (p *Postgres) CreateNotification(n *models.Notification) error {
	return transient(p.db.Create(n).Error)
}

func (p *Postgres) GetNotification(id uint) (*models.Notification, error) {
	var n models.Notification
	if err := p.db.First(&n, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &n, nil
}

func (p *Postgres) NotificationExists(recipientID, referenceID uint, kind models.NotificationType) (bool, error) {
	var count int64
	err := p.db.Model(&models.Notification{}).
		Where("user_id = ? AND reference_id = ? AND type = ?", recipientID, referenceID, kind).
		Count(&count).Error
	return count > 0, err
}

func (p *Postgres) CountUnreadNotifications(userID uint) (int64, error) {
	var count int64
	err := p.db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (p *Postgres) MarkNotificationRead(id uint, at time.Time) error {
	return p.db.Model(&models.Notification{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"is_read": true, "read_at": at}).Error
}

func (p *Postgres) MarkAllNotificationsRead(userID uint, at time.Time) error {
	return p.db.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": at}).Error
}

func (p *Postgres) DeleteNotificationsBefore(cutoff time.Time) (int64, error) {
	res := p.db.Where("created_at < ?", cutoff).Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}

func (p *Postgres) Atomic(fn func(Store) error) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Postgres{db: tx})
	})
}
