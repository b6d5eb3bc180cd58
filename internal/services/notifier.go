package services

import (
	"fmt"
	"log"
	"strings"
	"time"

	"stackit/internal/events"
	"stackit/internal/fanout"
	"stackit/internal/models"
	"stackit/internal/store"
)

// Notifier derives notification records from state transitions. It suppresses
// self-notifications, deduplicates the kinds where repeats are noise, and
// sheds new notifications once a recipient's unread backlog hits the cap.
type Notifier struct {
	store     store.Store
	hub       *fanout.Hub
	maxUnread int
	retention time.Duration
}

const titleLimit = 50

// dedupKinds are suppressed when an unchanged fact re-triggers them. Vote
// notifications are deliberately absent: every vote event is fresh.
var dedupKinds = map[models.NotificationType]bool{
	models.NotificationQuestionAnswered: true,
	models.NotificationUserMentioned:    true,
}

func NewNotifier(s store.Store, hub *fanout.Hub, maxUnread, retentionDays int) *Notifier {
	if maxUnread <= 0 {
		maxUnread = 100
	}
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &Notifier{
		store:     s,
		hub:       hub,
		maxUnread: maxUnread,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}
}

// Notify derives at most one notification from a state transition. A nil
// notification with a nil error means the event was deliberately suppressed
// (self-trigger or duplicate). ErrCapacityDropped is informational: the
// triggering action already succeeded.
func (n *Notifier) Notify(kind models.NotificationType, recipientID, actorID, referenceID uint, referenceType string) (*models.Notification, error) {
	if recipientID == actorID {
		return nil, nil
	}

	if dedupKinds[kind] {
		exists, err := n.store.NotificationExists(recipientID, referenceID, kind)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, nil
		}
	}

	unread, err := n.store.CountUnreadNotifications(recipientID)
	if err != nil {
		return nil, err
	}
	if unread >= int64(n.maxUnread) {
		log.Printf("notifier: user %d hit unread cap (%d), dropping %s", recipientID, n.maxUnread, kind)
		return nil, ErrCapacityDropped
	}

	actor, err := n.store.GetUser(actorID)
	if err != nil {
		return nil, err
	}

	message, actionURL, err := n.compose(kind, actor, referenceID, referenceType)
	if err != nil {
		return nil, err
	}

	notification := &models.Notification{
		UserID:        recipientID,
		ActorID:       &actorID,
		Type:          kind,
		Message:       message,
		ReferenceID:   referenceID,
		ReferenceType: referenceType,
		ActionURL:     actionURL,
	}
	if err := n.store.CreateNotification(notification); err != nil {
		return nil, err
	}

	n.hub.PublishToUser(recipientID, events.New(events.NotificationPayload{
		Notification: *notification,
	}))
	return notification, nil
}

// compose builds the per-kind message and action link.
func (n *Notifier) compose(kind models.NotificationType, actor *models.User, referenceID uint, referenceType string) (string, string, error) {
	switch kind {
	case models.NotificationQuestionAnswered:
		question, err := n.store.GetQuestion(referenceID)
		if err != nil {
			return "", "", err
		}
		msg := fmt.Sprintf("%s answered your question: %q", actor.Name(), truncateTitle(question.Title))
		return msg, fmt.Sprintf("/questions/%d", question.ID), nil

	case models.NotificationAnswerAccepted, models.NotificationAnswerUpvoted, models.NotificationAnswerDownvoted:
		answer, err := n.store.GetAnswer(referenceID)
		if err != nil {
			return "", "", err
		}
		question, err := n.store.GetQuestion(answer.QuestionID)
		if err != nil {
			return "", "", err
		}
		url := fmt.Sprintf("/questions/%d#answer-%d", question.ID, answer.ID)
		switch kind {
		case models.NotificationAnswerAccepted:
			return fmt.Sprintf("Your answer to %q was accepted!", truncateTitle(question.Title)), url, nil
		case models.NotificationAnswerUpvoted:
			return fmt.Sprintf("Your answer to %q received an upvote!", truncateTitle(question.Title)), url, nil
		default:
			return fmt.Sprintf("Your answer to %q received a downvote.", truncateTitle(question.Title)), url, nil
		}

	case models.NotificationUserMentioned:
		url := fmt.Sprintf("/questions/%d", referenceID)
		if referenceType == models.RefAnswer {
			answer, err := n.store.GetAnswer(referenceID)
			if err != nil {
				return "", "", err
			}
			url = fmt.Sprintf("/questions/%d#answer-%d", answer.QuestionID, answer.ID)
		}
		msg := fmt.Sprintf("%s mentioned you in a %s", actor.Name(), strings.ToLower(referenceType))
		return msg, url, nil

	default:
		return "", "", ErrInvalidInput
	}
}

// MarkRead flips a single notification to read. Fails with ErrNotAuthorized
// when the notification belongs to someone else; already-read is a no-op.
func (n *Notifier) MarkRead(notificationID, requesterID uint) error {
	notification, err := n.store.GetNotification(notificationID)
	if err != nil {
		return err
	}
	if notification.UserID != requesterID {
		return ErrNotAuthorized
	}
	if notification.IsRead {
		return nil
	}
	return n.store.MarkNotificationRead(notificationID, time.Now())
}

// MarkAllRead flips every unread notification for the user. Idempotent.
func (n *Notifier) MarkAllRead(userID uint) error {
	return n.store.MarkAllNotificationsRead(userID, time.Now())
}

// Sweep deletes notifications older than the retention window, read or not.
func (n *Notifier) Sweep() (int64, error) {
	cutoff := time.Now().Add(-n.retention)
	deleted, err := n.store.DeleteNotificationsBefore(cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		log.Printf("notifier: retention sweep removed %d notifications", deleted)
	}
	return deleted, nil
}

// StartRetentionSweep runs Sweep once a day until stop is closed.
func (n *Notifier) StartRetentionSweep(stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := n.Sweep(); err != nil {
					log.Printf("notifier: retention sweep failed: %v", err)
				}
			case <-stop:
				return
			}
		}
	}()
}

// truncateTitle limits titles to titleLimit characters. The cut counts
// runes, not bytes, so multi-byte titles stay valid UTF-8.
func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) > titleLimit {
		return string(runes[:titleLimit-3]) + "..."
	}
	return title
}
