package store

import (
	"errors"
	"testing"
	"time"

	"stackit/internal/models"
)

func seededMemory() *Memory {
	m := NewMemory()
	m.PutUser(models.User{ID: 1, Username: "alice", IsActive: true})
	m.PutQuestion(models.Question{ID: 1, UserID: 1, Title: "q", IsActive: true})
	m.PutAnswer(models.Answer{ID: 1, QuestionID: 1, UserID: 1, IsActive: true})
	return m
}

func TestMemoryUpsertVoteOverwrites(t *testing.T) {
	m := seededMemory()

	if err := m.UpsertVote(&models.Vote{UserID: 2, AnswerID: 1, Direction: models.DirectionUp}); err != nil {
		t.Fatal(err)
	}
	if err := m.UpsertVote(&models.Vote{UserID: 2, AnswerID: 1, Direction: models.DirectionDown}); err != nil {
		t.Fatal(err)
	}

	rows := m.VoteRows(1)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	if rows[0].Direction != models.DirectionDown {
		t.Fatalf("direction = %s", rows[0].Direction)
	}
}

func TestMemoryInactiveRowsAreInvisible(t *testing.T) {
	m := seededMemory()
	m.PutAnswer(models.Answer{ID: 2, QuestionID: 1, UserID: 1, IsActive: false})

	if _, err := m.GetAnswer(2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemorySetAcceptedAnswerCAS(t *testing.T) {
	m := seededMemory()
	answerID := uint(1)

	if err := m.SetAcceptedAnswer(1, &answerID, 0); err != nil {
		t.Fatal(err)
	}
	if err := m.SetAcceptedAnswer(1, &answerID, 0); !errors.Is(err, ErrConflict) {
		t.Fatalf("stale write err = %v, want ErrConflict", err)
	}
	if err := m.SetAcceptedAnswer(1, nil, 1); err != nil {
		t.Fatal(err)
	}

	q, err := m.GetQuestion(1)
	if err != nil {
		t.Fatal(err)
	}
	if q.AcceptedAnswerID != nil {
		t.Fatal("pointer not cleared")
	}
	if q.Version != 2 {
		t.Fatalf("version = %d, want 2", q.Version)
	}
}

func TestMemoryAtomicNested(t *testing.T) {
	m := seededMemory()

	// Atomic hands out a view that must not deadlock on reads or nesting.
	err := m.Atomic(func(tx Store) error {
		if _, err := tx.GetAnswer(1); err != nil {
			return err
		}
		return tx.Atomic(func(inner Store) error {
			return inner.UpsertVote(&models.Vote{UserID: 2, AnswerID: 1, Direction: models.DirectionUp})
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(m.VoteRows(1)) != 1 {
		t.Fatal("vote not written")
	}
}

// A failing transition must leave no trace, even when earlier steps inside
// the same Atomic already wrote.
func TestMemoryAtomicRollsBackOnError(t *testing.T) {
	m := seededMemory()
	m.PutAnswer(models.Answer{ID: 2, QuestionID: 1, UserID: 1, IsAccepted: true, IsActive: true})
	answerID := uint(1)
	boom := errors.New("boom")

	err := m.Atomic(func(tx Store) error {
		if err := tx.ClearAcceptedFlagForSiblings(1); err != nil {
			return err
		}
		if err := tx.SetAcceptedFlag(1, true); err != nil {
			return err
		}
		if err := tx.UpsertVote(&models.Vote{UserID: 2, AnswerID: 1, Direction: models.DirectionUp}); err != nil {
			return err
		}
		// Stale version: the CAS fails after the flag writes above.
		if err := tx.SetAcceptedAnswer(1, &answerID, 99); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}

	a1, _ := m.GetAnswer(1)
	a2, _ := m.GetAnswer(2)
	if a1.IsAccepted || !a2.IsAccepted {
		t.Fatalf("flags not rolled back: a1=%v a2=%v", a1.IsAccepted, a2.IsAccepted)
	}
	if len(m.VoteRows(1)) != 0 {
		t.Fatal("vote row survived the rollback")
	}
	q, _ := m.GetQuestion(1)
	if q.Version != 0 || q.AcceptedAnswerID != nil {
		t.Fatalf("question mutated: version=%d pointer=%v", q.Version, q.AcceptedAnswerID)
	}
}

func TestMemoryNotificationLifecycle(t *testing.T) {
	m := seededMemory()

	n := &models.Notification{UserID: 1, Type: models.NotificationAnswerUpvoted, Message: "hi"}
	if err := m.CreateNotification(n); err != nil {
		t.Fatal(err)
	}
	if n.ID == 0 {
		t.Fatal("id not assigned")
	}

	count, err := m.CountUnreadNotifications(1)
	if err != nil || count != 1 {
		t.Fatalf("unread = %d, err = %v", count, err)
	}

	if err := m.MarkNotificationRead(n.ID, time.Now()); err != nil {
		t.Fatal(err)
	}
	count, _ = m.CountUnreadNotifications(1)
	if count != 0 {
		t.Fatalf("unread after read = %d", count)
	}

	deleted, err := m.DeleteNotificationsBefore(time.Now().Add(time.Minute))
	if err != nil || deleted != 1 {
		t.Fatalf("deleted = %d, err = %v", deleted, err)
	}
}
