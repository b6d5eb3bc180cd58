package services

import (
	"sync"
	"testing"

	"stackit/internal/events"
	"stackit/internal/models"
	"stackit/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAcceptanceFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t, 2)
	// Answers 1 and 2 both belong to question 1; answer 2 is written by
	// user 2 so accepting it is not a self-acceptance.
	f.store.PutAnswer(models.Answer{ID: 2, QuestionID: 1, UserID: 2, Content: "They grow by 25% past 1024.", IsActive: true})
	return f
}

func TestAcceptAnswer(t *testing.T) {
	f := newAcceptanceFixture(t)
	sub := f.hub.Subscribe(events.QuestionTopic(1))
	defer sub.Close()

	require.NoError(t, f.acceptance.AcceptAnswer(1, 2, 1))

	answer, err := f.store.GetAnswer(2)
	require.NoError(t, err)
	assert.True(t, answer.IsAccepted)

	question, err := f.store.GetQuestion(1)
	require.NoError(t, err)
	require.NotNil(t, question.AcceptedAnswerID)
	assert.Equal(t, uint(2), *question.AcceptedAnswerID)
	assert.Equal(t, int64(1), question.Version)

	ev := <-sub.C()
	assert.Equal(t, events.TypeAnswerAccepted, ev.Type)

	// The answer's author got notified.
	rows := f.store.NotificationRows(2)
	require.Len(t, rows, 1)
	assert.Equal(t, models.NotificationAnswerAccepted, rows[0].Type)
}

// Accepting a second answer demotes the first: at most one answer per
// question carries the flag, and the pointer always matches it.
func TestAcceptAnswerExclusive(t *testing.T) {
	f := newAcceptanceFixture(t)
	f.store.PutUser(models.User{ID: 4, Username: "other", IsActive: true})
	f.store.PutAnswer(models.Answer{ID: 3, QuestionID: 1, UserID: 4, Content: "Depends on the element size.", IsActive: true})

	require.NoError(t, f.acceptance.AcceptAnswer(1, 2, 1))
	require.NoError(t, f.acceptance.AcceptAnswer(1, 3, 1))

	first, err := f.store.GetAnswer(2)
	require.NoError(t, err)
	assert.False(t, first.IsAccepted)

	second, err := f.store.GetAnswer(3)
	require.NoError(t, err)
	assert.True(t, second.IsAccepted)

	question, err := f.store.GetQuestion(1)
	require.NoError(t, err)
	require.NotNil(t, question.AcceptedAnswerID)
	assert.Equal(t, uint(3), *question.AcceptedAnswerID)
}

func TestAcceptAnswerOnlyOwner(t *testing.T) {
	f := newAcceptanceFixture(t)

	err := f.acceptance.AcceptAnswer(1, 2, 3)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	answer, _ := f.store.GetAnswer(2)
	assert.False(t, answer.IsAccepted)
}

func TestAcceptAnswerWrongQuestion(t *testing.T) {
	f := newAcceptanceFixture(t)
	f.store.PutQuestion(models.Question{ID: 2, UserID: 1, Title: "Other", IsActive: true})

	err := f.acceptance.AcceptAnswer(2, 2, 1)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAcceptAnswerStaleVersionConflicts(t *testing.T) {
	f := newAcceptanceFixture(t)

	answerID := uint(2)
	require.NoError(t, f.store.SetAcceptedAnswer(1, &answerID, 0))

	// Writing through the old version again must lose.
	err := f.store.SetAcceptedAnswer(1, &answerID, 0)
	assert.ErrorIs(t, err, store.ErrConflict)
}

// Two racing accepts end with exactly one accepted answer, and the loser (if
// any) fails with ErrConflict.
func TestAcceptAnswerConcurrent(t *testing.T) {
	f := newAcceptanceFixture(t)
	f.store.PutUser(models.User{ID: 4, Username: "other", IsActive: true})
	f.store.PutAnswer(models.Answer{ID: 3, QuestionID: 1, UserID: 4, Content: "See runtime/slice.go.", IsActive: true})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, answerID := range []uint{2, 3} {
		wg.Add(1)
		go func(slot int, id uint) {
			defer wg.Done()
			errs[slot] = f.acceptance.AcceptAnswer(1, id, 1)
		}(i, answerID)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, store.ErrConflict)
		}
	}

	question, err := f.store.GetQuestion(1)
	require.NoError(t, err)
	require.NotNil(t, question.AcceptedAnswerID)

	var acceptedCount int
	for _, id := range []uint{2, 3} {
		answer, err := f.store.GetAnswer(id)
		require.NoError(t, err)
		if answer.IsAccepted {
			acceptedCount++
			assert.Equal(t, id, *question.AcceptedAnswerID)
		}
	}
	assert.Equal(t, 1, acceptedCount)
}

// staleVersionStore always reports the question at version 0, forcing the
// interleaving where an accept commits between a rival's read and its CAS.
type staleVersionStore struct {
	store.Store
}

func (s *staleVersionStore) GetQuestion(id uint) (*models.Question, error) {
	q, err := s.Store.GetQuestion(id)
	if err != nil {
		return nil, err
	}
	q.Version = 0
	return q, nil
}

// An accept that loses the version CAS must leave no trace: the winner's
// flag stays set, the loser's answer stays unflagged, and the pointer still
// names the winner.
func TestAcceptAnswerLostRaceLeavesNoPartialWrites(t *testing.T) {
	f := newAcceptanceFixture(t)
	f.store.PutUser(models.User{ID: 4, Username: "other", IsActive: true})
	f.store.PutAnswer(models.Answer{ID: 3, QuestionID: 1, UserID: 4, Content: "Trace the allocator.", IsActive: true})

	require.NoError(t, f.acceptance.AcceptAnswer(1, 2, 1))

	stale := NewAcceptance(&staleVersionStore{Store: f.store}, f.hub, f.notifier, nil)
	err := stale.AcceptAnswer(1, 3, 1)
	require.ErrorIs(t, err, store.ErrConflict)

	winner, err := f.store.GetAnswer(2)
	require.NoError(t, err)
	assert.True(t, winner.IsAccepted, "winner's flag must survive the lost race")

	loser, err := f.store.GetAnswer(3)
	require.NoError(t, err)
	assert.False(t, loser.IsAccepted, "loser must not stay flagged")

	question, err := f.store.GetQuestion(1)
	require.NoError(t, err)
	require.NotNil(t, question.AcceptedAnswerID)
	assert.Equal(t, uint(2), *question.AcceptedAnswerID)
	assert.Equal(t, int64(1), question.Version)
}

// Deleting the accepted answer clears the acceptance; no sibling gets
// promoted in its place.
func TestClearAcceptanceFor(t *testing.T) {
	f := newAcceptanceFixture(t)
	f.store.PutUser(models.User{ID: 4, Username: "other", IsActive: true})
	f.store.PutAnswer(models.Answer{ID: 3, QuestionID: 1, UserID: 4, Content: "Benchmark it.", IsActive: true})

	require.NoError(t, f.acceptance.AcceptAnswer(1, 2, 1))

	accepted, err := f.store.GetAnswer(2)
	require.NoError(t, err)
	require.NoError(t, f.acceptance.ClearAcceptanceFor(accepted))

	question, err := f.store.GetQuestion(1)
	require.NoError(t, err)
	assert.Nil(t, question.AcceptedAnswerID)

	for _, id := range []uint{2, 3} {
		answer, err := f.store.GetAnswer(id)
		require.NoError(t, err)
		assert.False(t, answer.IsAccepted)
	}
}

func TestClearAcceptanceForUnacceptedAnswerIsNoop(t *testing.T) {
	f := newAcceptanceFixture(t)

	answer, err := f.store.GetAnswer(2)
	require.NoError(t, err)
	require.NoError(t, f.acceptance.ClearAcceptanceFor(answer))

	question, err := f.store.GetQuestion(1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), question.Version, "no-op must not burn a version")
}
