package services

import (
	"fmt"
	"sync"
	"testing"

	"stackit/internal/events"
	"stackit/internal/fanout"
	"stackit/internal/models"
	"stackit/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixture wires the core services against the in-memory store. User 1 owns
// question 1 and answer 1; users 2 and up are voters.
type fixture struct {
	store      *store.Memory
	hub        *fanout.Hub
	notifier   *Notifier
	ledger     *VoteLedger
	acceptance *Acceptance
}

func newFixture(t *testing.T, extraUsers int) *fixture {
	t.Helper()
	m := store.NewMemory()
	m.PutUser(models.User{ID: 1, Username: "author", IsActive: true})
	for i := 0; i < extraUsers; i++ {
		id := uint(2 + i)
		m.PutUser(models.User{ID: id, Username: fmt.Sprintf("voter%d", id), IsActive: true})
	}
	m.PutQuestion(models.Question{ID: 1, UserID: 1, Title: "How do slices grow?", IsActive: true})
	m.PutAnswer(models.Answer{ID: 1, QuestionID: 1, UserID: 1, Content: "They double.", IsActive: true})

	hub := fanout.NewHub(64)
	notifier := NewNotifier(m, hub, 100, 90)
	return &fixture{
		store:      m,
		hub:        hub,
		notifier:   notifier,
		ledger:     NewVoteLedger(m, hub, notifier, nil),
		acceptance: NewAcceptance(m, hub, notifier, nil),
	}
}

func TestCastVoteInsert(t *testing.T) {
	f := newFixture(t, 1)

	result, err := f.ledger.CastVote(2, 1, models.DirectionUp)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Score)
	assert.Equal(t, 1, result.Upvotes)
	assert.Equal(t, 0, result.Downvotes)
	assert.Equal(t, 1, result.Delta)

	rows := f.store.VoteRows(1)
	require.Len(t, rows, 1)
	assert.Equal(t, models.DirectionUp, rows[0].Direction)
}

func TestCastVoteToggleRetracts(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.ledger.CastVote(2, 1, models.DirectionUp)
	require.NoError(t, err)

	// Same direction again takes the vote back.
	result, err := f.ledger.CastVote(2, 1, models.DirectionUp)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Score)
	assert.Equal(t, -1, result.Delta)
	assert.Empty(t, f.store.VoteRows(1))
}

func TestCastVoteOppositeOverwrites(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.ledger.CastVote(2, 1, models.DirectionUp)
	require.NoError(t, err)

	result, err := f.ledger.CastVote(2, 1, models.DirectionDown)
	require.NoError(t, err)
	assert.Equal(t, -1, result.Score)
	assert.Equal(t, -2, result.Delta)

	rows := f.store.VoteRows(1)
	require.Len(t, rows, 1)
	assert.Equal(t, models.DirectionDown, rows[0].Direction)
}

// Two voters: V1 votes up then retracts, V2 votes down. The ledger must end
// with exactly one row and a score of -1.
func TestCastVoteSequence(t *testing.T) {
	f := newFixture(t, 2)

	_, err := f.ledger.CastVote(2, 1, models.DirectionUp)
	require.NoError(t, err)
	_, err = f.ledger.CastVote(2, 1, models.DirectionUp)
	require.NoError(t, err)
	result, err := f.ledger.CastVote(3, 1, models.DirectionDown)
	require.NoError(t, err)

	assert.Equal(t, -1, result.Score)
	rows := f.store.VoteRows(1)
	require.Len(t, rows, 1)
	assert.Equal(t, uint(3), rows[0].UserID)
	assert.Equal(t, models.DirectionDown, rows[0].Direction)
}

func TestCastVoteSelfVoteRejected(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.ledger.CastVote(1, 1, models.DirectionUp)
	assert.ErrorIs(t, err, ErrSelfVote)
	assert.Empty(t, f.store.VoteRows(1))
}

func TestCastVoteInvalidDirection(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.ledger.CastVote(2, 1, models.VoteDirection("SIDEWAYS"))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCastVoteUnknownAnswer(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.ledger.CastVote(2, 99, models.DirectionUp)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// vanishingAnswerStore soft-deletes the answer right as the vote
// transaction opens, simulating a delete landing between the precondition
// read and the write.
type vanishingAnswerStore struct {
	*store.Memory
	answerID uint
}

func (s *vanishingAnswerStore) Atomic(fn func(store.Store) error) error {
	if a, err := s.Memory.GetAnswer(s.answerID); err == nil {
		a.IsActive = false
		s.Memory.PutAnswer(*a)
	}
	return s.Memory.Atomic(fn)
}

func TestCastVoteAnswerDeletedMidFlight(t *testing.T) {
	f := newFixture(t, 1)
	ledger := NewVoteLedger(&vanishingAnswerStore{Memory: f.store, answerID: 1}, f.hub, f.notifier, nil)

	_, err := ledger.CastVote(2, 1, models.DirectionUp)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, f.store.VoteRows(1), "no vote may land on a deleted answer")
}

func TestCastVoteConcurrentVoters(t *testing.T) {
	const voters = 20
	f := newFixture(t, voters)

	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(voterID uint) {
			defer wg.Done()
			if _, err := f.ledger.CastVote(voterID, 1, models.DirectionUp); err != nil {
				t.Errorf("voter %d: %v", voterID, err)
			}
		}(uint(2 + i))
	}
	wg.Wait()

	result, err := f.ledger.Score(1)
	require.NoError(t, err)
	assert.Equal(t, voters, result.Score)
	assert.Len(t, f.store.VoteRows(1), voters)
}

func TestCastVotePublishesVoteChanged(t *testing.T) {
	f := newFixture(t, 1)
	sub := f.hub.Subscribe(events.QuestionTopic(1))
	defer sub.Close()

	_, err := f.ledger.CastVote(2, 1, models.DirectionUp)
	require.NoError(t, err)

	ev := <-sub.C()
	require.Equal(t, events.TypeVoteChanged, ev.Type)
	payload := ev.Payload.(events.VoteChangedPayload)
	assert.Equal(t, uint(1), payload.AnswerID)
	assert.Equal(t, 1, payload.Score)
}

func TestRetractionSendsNoNotification(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.ledger.CastVote(2, 1, models.DirectionUp)
	require.NoError(t, err)
	require.Len(t, f.store.NotificationRows(1), 1)

	_, err = f.ledger.CastVote(2, 1, models.DirectionUp)
	require.NoError(t, err)
	assert.Len(t, f.store.NotificationRows(1), 1, "retraction must not notify")
}

// Vote notifications are never deduplicated: re-voting after a retraction
// notifies again.
func TestVoteNotificationsNotDeduped(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.ledger.CastVote(2, 1, models.DirectionUp)
	require.NoError(t, err)
	_, err = f.ledger.CastVote(2, 1, models.DirectionUp)
	require.NoError(t, err)
	_, err = f.ledger.CastVote(2, 1, models.DirectionUp)
	require.NoError(t, err)

	assert.Len(t, f.store.NotificationRows(1), 2)
}

func TestRemoveVote(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.ledger.CastVote(2, 1, models.DirectionUp)
	require.NoError(t, err)

	result, err := f.ledger.RemoveVote(2, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Score)
	assert.Empty(t, f.store.VoteRows(1))

	// Removing an absent vote is a no-op.
	result, err = f.ledger.RemoveVote(2, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Score)
}

func TestUserVote(t *testing.T) {
	f := newFixture(t, 1)

	direction, err := f.ledger.UserVote(2, 1)
	require.NoError(t, err)
	assert.Empty(t, direction)

	_, err = f.ledger.CastVote(2, 1, models.DirectionDown)
	require.NoError(t, err)

	direction, err = f.ledger.UserVote(2, 1)
	require.NoError(t, err)
	assert.Equal(t, models.DirectionDown, direction)
}
