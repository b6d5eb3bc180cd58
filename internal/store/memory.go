package store

import (
	"sync"
	"time"

	"stackit/internal/models"
)

// Memory implements Store on plain maps. It backs the core's tests and local
// development without postgres. Atomic serializes through a single mutex,
// which gives the same per-key serialization the database provides via row
// locks and the vote unique index.
type Memory struct {
	mu sync.Mutex

	users         map[uint]models.User
	questions     map[uint]models.Question
	answers       map[uint]models.Answer
	votes         map[voteKey]models.Vote
	notifications map[uint]models.Notification

	nextVoteID         uint
	nextNotificationID uint
}

type voteKey struct {
	voterID  uint
	answerID uint
}

func NewMemory() *Memory {
	return &Memory{
		users:         make(map[uint]models.User),
		questions:     make(map[uint]models.Question),
		answers:       make(map[uint]models.Answer),
		votes:         make(map[voteKey]models.Vote),
		notifications: make(map[uint]models.Notification),
	}
}

// Seed helpers, used by tests and the dev server.

func (m *Memory) PutUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *Memory) PutQuestion(q models.Question) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questions[q.ID] = q
}

func (m *Memory) PutAnswer(a models.Answer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers[a.ID] = a
}

// VoteRows returns the stored votes for an answer, for test assertions.
func (m *Memory) VoteRows(answerID uint) []models.Vote {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []models.Vote
	for _, v := range m.votes {
		if v.AnswerID == answerID {
			rows = append(rows, v)
		}
	}
	return rows
}

// NotificationRows returns every stored notification for a recipient.
func (m *Memory) NotificationRows(userID uint) []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows []models.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			rows = append(rows, n)
		}
	}
	return rows
}

func (m *Memory) GetUser(id uint) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || !u.IsActive {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *Memory) GetUserByUsername(username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username && u.IsActive {
			copied := u
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetQuestion(id uint) (*models.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok || !q.IsActive {
		return nil, ErrNotFound
	}
	return &q, nil
}

func (m *Memory) GetAnswer(id uint) (*models.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[id]
	if !ok || !a.IsActive {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *Memory) GetVote(voterID, answerID uint) (*models.Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getVoteLocked(voterID, answerID)
}

func (m *Memory) getVoteLocked(voterID, answerID uint) (*models.Vote, error) {
	v, ok := m.votes[voteKey{voterID, answerID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (m *Memory) UpsertVote(v *models.Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertVoteLocked(v)
}

func (m *Memory) upsertVoteLocked(v *models.Vote) error {
	key := voteKey{v.UserID, v.AnswerID}
	if existing, ok := m.votes[key]; ok {
		existing.Direction = v.Direction
		m.votes[key] = existing
		*v = existing
		return nil
	}
	m.nextVoteID++
	v.ID = m.nextVoteID
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	m.votes[key] = *v
	return nil
}

func (m *Memory) DeleteVote(voterID, answerID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.votes, voteKey{voterID, answerID})
	return nil
}

func (m *Memory) CountVotesByDirection(answerID uint, dir models.VoteDirection) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countVotesLocked(answerID, dir), nil
}

func (m *Memory) countVotesLocked(answerID uint, dir models.VoteDirection) int64 {
	var count int64
	for _, v := range m.votes {
		if v.AnswerID == answerID && v.Direction == dir {
			count++
		}
	}
	return count
}

func (m *Memory) ClearAcceptedFlagForSiblings(questionID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range m.answers {
		if a.QuestionID == questionID && a.IsAccepted {
			a.IsAccepted = false
			m.answers[id] = a
		}
	}
	return nil
}

func (m *Memory) SetAcceptedFlag(answerID uint, accepted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[answerID]
	if !ok {
		return ErrNotFound
	}
	a.IsAccepted = accepted
	m.answers[answerID] = a
	return nil
}

func (m *Memory) SetAcceptedAnswer(questionID uint, answerID *uint, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[questionID]
	if !ok || q.Version != expectedVersion {
		return ErrConflict
	}
	q.AcceptedAnswerID = answerID
	q.Version++
	m.questions[questionID] = q
	return nil
}

func (m *Memory) CreateNotification(n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextNotificationID++
	n.ID = m.nextNotificationID
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	m.notifications[n.ID] = *n
	return nil
}

func (m *Memory) GetNotification(id uint) (*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &n, nil
}

func (m *Memory) NotificationExists(recipientID, referenceID uint, kind models.NotificationType) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.notifications {
		if n.UserID == recipientID && n.ReferenceID == referenceID && n.Type == kind {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) CountUnreadNotifications(userID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, n := range m.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (m *Memory) MarkNotificationRead(id uint, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return ErrNotFound
	}
	if !n.IsRead {
		n.IsRead = true
		n.ReadAt = &at
		m.notifications[id] = n
	}
	return nil
}

func (m *Memory) MarkAllNotificationsRead(userID uint, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, n := range m.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			n.ReadAt = &at
			m.notifications[id] = n
		}
	}
	return nil
}

func (m *Memory) DeleteNotificationsBefore(cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted int64
	for id, n := range m.notifications {
		if n.CreatedAt.Before(cutoff) {
			delete(m.notifications, id)
			deleted++
		}
	}
	return deleted, nil
}

// Atomic serializes the whole transition under one lock. The unlocked view
// handed to fn reuses the already-held mutex, so nested calls do not
// deadlock. State is snapshotted up front and restored when fn fails, so a
// transition that errors midway leaves nothing behind.
func (m *Memory) Atomic(fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshotLocked()
	if err := fn(&memoryTx{m}); err != nil {
		m.restoreLocked(snap)
		return err
	}
	return nil
}

// memorySnapshot is a full copy of the store taken at transaction start.
// Map values are plain structs, so copying the maps copies the data.
type memorySnapshot struct {
	users         map[uint]models.User
	questions     map[uint]models.Question
	answers       map[uint]models.Answer
	votes         map[voteKey]models.Vote
	notifications map[uint]models.Notification

	nextVoteID         uint
	nextNotificationID uint
}

func (m *Memory) snapshotLocked() memorySnapshot {
	return memorySnapshot{
		users:              copyMap(m.users),
		questions:          copyMap(m.questions),
		answers:            copyMap(m.answers),
		votes:              copyMap(m.votes),
		notifications:      copyMap(m.notifications),
		nextVoteID:         m.nextVoteID,
		nextNotificationID: m.nextNotificationID,
	}
}

func (m *Memory) restoreLocked(snap memorySnapshot) {
	m.users = snap.users
	m.questions = snap.questions
	m.answers = snap.answers
	m.votes = snap.votes
	m.notifications = snap.notifications
	m.nextVoteID = snap.nextVoteID
	m.nextNotificationID = snap.nextNotificationID
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// memoryTx is the view of a Memory store inside Atomic: the caller already
// holds the mutex, so every method operates lock-free.
type memoryTx struct {
	m *Memory
}

func (t *memoryTx) GetUser(id uint) (*models.User, error) {
	u, ok := t.m.users[id]
	if !ok || !u.IsActive {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (t *memoryTx) GetUserByUsername(username string) (*models.User, error) {
	for _, u := range t.m.users {
		if u.Username == username && u.IsActive {
			copied := u
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (t *memoryTx) GetQuestion(id uint) (*models.Question, error) {
	q, ok := t.m.questions[id]
	if !ok || !q.IsActive {
		return nil, ErrNotFound
	}
	return &q, nil
}

func (t *memoryTx) GetAnswer(id uint) (*models.Answer, error) {
	a, ok := t.m.answers[id]
	if !ok || !a.IsActive {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (t *memoryTx) GetVote(voterID, answerID uint) (*models.Vote, error) {
	return t.m.getVoteLocked(voterID, answerID)
}

func (t *memoryTx) UpsertVote(v *models.Vote) error {
	return t.m.upsertVoteLocked(v)
}

func (t *memoryTx) DeleteVote(voterID, answerID uint) error {
	delete(t.m.votes, voteKey{voterID, answerID})
	return nil
}

func (t *memoryTx) CountVotesByDirection(answerID uint, dir models.VoteDirection) (int64, error) {
	return t.m.countVotesLocked(answerID, dir), nil
}

func (t *memoryTx) ClearAcceptedFlagForSiblings(questionID uint) error {
	for id, a := range t.m.answers {
		if a.QuestionID == questionID && a.IsAccepted {
			a.IsAccepted = false
			t.m.answers[id] = a
		}
	}
	return nil
}

func (t *memoryTx) SetAcceptedFlag(answerID uint, accepted bool) error {
	a, ok := t.m.answers[answerID]
	if !ok {
		return ErrNotFound
	}
	a.IsAccepted = accepted
	t.m.answers[answerID] = a
	return nil
}

func (t *memoryTx) SetAcceptedAnswer(questionID uint, answerID *uint, expectedVersion int64) error {
	q, ok := t.m.questions[questionID]
	if !ok || q.Version != expectedVersion {
		return ErrConflict
	}
	q.AcceptedAnswerID = answerID
	q.Version++
	t.m.questions[questionID] = q
	return nil
}

func (t *memoryTx) CreateNotification(n *models.Notification) error {
	t.m.nextNotificationID++
	n.ID = t.m.nextNotificationID
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	t.m.notifications[n.ID] = *n
	return nil
}

func (t *memoryTx) GetNotification(id uint) (*models.Notification, error) {
	n, ok := t.m.notifications[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &n, nil
}

func (t *memoryTx) NotificationExists(recipientID, referenceID uint, kind models.NotificationType) (bool, error) {
	for _, n := range t.m.notifications {
		if n.UserID == recipientID && n.ReferenceID == referenceID && n.Type == kind {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) CountUnreadNotifications(userID uint) (int64, error) {
	var count int64
	for _, n := range t.m.notifications {
		if n.UserID == userID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (t *memoryTx) MarkNotificationRead(id uint, at time.Time) error {
	n, ok := t.m.notifications[id]
	if !ok {
		return ErrNotFound
	}
	if !n.IsRead {
		n.IsRead = true
		n.ReadAt = &at
		t.m.notifications[id] = n
	}
	return nil
}

func (t *memoryTx) MarkAllNotificationsRead(userID uint, at time.Time) error {
	for id, n := range t.m.notifications {
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			n.ReadAt = &at
			t.m.notifications[id] = n
		}
	}
	return nil
}

func (t *memoryTx) DeleteNotificationsBefore(cutoff time.Time) (int64, error) {
	var deleted int64
	for id, n := range t.m.notifications {
		if n.CreatedAt.Before(cutoff) {
			delete(t.m.notifications, id)
			deleted++
		}
	}
	return deleted, nil
}

func (t *memoryTx) Atomic(fn func(Store) error) error {
	return fn(t)
}
