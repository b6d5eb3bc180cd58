package events

import (
	"encoding/json"
	"fmt"
	"time"

	"stackit/internal/models"
)

// Type tags every event pushed through the fanout.
type Type string

const (
	TypeQuestionCreated Type = "QUESTION_CREATED"
	TypeQuestionUpdated Type = "QUESTION_UPDATED"
	TypeNewAnswer       Type = "NEW_ANSWER"
	TypeAnswerUpdated   Type = "ANSWER_UPDATED"
	TypeAnswerAccepted  Type = "ANSWER_ACCEPTED"
	TypeVoteChanged     Type = "VOTE_CHANGED"
	TypeNewNotification Type = "NEW_NOTIFICATION"
	TypeTypingIndicator Type = "TYPING_INDICATOR"
	TypeUserStatus      Type = "USER_STATUS"
	TypePong            Type = "PONG"
)

// Topic names. Subscribers pick one of three scopes: the global question
// feed, a single question's activity, or their own private queue.
const (
	TopicQuestions  = "questions"
	TopicUserStatus = "users/status"
)

func QuestionTopic(questionID uint) string {
	return fmt.Sprintf("questions/%d", questionID)
}

func UserTopic(userID uint) string {
	return fmt.Sprintf("user/%d", userID)
}

// Payload is the closed set of event bodies. Each kind carries its own typed
// payload, so subscribers never type-switch on loose maps.
type Payload interface {
	eventType() Type
}

type QuestionPayload struct {
	QuestionID uint               `json:"question_id"`
	Title      string             `json:"title"`
	Author     models.UserSummary `json:"author"`
	Tags       []string           `json:"tags"`
	CreatedAt  time.Time          `json:"created_at"`

	updated bool
}

type NewAnswerPayload struct {
	QuestionID uint               `json:"question_id"`
	AnswerID   uint               `json:"answer_id"`
	Author     models.UserSummary `json:"author"`
	CreatedAt  time.Time          `json:"created_at"`
}

type AnswerUpdatedPayload struct {
	QuestionID uint      `json:"question_id"`
	AnswerID   uint      `json:"answer_id"`
	EditedAt   time.Time `json:"edited_at"`
}

type AnswerAcceptedPayload struct {
	QuestionID uint `json:"question_id"`
	AnswerID   uint `json:"answer_id"`
}

type VoteChangedPayload struct {
	QuestionID uint `json:"question_id"`
	AnswerID   uint `json:"answer_id"`
	Score      int  `json:"score"`
	Upvotes    int  `json:"upvotes"`
	Downvotes  int  `json:"downvotes"`
}

type NotificationPayload struct {
	Notification models.Notification `json:"notification"`
}

type TypingPayload struct {
	QuestionID uint   `json:"question_id"`
	Username   string `json:"username"`
	IsTyping   bool   `json:"is_typing"`
}

type UserStatusPayload struct {
	UserID   uint `json:"user_id"`
	IsOnline bool `json:"is_online"`
}

type PongPayload struct {
	Timestamp int64 `json:"timestamp"`
}

func (p QuestionPayload) eventType() Type {
	if p.updated {
		return TypeQuestionUpdated
	}
	return TypeQuestionCreated
}
func (AnswerUpdatedPayload) eventType() Type  { return TypeAnswerUpdated }
func (NewAnswerPayload) eventType() Type      { return TypeNewAnswer }
func (AnswerAcceptedPayload) eventType() Type { return TypeAnswerAccepted }
func (VoteChangedPayload) eventType() Type    { return TypeVoteChanged }
func (NotificationPayload) eventType() Type   { return TypeNewNotification }
func (TypingPayload) eventType() Type         { return TypeTypingIndicator }
func (UserStatusPayload) eventType() Type     { return TypeUserStatus }
func (PongPayload) eventType() Type           { return TypePong }

// Updated marks a question payload as an update rather than a creation.
func (p QuestionPayload) Updated() QuestionPayload {
	p.updated = true
	return p
}

// Event is what subscribers receive: a type tag plus the matching payload.
type Event struct {
	Type    Type
	Payload Payload
}

func New(p Payload) Event {
	return Event{Type: p.eventType(), Payload: p}
}

// MarshalJSON writes the wire shape {"type": ..., "data": ...} the original
// clients expect.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type Type    `json:"type"`
		Data Payload `json:"data"`
	}{Type: e.Type, Data: e.Payload})
}
