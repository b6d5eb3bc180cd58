package handlers

import (
	"log"
	"net/http"
	"sort"
	"time"

	"stackit/internal/db"
	"stackit/internal/events"
	"stackit/internal/fanout"
	"stackit/internal/middleware"
	"stackit/internal/models"
	"stackit/internal/services"
	"stackit/internal/utils"

	"github.com/gin-gonic/gin"
)

type AnswerHandler struct {
	hub              *fanout.Hub
	notifier         *services.Notifier
	acceptance       *services.Acceptance
	ledger           *services.VoteLedger
	maxContentLength int
}

func NewAnswerHandler(hub *fanout.Hub, notifier *services.Notifier, acceptance *services.Acceptance, ledger *services.VoteLedger, maxContentLength int) *AnswerHandler {
	return &AnswerHandler{
		hub:              hub,
		notifier:         notifier,
		acceptance:       acceptance,
		ledger:           ledger,
		maxContentLength: maxContentLength,
	}
}

type answerRequest struct {
	Content string `json:"content" binding:"required"`
}

type answerResponse struct {
	ID              uint                 `json:"id"`
	QuestionID      uint                 `json:"question_id"`
	Content         string               `json:"content"`
	ContentHTML     string               `json:"content_html"`
	Author          models.UserSummary   `json:"author"`
	IsAccepted      bool                 `json:"is_accepted"`
	Score           int                  `json:"score"`
	Upvotes         int                  `json:"upvotes"`
	Downvotes       int                  `json:"downvotes"`
	CurrentUserVote models.VoteDirection `json:"current_user_vote,omitempty"`
	EditedAt        *time.Time           `json:"edited_at"`
	CreatedAt       time.Time            `json:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at"`
}

func mapAnswer(a *models.Answer, currentVote models.VoteDirection) answerResponse {
	return answerResponse{
		ID:              a.ID,
		QuestionID:      a.QuestionID,
		Content:         a.Content,
		ContentHTML:     utils.RenderMarkdown(a.Content),
		Author:          a.User.Summary(),
		IsAccepted:      a.IsAccepted,
		Score:           a.Score,
		Upvotes:         a.Upvotes,
		Downvotes:       a.Downvotes,
		CurrentUserVote: currentVote,
		EditedAt:        a.EditedAt,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}

// Create posts an answer under POST /questions/:id/answers.
func (h *AnswerHandler) Create(c *gin.Context) {
	user := middleware.CurrentUser(c)
	questionID, ok := ParamID(c, "id")
	if !ok {
		return
	}

	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var question models.Question
	if err := db.DB.Where("is_active = ?", true).First(&question, questionID).Error; err != nil {
		Err(c, services.ErrNotFound)
		return
	}
	if question.IsClosed {
		Err(c, services.ErrQuestionClosed)
		return
	}

	content := utils.SanitizeContent(req.Content)
	if len(content) > h.maxContentLength {
		Err(c, services.ErrContentTooLong)
		return
	}

	answer := models.Answer{
		QuestionID: questionID,
		UserID:     user.ID,
		Content:    content,
		IsActive:   true,
	}
	if err := db.DB.Create(&answer).Error; err != nil {
		Err(c, err)
		return
	}
	answer.User = *user

	h.hub.Publish(events.QuestionTopic(questionID), events.New(events.NewAnswerPayload{
		QuestionID: questionID,
		AnswerID:   answer.ID,
		Author:     user.Summary(),
		CreatedAt:  answer.CreatedAt,
	}))

	if _, err := h.notifier.Notify(models.NotificationQuestionAnswered, question.UserID, user.ID, questionID, models.RefQuestion); err != nil {
		log.Printf("answer notification failed for question %d: %v", questionID, err)
	}
	h.notifier.NotifyMentions(content, user.ID, answer.ID, models.RefAnswer)

	c.JSON(http.StatusCreated, mapAnswer(&answer, ""))
}

// List returns a question's answers ordered accepted-first, then score
// descending, then oldest first as the deterministic tie-break.
func (h *AnswerHandler) List(c *gin.Context) {
	questionID, ok := ParamID(c, "id")
	if !ok {
		return
	}

	var question models.Question
	if err := db.DB.Where("is_active = ?", true).First(&question, questionID).Error; err != nil {
		Err(c, services.ErrNotFound)
		return
	}

	var answers []*models.Answer
	if err := db.DB.Preload("User").
		Where("question_id = ? AND is_active = ?", questionID, true).
		Order("created_at ASC").
		Find(&answers).Error; err != nil {
		Err(c, err)
		return
	}

	fillVoteCounts(answers)
	sortAnswers(answers)

	user := middleware.CurrentUser(c)
	items := make([]answerResponse, 0, len(answers))
	for _, a := range answers {
		var currentVote models.VoteDirection
		if user != nil {
			currentVote, _ = h.ledger.UserVote(user.ID, a.ID)
		}
		items = append(items, mapAnswer(a, currentVote))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *AnswerHandler) Update(c *gin.Context) {
	user := middleware.CurrentUser(c)
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}

	var answer models.Answer
	if err := db.DB.Preload("User").Where("is_active = ?", true).First(&answer, id).Error; err != nil {
		Err(c, services.ErrNotFound)
		return
	}
	if answer.UserID != user.ID {
		Err(c, services.ErrNotAuthorized)
		return
	}

	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	content := utils.SanitizeContent(req.Content)
	if len(content) > h.maxContentLength {
		Err(c, services.ErrContentTooLong)
		return
	}

	now := time.Now()
	answer.Content = content
	answer.EditedAt = &now
	if err := db.DB.Save(&answer).Error; err != nil {
		Err(c, err)
		return
	}

	h.hub.Publish(events.QuestionTopic(answer.QuestionID), events.New(events.AnswerUpdatedPayload{
		QuestionID: answer.QuestionID,
		AnswerID:   answer.ID,
		EditedAt:   now,
	}))

	fillVoteCounts([]*models.Answer{&answer})
	c.JSON(http.StatusOK, mapAnswer(&answer, ""))
}

// Delete soft-deletes an answer. If it was the accepted one, the question's
// acceptance is cleared; no other answer is promoted.
func (h *AnswerHandler) Delete(c *gin.Context) {
	user := middleware.CurrentUser(c)
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}

	var answer models.Answer
	if err := db.DB.Where("is_active = ?", true).First(&answer, id).Error; err != nil {
		Err(c, services.ErrNotFound)
		return
	}
	if answer.UserID != user.ID {
		Err(c, services.ErrNotAuthorized)
		return
	}

	if err := db.DB.Model(&answer).Update("is_active", false).Error; err != nil {
		Err(c, err)
		return
	}

	if err := h.acceptance.ClearAcceptanceFor(&answer); err != nil {
		log.Printf("clearing acceptance for deleted answer %d failed: %v", answer.ID, err)
	}
	c.Status(http.StatusNoContent)
}

// fillVoteCounts derives score fields from the vote ledger in one grouped
// query; nothing is read from a cache.
func fillVoteCounts(answers []*models.Answer) {
	if len(answers) == 0 {
		return
	}
	ids := make([]uint, 0, len(answers))
	for _, a := range answers {
		ids = append(ids, a.ID)
	}

	type row struct {
		AnswerID  uint
		Direction models.VoteDirection
		Count     int
	}
	var rows []row
	db.DB.Model(&models.Vote{}).
		Select("answer_id, direction, COUNT(*) as count").
		Where("answer_id IN ?", ids).
		Group("answer_id, direction").
		Scan(&rows)

	up := make(map[uint]int, len(answers))
	down := make(map[uint]int, len(answers))
	for _, r := range rows {
		if r.Direction == models.DirectionUp {
			up[r.AnswerID] = r.Count
		} else {
			down[r.AnswerID] = r.Count
		}
	}
	for _, a := range answers {
		a.Upvotes = up[a.ID]
		a.Downvotes = down[a.ID]
		a.Score = a.Upvotes - a.Downvotes
	}
}

// sortAnswers orders accepted-first, then by score, then older answer first.
// The input is already created_at ascending, so a stable sort keeps that as
// the final tie-break.
func sortAnswers(answers []*models.Answer) {
	sort.SliceStable(answers, func(i, j int) bool {
		a, b := answers[i], answers[j]
		if a.IsAccepted != b.IsAccepted {
			return a.IsAccepted
		}
		return a.Score > b.Score
	})
}
