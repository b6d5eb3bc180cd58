package handlers

import (
	"net/http"
	"strings"
	"time"

	"stackit/internal/db"
	"stackit/internal/events"
	"stackit/internal/fanout"
	"stackit/internal/middleware"
	"stackit/internal/models"
	"stackit/internal/services"
	"stackit/internal/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type QuestionHandler struct {
	hub              *fanout.Hub
	acceptance       *services.Acceptance
	notifier         *services.Notifier
	maxContentLength int
}

func NewQuestionHandler(hub *fanout.Hub, acceptance *services.Acceptance, notifier *services.Notifier, maxContentLength int) *QuestionHandler {
	return &QuestionHandler{
		hub:              hub,
		acceptance:       acceptance,
		notifier:         notifier,
		maxContentLength: maxContentLength,
	}
}

type questionRequest struct {
	Title       string   `json:"title" binding:"required,max=200"`
	Description string   `json:"description" binding:"required"`
	Tags        []string `json:"tags"`
}

type questionResponse struct {
	ID               uint               `json:"id"`
	Title            string             `json:"title"`
	Description      string             `json:"description"`
	DescriptionHTML  string             `json:"description_html"`
	Author           models.UserSummary `json:"author"`
	Tags             []string           `json:"tags"`
	ViewCount        int                `json:"view_count"`
	AnswerCount      int                `json:"answer_count"`
	IsClosed         bool               `json:"is_closed"`
	AcceptedAnswerID *uint              `json:"accepted_answer_id"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func mapQuestion(q *models.Question) questionResponse {
	tags := make([]string, 0, len(q.Tags))
	for _, t := range q.Tags {
		tags = append(tags, t.Name)
	}
	return questionResponse{
		ID:               q.ID,
		Title:            q.Title,
		Description:      q.Description,
		DescriptionHTML:  utils.RenderMarkdown(q.Description),
		Author:           q.User.Summary(),
		Tags:             tags,
		ViewCount:        q.ViewCount,
		AnswerCount:      q.AnswerCount,
		IsClosed:         q.IsClosed,
		AcceptedAnswerID: q.AcceptedAnswerID,
		CreatedAt:        q.CreatedAt,
		UpdatedAt:        q.UpdatedAt,
	}
}

func (h *QuestionHandler) Create(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	description := utils.SanitizeContent(req.Description)
	if len(description) > h.maxContentLength {
		Err(c, services.ErrContentTooLong)
		return
	}

	question := models.Question{
		UserID:      user.ID,
		Title:       strings.TrimSpace(req.Title),
		Description: description,
		IsActive:    true,
	}

	err := db.DB.Transaction(func(tx *gorm.DB) error {
		tags, err := resolveTags(tx, req.Tags)
		if err != nil {
			return err
		}
		question.Tags = tags
		if err := tx.Create(&question).Error; err != nil {
			return err
		}
		for _, tag := range tags {
			if err := adjustTagUsage(tx, tag.ID, 1); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		Err(c, err)
		return
	}

	question.User = *user
	resp := mapQuestion(&question)

	h.hub.Publish(events.TopicQuestions, events.New(events.QuestionPayload{
		QuestionID: question.ID,
		Title:      question.Title,
		Author:     user.Summary(),
		Tags:       resp.Tags,
		CreatedAt:  question.CreatedAt,
	}))

	// Mentions in the question body notify the referenced users.
	h.notifier.NotifyMentions(question.Description, user.ID, question.ID, models.RefQuestion)

	c.JSON(http.StatusCreated, resp)
}

func (h *QuestionHandler) Get(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}

	var question models.Question
	if err := db.DB.Preload("User").Preload("Tags").
		Where("is_active = ?", true).First(&question, id).Error; err != nil {
		Err(c, services.ErrNotFound)
		return
	}

	// Owners reading their own question do not bump the view count.
	user := middleware.CurrentUser(c)
	if user == nil || user.ID != question.UserID {
		db.DB.Model(&question).UpdateColumn("view_count", gorm.Expr("view_count + 1"))
		question.ViewCount++
	}

	fillAnswerCounts(db.DB, []*models.Question{&question})
	c.JSON(http.StatusOK, mapQuestion(&question))
}

// List serves the question feed: newest first with optional keyword, tag and
// unanswered filters.
func (h *QuestionHandler) List(c *gin.Context) {
	page, limit := Paging(c)

	query := db.DB.Model(&models.Question{}).
		Preload("User").Preload("Tags").
		Where("questions.is_active = ?", true)

	if keyword := strings.TrimSpace(c.Query("q")); keyword != "" {
		pattern := "%" + keyword + "%"
		query = query.Where("title ILIKE ? OR description ILIKE ?", pattern, pattern)
	}
	if tag := strings.TrimSpace(c.Query("tag")); tag != "" {
		query = query.
			Joins("JOIN question_tags qt ON qt.question_id = questions.id").
			Joins("JOIN tags ON tags.id = qt.tag_id").
			Where("tags.name = ?", tag)
	}
	if c.Query("unanswered") == "true" {
		query = query.Where(
			"NOT EXISTS (SELECT 1 FROM answers a WHERE a.question_id = questions.id AND a.is_active = true)")
	}

	var total int64
	query.Count(&total)

	var questions []*models.Question
	if err := query.Order("questions.created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&questions).Error; err != nil {
		Err(c, err)
		return
	}

	fillAnswerCounts(db.DB, questions)
	items := make([]questionResponse, 0, len(questions))
	for _, q := range questions {
		items = append(items, mapQuestion(q))
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total, "page": page, "limit": limit})
}

func (h *QuestionHandler) Update(c *gin.Context) {
	user := middleware.CurrentUser(c)
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}

	var question models.Question
	if err := db.DB.Preload("Tags").Where("is_active = ?", true).First(&question, id).Error; err != nil {
		Err(c, services.ErrNotFound)
		return
	}
	if question.UserID != user.ID {
		Err(c, services.ErrNotAuthorized)
		return
	}

	var req questionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	description := utils.SanitizeContent(req.Description)
	if len(description) > h.maxContentLength {
		Err(c, services.ErrContentTooLong)
		return
	}

	err := db.DB.Transaction(func(tx *gorm.DB) error {
		newTags, err := resolveTags(tx, req.Tags)
		if err != nil {
			return err
		}

		oldIDs := make(map[uint]bool, len(question.Tags))
		for _, t := range question.Tags {
			oldIDs[t.ID] = true
		}
		newIDs := make(map[uint]bool, len(newTags))
		for _, t := range newTags {
			newIDs[t.ID] = true
			if !oldIDs[t.ID] {
				if err := adjustTagUsage(tx, t.ID, 1); err != nil {
					return err
				}
			}
		}
		for _, t := range question.Tags {
			if !newIDs[t.ID] {
				if err := adjustTagUsage(tx, t.ID, -1); err != nil {
					return err
				}
			}
		}

		question.Title = strings.TrimSpace(req.Title)
		question.Description = description
		if err := tx.Save(&question).Error; err != nil {
			return err
		}
		if err := tx.Model(&question).Association("Tags").Replace(newTags); err != nil {
			return err
		}
		question.Tags = newTags
		return nil
	})
	if err != nil {
		Err(c, err)
		return
	}

	question.User = *user
	fillAnswerCounts(db.DB, []*models.Question{&question})
	resp := mapQuestion(&question)

	payload := events.QuestionPayload{
		QuestionID: question.ID,
		Title:      question.Title,
		Author:     user.Summary(),
		Tags:       resp.Tags,
		CreatedAt:  question.CreatedAt,
	}.Updated()
	h.hub.Publish(events.QuestionTopic(question.ID), events.New(payload))
	h.hub.Publish(events.TopicQuestions, events.New(payload))

	c.JSON(http.StatusOK, resp)
}

// Delete soft-deletes a question and releases its tag usage counts.
func (h *QuestionHandler) Delete(c *gin.Context) {
	user := middleware.CurrentUser(c)
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}

	var question models.Question
	if err := db.DB.Preload("Tags").Where("is_active = ?", true).First(&question, id).Error; err != nil {
		Err(c, services.ErrNotFound)
		return
	}
	if question.UserID != user.ID {
		Err(c, services.ErrNotAuthorized)
		return
	}

	err := db.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&question).Update("is_active", false).Error; err != nil {
			return err
		}
		for _, tag := range question.Tags {
			if err := adjustTagUsage(tx, tag.ID, -1); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		Err(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type closeRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// Close marks a question closed; closed questions reject new answers but
// keep votes and acceptance working. Moderators may close any question.
func (h *QuestionHandler) Close(c *gin.Context) {
	user := middleware.CurrentUser(c)
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}

	var question models.Question
	if err := db.DB.Where("is_active = ?", true).First(&question, id).Error; err != nil {
		Err(c, services.ErrNotFound)
		return
	}
	if question.UserID != user.ID && user.Role != models.RoleModerator && user.Role != models.RoleAdmin {
		Err(c, services.ErrNotAuthorized)
		return
	}

	var req closeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{"is_closed": true, "close_reason": strings.TrimSpace(req.Reason)}
	if err := db.DB.Model(&question).Updates(updates).Error; err != nil {
		Err(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": question.ID, "is_closed": true})
}

// Reopen reverses Close under the same authorization rules.
func (h *QuestionHandler) Reopen(c *gin.Context) {
	user := middleware.CurrentUser(c)
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}

	var question models.Question
	if err := db.DB.Where("is_active = ?", true).First(&question, id).Error; err != nil {
		Err(c, services.ErrNotFound)
		return
	}
	if question.UserID != user.ID && user.Role != models.RoleModerator && user.Role != models.RoleAdmin {
		Err(c, services.ErrNotAuthorized)
		return
	}

	updates := map[string]interface{}{"is_closed": false, "close_reason": ""}
	if err := db.DB.Model(&question).Updates(updates).Error; err != nil {
		Err(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": question.ID, "is_closed": false})
}

// Accept routes POST /questions/:id/answers/:answerId/accept into the
// acceptance controller.
func (h *QuestionHandler) Accept(c *gin.Context) {
	user := middleware.CurrentUser(c)
	questionID, ok := ParamID(c, "id")
	if !ok {
		return
	}
	answerID, ok := ParamID(c, "answerId")
	if !ok {
		return
	}

	if err := h.acceptance.AcceptAnswer(questionID, answerID, user.ID); err != nil {
		Err(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"question_id": questionID, "accepted_answer_id": answerID})
}

// fillAnswerCounts populates the derived AnswerCount field in one query.
func fillAnswerCounts(tx *gorm.DB, questions []*models.Question) {
	if len(questions) == 0 {
		return
	}
	ids := make([]uint, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.ID)
	}

	type row struct {
		QuestionID uint
		Count      int
	}
	var rows []row
	tx.Model(&models.Answer{}).
		Select("question_id, COUNT(*) as count").
		Where("question_id IN ? AND is_active = ?", ids, true).
		Group("question_id").
		Scan(&rows)

	counts := make(map[uint]int, len(rows))
	for _, r := range rows {
		counts[r.QuestionID] = r.Count
	}
	for _, q := range questions {
		q.AnswerCount = counts[q.ID]
	}
}
