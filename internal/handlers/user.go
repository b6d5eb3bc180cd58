package handlers

import (
	"net/http"

	"stackit/internal/db"
	"stackit/internal/models"
	"stackit/internal/services"

	"github.com/gin-gonic/gin"
)

type UserHandler struct{}

func NewUserHandler() *UserHandler {
	return &UserHandler{}
}

// Profile returns a user's public summary with activity counts and their
// recent reputation history.
func (h *UserHandler) Profile(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}

	var user models.User
	if err := db.DB.Where("is_active = ?", true).First(&user, id).Error; err != nil {
		Err(c, services.ErrNotFound)
		return
	}

	var questionCount, answerCount, acceptedCount int64
	db.DB.Model(&models.Question{}).Where("user_id = ? AND is_active = ?", id, true).Count(&questionCount)
	db.DB.Model(&models.Answer{}).Where("user_id = ? AND is_active = ?", id, true).Count(&answerCount)
	db.DB.Model(&models.Answer{}).Where("user_id = ? AND is_active = ? AND is_accepted = ?", id, true, true).Count(&acceptedCount)

	var recentLogs []models.ReputationLog
	db.DB.Where("user_id = ?", id).Order("created_at DESC").Limit(10).Find(&recentLogs)

	c.JSON(http.StatusOK, gin.H{
		"user":             user.Summary(),
		"question_count":   questionCount,
		"answer_count":     answerCount,
		"accepted_answers": acceptedCount,
		"recent_activity":  recentLogs,
	})
}
