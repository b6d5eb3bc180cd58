package handlers

import (
	"net/http"

	"stackit/internal/db"
	"stackit/internal/middleware"
	"stackit/internal/models"
	"stackit/internal/services"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notifier *services.Notifier
}

func NewNotificationHandler(notifier *services.Notifier) *NotificationHandler {
	return &NotificationHandler{notifier: notifier}
}

// List returns the caller's notifications, newest first. ?unread=true narrows
// to the unread backlog.
func (h *NotificationHandler) List(c *gin.Context) {
	user := middleware.CurrentUser(c)
	page, limit := Paging(c)

	query := db.DB.Model(&models.Notification{}).
		Preload("Actor").
		Where("user_id = ?", user.ID)
	if c.Query("unread") == "true" {
		query = query.Where("is_read = ?", false)
	}

	var total int64
	query.Count(&total)

	var notifications []models.Notification
	if err := query.Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&notifications).Error; err != nil {
		Err(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": notifications, "total": total, "page": page, "limit": limit})
}

// UnreadCount powers the badge in the nav bar.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var count int64
	if err := db.DB.Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", user.ID, false).
		Count(&count).Error; err != nil {
		Err(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// MarkRead flips one notification to read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	user := middleware.CurrentUser(c)
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}

	if err := h.notifier.MarkRead(id, user.ID); err != nil {
		Err(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkAllRead clears the caller's unread backlog.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if err := h.notifier.MarkAllRead(user.ID); err != nil {
		Err(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
