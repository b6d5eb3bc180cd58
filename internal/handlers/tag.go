package handlers

import (
	"net/http"
	"strings"
	"time"

	"stackit/internal/db"
	"stackit/internal/models"
	"stackit/internal/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type TagHandler struct{}

func NewTagHandler() *TagHandler {
	return &TagHandler{}
}

const popularTagsCacheKey = "tags:popular"

// List returns all tags ordered by name.
func (h *TagHandler) List(c *gin.Context) {
	var tags []models.Tag
	if err := db.DB.Order("name ASC").Find(&tags).Error; err != nil {
		Err(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": tags})
}

// Popular returns the most used tags, cached briefly since the list only
// drifts as questions are created and deleted.
func (h *TagHandler) Popular(c *gin.Context) {
	cache := utils.GetCache()
	if cached := cache.Get(popularTagsCacheKey); cached != nil {
		if tags, ok := cached.([]models.Tag); ok {
			c.JSON(http.StatusOK, gin.H{"items": tags})
			return
		}
	}

	var tags []models.Tag
	if err := db.DB.Where("usage_count > 0").
		Order("usage_count DESC, name ASC").
		Limit(20).
		Find(&tags).Error; err != nil {
		Err(c, err)
		return
	}

	cache.Set(popularTagsCacheKey, tags, 5*time.Minute)
	c.JSON(http.StatusOK, gin.H{"items": tags})
}

// Search matches tags by name prefix for the tag picker.
func (h *TagHandler) Search(c *gin.Context) {
	prefix := normalizeTagName(c.Query("q"))
	if prefix == "" {
		c.JSON(http.StatusOK, gin.H{"items": []models.Tag{}})
		return
	}

	var tags []models.Tag
	if err := db.DB.Where("name LIKE ?", prefix+"%").
		Order("usage_count DESC").
		Limit(10).
		Find(&tags).Error; err != nil {
		Err(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": tags})
}

func normalizeTagName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// resolveTags finds or creates tags by name. Names are lowercased and
// deduplicated; empty names are skipped.
func resolveTags(tx *gorm.DB, names []string) ([]models.Tag, error) {
	seen := make(map[string]bool, len(names))
	tags := make([]models.Tag, 0, len(names))
	for _, name := range names {
		name = normalizeTagName(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		var tag models.Tag
		err := tx.Where("name = ?", name).First(&tag).Error
		if err == gorm.ErrRecordNotFound {
			tag = models.Tag{Name: name}
			err = tx.Create(&tag).Error
		}
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// adjustTagUsage bumps a tag's usage counter. The popular-tags cache is
// invalidated so the next read sees the new counts.
func adjustTagUsage(tx *gorm.DB, tagID uint, delta int) error {
	if err := tx.Model(&models.Tag{}).Where("id = ?", tagID).
		UpdateColumn("usage_count", gorm.Expr("GREATEST(usage_count + ?, 0)", delta)).Error; err != nil {
		return err
	}
	utils.GetCache().Delete(popularTagsCacheKey)
	return nil
}
