package handlers

import (
	"net/http"

	"stackit/internal/middleware"
	"stackit/internal/models"
	"stackit/internal/services"

	"github.com/gin-gonic/gin"
)

type VoteHandler struct {
	ledger *services.VoteLedger
}

func NewVoteHandler(ledger *services.VoteLedger) *VoteHandler {
	return &VoteHandler{ledger: ledger}
}

type voteRequest struct {
	Direction models.VoteDirection `json:"direction" binding:"required"`
}

// Cast applies the voter's direction to an answer. Re-sending the held
// direction retracts the vote; the opposite direction flips it. The response
// is always the authoritative tally after the toggle.
func (h *VoteHandler) Cast(c *gin.Context) {
	user := middleware.CurrentUser(c)
	answerID, ok := ParamID(c, "id")
	if !ok {
		return
	}

	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.ledger.CastVote(user.ID, answerID, req.Direction)
	if err != nil {
		Err(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Remove retracts the voter's vote. Absent votes are a no-op.
func (h *VoteHandler) Remove(c *gin.Context) {
	user := middleware.CurrentUser(c)
	answerID, ok := ParamID(c, "id")
	if !ok {
		return
	}

	result, err := h.ledger.RemoveVote(user.ID, answerID)
	if err != nil {
		Err(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Score returns the answer's current tally plus the caller's own vote.
func (h *VoteHandler) Score(c *gin.Context) {
	answerID, ok := ParamID(c, "id")
	if !ok {
		return
	}

	result, err := h.ledger.Score(answerID)
	if err != nil {
		Err(c, err)
		return
	}

	resp := gin.H{
		"score":     result.Score,
		"upvotes":   result.Upvotes,
		"downvotes": result.Downvotes,
	}
	if user := middleware.CurrentUser(c); user != nil {
		direction, err := h.ledger.UserVote(user.ID, answerID)
		if err != nil {
			Err(c, err)
			return
		}
		resp["current_user_vote"] = direction
	}
	c.JSON(http.StatusOK, resp)
}
