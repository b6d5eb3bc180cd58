package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"stackit/internal/fanout"
	"stackit/internal/middleware"
	"stackit/internal/models"
	"stackit/internal/services"
	"stackit/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// voteTestRouter wires the vote routes against the in-memory store, with a
// stub middleware injecting the authenticated user.
func voteTestRouter(t *testing.T) (*gin.Engine, *store.Memory) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := store.NewMemory()
	m.PutUser(models.User{ID: 1, Username: "author", IsActive: true})
	m.PutUser(models.User{ID: 2, Username: "voter", IsActive: true})
	m.PutQuestion(models.Question{ID: 1, UserID: 1, Title: "q", IsActive: true})
	m.PutAnswer(models.Answer{ID: 1, QuestionID: 1, UserID: 1, IsActive: true})

	hub := fanout.NewHub(16)
	notifier := services.NewNotifier(m, hub, 100, 90)
	ledger := services.NewVoteLedger(m, hub, notifier, nil)
	h := NewVoteHandler(ledger)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		user, err := m.GetUser(2)
		require.NoError(t, err)
		c.Set(middleware.CheckUserKey, user)
	})
	r.POST("/answers/:id/votes", h.Cast)
	r.DELETE("/answers/:id/votes", h.Remove)
	r.GET("/answers/:id/votes", h.Score)
	return r, m
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestVoteCastAndToggle(t *testing.T) {
	r, _ := voteTestRouter(t)

	w := doJSON(r, http.MethodPost, "/answers/1/votes", `{"direction":"UP"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var result services.VoteResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Score)

	// Re-sending the same direction retracts.
	w = doJSON(r, http.MethodPost, "/answers/1/votes", `{"direction":"UP"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 0, result.Score)
}

func TestVoteCastInvalidDirection(t *testing.T) {
	r, _ := voteTestRouter(t)

	w := doJSON(r, http.MethodPost, "/answers/1/votes", `{"direction":"SIDEWAYS"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVoteCastUnknownAnswer(t *testing.T) {
	r, _ := voteTestRouter(t)

	w := doJSON(r, http.MethodPost, "/answers/99/votes", `{"direction":"UP"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestVoteRemove(t *testing.T) {
	r, m := voteTestRouter(t)

	doJSON(r, http.MethodPost, "/answers/1/votes", `{"direction":"DOWN"}`)
	w := doJSON(r, http.MethodDelete, "/answers/1/votes", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, m.VoteRows(1))
}

func TestVoteScore(t *testing.T) {
	r, _ := voteTestRouter(t)
	doJSON(r, http.MethodPost, "/answers/1/votes", `{"direction":"UP"}`)

	w := doJSON(r, http.MethodGet, "/answers/1/votes", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["score"])
	assert.Equal(t, "UP", resp["current_user_vote"])
}
