package main

import (
	"log"

	"stackit/internal/config"
	"stackit/internal/db"
	"stackit/internal/fanout"
	"stackit/internal/handlers"
	"stackit/internal/middleware"
	"stackit/internal/services"
	"stackit/internal/store"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	db.Init(cfg.DatabaseURL)
	st := store.NewPostgres(db.DB)

	hub := fanout.NewHub(cfg.FanoutBuffer)
	reputation := services.NewReputation()
	notifier := services.NewNotifier(st, hub, cfg.MaxUnreadNotifications, cfg.RetentionDays)
	ledger := services.NewVoteLedger(st, hub, notifier, reputation)
	acceptance := services.NewAcceptance(st, hub, notifier, reputation)

	stop := make(chan struct{})
	defer close(stop)
	notifier.StartRetentionSweep(stop)

	authHandler := handlers.NewAuthHandler(cfg.JWTSecret)
	questionHandler := handlers.NewQuestionHandler(hub, acceptance, notifier, cfg.MaxContentLength)
	answerHandler := handlers.NewAnswerHandler(hub, notifier, acceptance, ledger, cfg.MaxContentLength)
	voteHandler := handlers.NewVoteHandler(ledger)
	notificationHandler := handlers.NewNotificationHandler(notifier)
	tagHandler := handlers.NewTagHandler()
	userHandler := handlers.NewUserHandler()
	wsHandler := handlers.NewWSHandler(hub)

	r := gin.Default()
	r.Use(middleware.LoadUser(cfg.JWTSecret))

	api := r.Group("/api")
	{
		api.POST("/auth/signup", authHandler.Signup)
		api.POST("/auth/login", authHandler.Login)

		api.GET("/questions", questionHandler.List)
		api.GET("/questions/:id", questionHandler.Get)
		api.GET("/questions/:id/answers", answerHandler.List)
		api.GET("/answers/:id/votes", voteHandler.Score)

		api.GET("/tags", tagHandler.List)
		api.GET("/tags/popular", tagHandler.Popular)
		api.GET("/tags/search", tagHandler.Search)
		api.GET("/users/:id", userHandler.Profile)
	}

	authed := api.Group("")
	authed.Use(middleware.AuthRequired())
	{
		authed.GET("/auth/me", authHandler.Me)

		authed.POST("/questions", questionHandler.Create)
		authed.PUT("/questions/:id", questionHandler.Update)
		authed.DELETE("/questions/:id", questionHandler.Delete)
		authed.POST("/questions/:id/close", questionHandler.Close)
		authed.POST("/questions/:id/reopen", questionHandler.Reopen)
		authed.POST("/questions/:id/answers", answerHandler.Create)
		authed.POST("/questions/:id/answers/:answerId/accept", questionHandler.Accept)

		authed.PUT("/answers/:id", answerHandler.Update)
		authed.DELETE("/answers/:id", answerHandler.Delete)
		authed.POST("/answers/:id/votes", voteHandler.Cast)
		authed.DELETE("/answers/:id/votes", voteHandler.Remove)

		authed.GET("/notifications", notificationHandler.List)
		authed.GET("/notifications/unread-count", notificationHandler.UnreadCount)
		authed.POST("/notifications/:id/read", notificationHandler.MarkRead)
		authed.POST("/notifications/read-all", notificationHandler.MarkAllRead)
	}

	ws := r.Group("/ws")
	ws.Use(middleware.AuthRequired())
	ws.GET("", wsHandler.Serve)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
