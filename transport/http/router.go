// Package http serves an in-memory planner backend for local development and tests.
package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/planclient/ports"
)

// SetupRouter sets up the Gin router
func SetupRouter(backend *Backend, tokenizer ports.Tokenizer, log *slog.Logger) *gin.Engine {
	if log == nil {
		log = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log))

	handlers := NewHandlers(backend, log)

	// Auth routes
	auth := router.Group("/api/auth")
	{
		auth.POST("/login", handlers.Login)
		auth.POST("/register", handlers.Register)
		auth.POST("/refresh", handlers.Refresh)
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(AuthMiddleware(tokenizer, backend))
	{
		activities := api.Group("/activities")
		activities.GET("", handlers.ListActivities)
		activities.POST("", handlers.CreateActivity)
		activities.GET("/:id", handlers.GetActivity)
		activities.PUT("/:id", handlers.UpdateActivity)
		activities.DELETE("/:id", handlers.DeleteActivity)
		activities.PATCH("/:id/status", handlers.UpdateActivityStatus)

		notes := api.Group("/notes")
		notes.GET("", handlers.ListNotes)
		notes.POST("", handlers.CreateNote)
		notes.GET("/:id", handlers.GetNote)
		notes.PUT("/:id", handlers.UpdateNote)
		notes.DELETE("/:id", handlers.DeleteNote)
		notes.PATCH("/:id/pin", handlers.TogglePin)

		api.POST("/ai/parse", handlers.Parse)
	}

	return router
}
