package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/feichai0017/ingestion-wizard/api/handlers"
	"github.com/feichai0017/ingestion-wizard/api/middleware"
)

// SetupRoutes wires the wizard's HTTP surface.
func SetupRoutes(r *gin.Engine, h *handlers.Handlers) {
	r.Use(middleware.CORS())

	v1 := r.Group("/api/v1")

	sessions := v1.Group("/sessions")
	{
		sessions.POST("", h.Session.Create)
		sessions.GET("/:id/state", h.Session.State)
		sessions.POST("/:id/restart", h.Session.Restart)
		sessions.DELETE("/:id", h.Session.Close)

		sessions.GET("/:id/parameters", h.Wizard.GetParameters)
		sessions.PUT("/:id/parameters", h.Wizard.PutParameters)

		sessions.POST("/:id/advance", h.Wizard.Advance)
		sessions.POST("/:id/retreat", h.Wizard.Retreat)

		sessions.POST("/:id/documents", h.Document.Upload)
		sessions.POST("/:id/crawl", h.Document.SubmitCrawl)
		sessions.GET("/:id/crawl/:taskId", h.Document.ResolveCrawl)

		sessions.POST("/:id/review/run", h.Wizard.RunReview)
		sessions.POST("/:id/review/retry", h.Wizard.RetryReview)
		sessions.GET("/:id/review", h.Wizard.GetReview)

		sessions.POST("/:id/process/start", h.Wizard.StartProcessing)
		sessions.GET("/:id/process/progress", h.Wizard.Progress)

		sessions.POST("/:id/chat", h.Chat.Ask)
	}
}
