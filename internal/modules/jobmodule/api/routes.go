package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all job module routes.
//
// API Structure:
//
//	/api
//	├── /upload             - Upload a video, creates an idle job
//	├── /jobs               - List jobs with stats
//	├── /jobs/stream        - Websocket push of the job list
//	├── /settings/:id       - Read or update job settings
//	├── /process/:id        - Schedule a job
//	├── /cancel/:id         - Cancel a queued or running job
//	├── /status/:id         - Single job snapshot
//	└── /history            - Archived terminal jobs
//
//	/download/:ref          - Completed artifact
func RegisterRoutes(router *gin.Engine, handler *APIHandler) {
	api := router.Group("/api")
	{
		api.POST("/upload", handler.Upload)

		api.GET("/jobs", handler.ListJobs)
		api.GET("/jobs/stream", handler.StreamJobs)
		api.GET("/status/:id", handler.GetStatus)

		api.GET("/settings/:id", handler.GetSettings)
		api.POST("/settings/:id", handler.UpdateSettings)

		api.POST("/process/:id", handler.Process)
		api.POST("/cancel/:id", handler.Cancel)

		api.GET("/history", handler.History)
	}

	router.GET("/download/:ref", handler.Download)
	router.HEAD("/download/:ref", handler.Download)
}
