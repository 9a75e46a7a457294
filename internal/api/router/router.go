package router

import (
	"net/http"

	"github.com/cuongbtq/learning-hub/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(RecoveryMiddleware(deps.Logger))
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	serviceName := deps.ServiceName
	if serviceName == "" {
		serviceName = "learning-hub-api"
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": serviceName,
		})
	})

	jobHandler := handler.NewJobHandler(deps)

	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/materials/:material_id/processing - Queue text extraction for a material
		v1.POST("/materials/:material_id/processing", jobHandler.EnqueueMaterial)

		queue := v1.Group("/queue")
		{
			// POST /api/v1/queue/jobs - Enqueue a job
			queue.POST("/jobs", jobHandler.EnqueueJob)

			// GET /api/v1/queue/jobs - List jobs with filtering and pagination
			queue.GET("/jobs", jobHandler.ListJobs)

			// GET /api/v1/queue/jobs/:job_id - Get job details
			queue.GET("/jobs/:job_id", jobHandler.GetJob)

			// GET /api/v1/queue/stats - Job counts by status
			queue.GET("/stats", jobHandler.GetStats)

			// GET /api/v1/queue/workers - Live worker snapshots
			queue.GET("/workers", jobHandler.ListWorkers)
		}
	}

	return r
}
