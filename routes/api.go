package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/pacs-databridge/app/controllers"
)

// Controllers groups the handlers the router dispatches to.
type Controllers struct {
	Address *controllers.AddressController
	Jobs    *controllers.JobController
	Reviews *controllers.ReviewController
	Admin   *controllers.AdminController
}

// SetupAPIRoutes registers the /v1 API.
func SetupAPIRoutes(router *gin.Engine, ctl Controllers) {
	v1 := router.Group("/v1")
	{
		addresses := v1.Group("/addresses")
		{
			addresses.POST("/normalize", ctl.Address.Normalize)
			addresses.POST("/parse", ctl.Address.Parse)
			addresses.POST("/match", ctl.Address.MatchAddress)
		}

		matches := v1.Group("/matches")
		{
			matches.POST("/jobs", ctl.Jobs.SubmitBatch)
			matches.GET("/jobs/:jobID/status", ctl.Jobs.GetJobStatus)
			matches.GET("/jobs/:jobID/results", ctl.Jobs.GetJobResults)
		}

		reviews := v1.Group("/reviews")
		{
			reviews.GET("", ctl.Reviews.ListReviews)
			reviews.POST("/:id/approve", ctl.Reviews.ApproveReview)
			reviews.POST("/:id/reject", ctl.Reviews.RejectReview)
		}

		admin := v1.Group("/admin")
		{
			admin.POST("/parcels/index", ctl.Admin.IndexParcels)
			admin.POST("/cache/invalidate", ctl.Admin.InvalidateCache)
			admin.GET("/stats", ctl.Admin.GetStats)
			admin.GET("/export/:type", ctl.Admin.ExportData)
		}

		v1.GET("/health", ctl.Address.HealthCheck)
	}
}

// SetupHealthRoutes registers the probe endpoints.
func SetupHealthRoutes(router *gin.Engine, addressController *controllers.AddressController) {
	router.GET("/health", addressController.HealthCheck)
	router.GET("/ready", addressController.HealthCheck)
	router.GET("/live", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "alive"})
	})
}
