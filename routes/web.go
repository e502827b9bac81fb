package routes

import (
	"github.com/gin-gonic/gin"
)

// SetupWebRoutes registers the index and docs pages.
func SetupWebRoutes(router *gin.Engine) {
	web := router.Group("/")
	{
		web.GET("/", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"message": "PACS DataBridge address matching service",
				"version": "1.0.0",
				"docs":    "/docs",
			})
		})

		web.GET("/docs", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"api": "PACS DataBridge API v1",
				"endpoints": map[string]string{
					"normalize":        "POST /v1/addresses/normalize",
					"parse":            "POST /v1/addresses/parse",
					"match":            "POST /v1/addresses/match",
					"batch":            "POST /v1/matches/jobs",
					"job_status":       "GET /v1/matches/jobs/:jobID/status",
					"job_results":      "GET /v1/matches/jobs/:jobID/results?format=ndjson&gzip=1",
					"reviews":          "GET /v1/reviews?status=pending&limit=50&offset=0",
					"review_approve":   "POST /v1/reviews/:id/approve",
					"review_reject":    "POST /v1/reviews/:id/reject",
					"index_parcels":    "POST /v1/admin/parcels/index (multipart file)",
					"cache_invalidate": "POST /v1/admin/cache/invalidate",
					"stats":            "GET /v1/admin/stats",
					"export":           "GET /v1/admin/export/:type",
					"health":           "GET /v1/health",
				},
			})
		})
	}
}
