package restapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRoutes registers every API endpoint on the router.
func SetupRoutes(router *gin.Engine, snapshotHandler *SnapshotHandler, runHandler *RunHandler) {
	v1 := router.Group("/api/v1")
	{
		v1.GET("/snapshots", snapshotHandler.ListHandler)
		v1.GET("/snapshots/latest", snapshotHandler.LatestHandler)
		v1.GET("/snapshots/:id", snapshotHandler.GetHandler)
		v1.POST("/runs", runHandler.TriggerHandler)
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
