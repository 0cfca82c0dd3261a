package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mknmagx/crmstack/interfaces"
)

// HealthCheck provides a simple health check endpoint
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Status reports the last completed sync pass without requiring an API key
func Status(syncState interfaces.SyncStateRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := syncState.GetStatus(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "status unavailable"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"lastSyncAt": status.LastSyncAt,
			"syncCount":  status.SyncCount,
		})
	}
}
