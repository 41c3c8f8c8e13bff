package api

import (
	"net/http"
	"strings"
	"time"

	"pcaview/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RegisterTagRoutes registers the tag-sync trigger.
func RegisterTagRoutes(r *gin.Engine, events Publisher, log *zap.Logger) {
	// POST /api/tags/:tag/sync?scope=... queues a tag sync and returns 202.
	r.POST("/api/tags/:tag/sync", func(c *gin.Context) {
		tag := strings.TrimSpace(c.Param("tag"))
		if tag == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tag is required"})
			return
		}
		ev := types.Event{
			Kind:       types.TagSyncRequested,
			Tag:        tag,
			ScopeID:    c.Query("scope"),
			OccurredAt: time.Now(),
		}
		if err := events.Publish(c.Request.Context(), ev); err != nil {
			log.Error("failed to queue tag sync", zap.String("tag", tag), zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to queue tag sync: " + err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "queued", "tag": tag})
	})
}
