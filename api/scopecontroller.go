package api

import (
	"errors"
	"net/http"

	"pcaview/scheduler"
	"pcaview/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ScopeView pairs a configured source with its last run.
type ScopeView struct {
	Source types.SourceDescriptor `json:"source"`
	Status scheduler.ScopeStatus  `json:"status"`
}

// RegisterScopeRoutes registers scope listing and manual re-run endpoints.
func RegisterScopeRoutes(r *gin.Engine, s *scheduler.Scheduler, log *zap.Logger) {
	g := r.Group("/api/scopes")
	g.GET("", func(c *gin.Context) {
		srcs := s.Sources()
		out := make([]ScopeView, 0, len(srcs))
		for _, src := range srcs {
			st, _ := s.Tracker().Status(src.ScopeID)
			out = append(out, ScopeView{Source: src, Status: st})
		}
		c.JSON(http.StatusOK, gin.H{"scopes": out})
	})

	// POST /api/scopes/:id/run runs the scope synchronously and returns the
	// per-item result.
	g.POST("/:id/run", func(c *gin.Context) {
		id := c.Param("id")
		res, err := s.RunScope(c.Request.Context(), id)
		switch {
		case errors.Is(err, scheduler.ErrUnknownScope):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, scheduler.ErrBusy):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case err != nil:
			log.Warn("manual run failed", zap.String("scope", id), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "result": res})
		default:
			c.JSON(http.StatusOK, res)
		}
	})
}
