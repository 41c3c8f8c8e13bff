package api

import (
	"net/http"

	"pcaview/ratelimit"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// QuotaView is the day-scoped quota flag of one provider.
type QuotaView struct {
	Provider string `json:"provider"`
	Exceeded bool   `json:"exceeded"`
}

// RegisterQuotaRoutes registers quota inspection and manual reset endpoints.
func RegisterQuotaRoutes(r *gin.Engine, limiters *ratelimit.Set, log *zap.Logger) {
	g := r.Group("/api/quota")
	g.GET("", func(c *gin.Context) {
		var out []QuotaView
		for _, p := range limiters.Providers() {
			l, _ := limiters.Get(p)
			exceeded, err := l.Exceeded(c.Request.Context())
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			out = append(out, QuotaView{Provider: p, Exceeded: exceeded})
		}
		c.JSON(http.StatusOK, gin.H{"providers": out})
	})

	g.DELETE("/:provider", func(c *gin.Context) {
		p := c.Param("provider")
		l, ok := limiters.Get(p)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider " + p})
			return
		}
		if err := l.Reset(c.Request.Context()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reset quota: " + err.Error()})
			return
		}
		log.Info("quota reset", zap.String("provider", p))
		c.JSON(http.StatusOK, gin.H{"provider": p, "status": "reset"})
	})
}
