package api

import (
	"context"

	"pcaview/ratelimit"
	"pcaview/scheduler"
	"pcaview/types"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Publisher hands an event to the asynchronous listeners.
type Publisher interface {
	Publish(ctx context.Context, ev types.Event) error
}

// Deps are the collaborators the HTTP surface drives.
type Deps struct {
	Scheduler *scheduler.Scheduler
	Events    Publisher
	Limiters  *ratelimit.Set
	Logger    *zap.Logger
}

// NewRouter constructs a Gin engine with registered routes.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	r := gin.New()
	// Minimal middleware: recovery; request logging is left to the handlers
	r.Use(gin.Recovery())

	RegisterHealthRoutes(r)
	RegisterScopeRoutes(r, d.Scheduler, d.Logger)
	RegisterTagRoutes(r, d.Events, d.Logger)
	RegisterQuotaRoutes(r, d.Limiters, d.Logger)
	return r
}
