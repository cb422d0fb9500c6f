// Package http is the HTTP transport (Gin): wallet command/query
// endpoints plus an outbox observability endpoint. The command endpoints
// go through the reliability core's command bus; the balance and history
// queries read through wallet.Service.
package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/richardliu001/reliability-core/internal/config"
	"github.com/richardliu001/reliability-core/internal/outbox"
	"github.com/richardliu001/reliability-core/internal/pipeline"
	"github.com/richardliu001/reliability-core/internal/wallet"
)

// Dependencies collects everything the router's handlers need.
type Dependencies struct {
	Bus          *pipeline.CommandBus
	WalletSvc    *wallet.Service
	OutboxStore  *outbox.Store
	RateLimit    config.RateLimitConfig
	Log          *zap.SugaredLogger
	BlogID       int64
}

// NewRouter builds the Gin engine, grounded on the teacher's NewRouter.
func NewRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(CorrelationMiddleware())
	r.Use(LoggingMiddleware(deps.Log))
	r.Use(RateLimitMiddleware(deps.RateLimit.RPS, deps.RateLimit.Burst))
	RegisterHandlers(r, deps)
	return r
}
