package handler

import (
	"github.com/GoPolymarket/bulkgate/internal/config"
	"github.com/GoPolymarket/bulkgate/internal/middleware"
	"github.com/GoPolymarket/bulkgate/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const verifyPath = "/v1/verify"

// NewRouter mounts the gateway routes on a fresh engine.
func NewRouter(cfg *config.Config, svc *service.BulkOrderService, idem middleware.IdempotencyStore) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// Global Middleware
	r.Use(middleware.AuditMiddleware())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "bulkgate", "chain_id": cfg.Chain.ChainID})
	})

	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	bulk := NewBulkHandler(svc)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg))
	v1.Use(middleware.RateLimitMiddleware(cfg))
	v1.Use(middleware.ReadOnlyMiddleware(cfg.Server.ReadOnly, verifyPath))
	{
		v1.POST("/batches", middleware.IdempotencyMiddleware(idem), bulk.CreateBatch)
		v1.GET("/batches/:id", bulk.GetBatch)
		v1.GET("/batches/:id/proofs/:index", bulk.GetProof)
		v1.POST("/batches/:id/signature", bulk.AttachSignature)
		v1.POST("/verify", bulk.Verify)
		v1.GET("/typehashes", bulk.TypeHashes)
		v1.GET("/typehashes/directory", bulk.Directory)
	}
	return r
}
