// Package router assembles the gin engine and routes.
package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/emissor/backend/internal/infrastructure/auth"
	"github.com/emissor/backend/internal/infrastructure/config"
	"github.com/emissor/backend/internal/interfaces/http/handler"
	"github.com/emissor/backend/internal/interfaces/http/middleware"
)

// Dependencies are the handlers and services the router wires up
type Dependencies struct {
	Config     *config.Config
	Logger     *zap.Logger
	JWTService *auth.JWTService
	Documents  *handler.FiscalDocumentHandler
	Health     *handler.HealthHandler
}

// New builds the gin engine with all middleware and routes
func New(deps Dependencies) *gin.Engine {
	if deps.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	_ = engine.SetTrustedProxies(deps.Config.HTTP.TrustedProxies)

	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.RequestLogger(deps.Logger))
	engine.Use(middleware.BodyLimit(deps.Config.HTTP.MaxBodySize))

	engine.GET("/health", deps.Health.Health)
	engine.GET("/ready", deps.Health.Ready)

	api := engine.Group("/api/v1")
	api.Use(middleware.Auth(deps.JWTService))
	{
		docs := api.Group("/fiscal/documents")
		docs.POST("", deps.Documents.Create)
		docs.GET("", deps.Documents.List)
		docs.GET("/:id", deps.Documents.Get)
		docs.PUT("/:id", deps.Documents.Update)
		docs.POST("/:id/emit", deps.Documents.Emit)
		docs.POST("/:id/cancel", deps.Documents.Cancel)
		docs.POST("/:id/disagreement", deps.Documents.Disagreement)
		docs.POST("/:id/reconcile", deps.Documents.Reconcile)
		docs.GET("/:id/events", deps.Documents.Events)

		api.GET("/fiscal/access-keys/:key", deps.Documents.VerifyAccessKey)
	}

	return engine
}
