package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"

	"github.com/mknmagx/crmstack/api/handlers"
	"github.com/mknmagx/crmstack/api/middleware"
	"github.com/mknmagx/crmstack/internal/repository"
	"github.com/mknmagx/crmstack/internal/tracing"
	"github.com/mknmagx/crmstack/services"
)

// RegisterRoutes sets up all API endpoints
func RegisterRoutes(ctx context.Context, r *gin.Engine, s *services.Services, repos *repository.Repositories, apikey string) {
	if s == nil {
		panic("Services cannot be nil")
	}
	if repos == nil {
		panic("Repositories cannot be nil")
	}

	r.Use(gin.Recovery())
	r.Use(tracing.RecoveryWithJaeger(opentracing.GlobalTracer()))

	apiHandlers := handlers.InitHandlers(s, repos)

	// Health check and status endpoints (no custom context needed)
	r.GET("/health", handlers.HealthCheck)
	r.GET("/status", handlers.Status(repos.SyncStateRepository))

	apiKeyMiddleware := middleware.APIKeyMiddleware(middleware.APIKeyConfig{
		HeaderName:  "X-CRMSTACK-API-KEY",
		ValidAPIKey: apikey,
	})

	// API group with version and custom context
	api := r.Group("/v1")
	api.Use(apiKeyMiddleware)
	api.Use(middleware.OperatorIdMiddleware())
	api.Use(middleware.CustomContextMiddleware("crmstack"))
	api.Use(middleware.TracingMiddleware())
	{
		sync := api.Group("/sync")
		{
			sync.POST("", apiHandlers.Sync.Trigger())
			sync.GET("/status", apiHandlers.Sync.Status())
			sync.GET("/lock", apiHandlers.Sync.Lock())
		}

		api.GET("/inbox", apiHandlers.Inbox.List())

		conversations := api.Group("/conversations")
		{
			conversations.GET("/:id", apiHandlers.Conversations.Get())
			conversations.PATCH("/:id", apiHandlers.Conversations.Update())
			conversations.GET("/:id/messages", apiHandlers.Conversations.Messages())
		}

		emails := api.Group("/emails")
		{
			emails.POST("", apiHandlers.Emails.Send())
			emails.POST("/:id/reply", apiHandlers.Emails.Reply())
		}

		webhooks := api.Group("/webhooks")
		{
			webhooks.POST("/whatsapp", apiHandlers.Webhooks.Whatsapp())
		}

		legacy := api.Group("/legacy")
		{
			legacy.POST("/import", apiHandlers.Legacy.Import())
		}
	}
}
