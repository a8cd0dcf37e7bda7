package api

import (
	"github.com/gin-gonic/gin"

	"github.com/sigilum/chainrisk/internal/api/handlers"
	"github.com/sigilum/chainrisk/internal/database"
	"github.com/sigilum/chainrisk/internal/services"
)

func SetupRoutes(router *gin.Engine, db *database.PostgresDB, redis *database.RedisClient, svc *services.AnalysisService) {
	healthHandler := handlers.NewHealthHandler(db, redis, svc)
	analysisHandler := handlers.NewAnalysisHandler(svc)

	// Health check endpoint
	router.GET("/health", healthHandler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.POST("/analyze", analysisHandler.Analyze)

		modelGroup := v1.Group("/models")
		{
			modelGroup.POST("/:chain/chunks", analysisHandler.UploadModelChunk)
		}

		providers := v1.Group("/providers")
		{
			providers.GET("/health", analysisHandler.ProviderHealth)
		}
	}
}
