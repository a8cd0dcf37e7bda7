package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sigilum/chainrisk/internal/database"
	"github.com/sigilum/chainrisk/internal/services"
)

var startTime = time.Now()

type HealthHandler struct {
	db    *database.PostgresDB
	redis *database.RedisClient
	svc   *services.AnalysisService
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Models    map[string]bool   `json:"models"`
	Uptime    string            `json:"uptime"`
}

func NewHealthHandler(db *database.PostgresDB, redis *database.RedisClient, svc *services.AnalysisService) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, svc: svc}
}

// HealthCheck reports dependency health and which chains have a loaded
// model. Degraded dependencies flip the status but keep the endpoint at 200
// so orchestrators can distinguish degraded from down.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Services:  make(map[string]string),
		Uptime:    time.Since(startTime).Round(time.Second).String(),
	}

	if h.db != nil {
		if err := h.db.HealthCheck(c.Request.Context()); err != nil {
			response.Services["database"] = "unhealthy: " + err.Error()
			response.Status = "degraded"
		} else {
			response.Services["database"] = "healthy"
		}
	} else {
		response.Services["database"] = "not configured"
	}

	if h.redis != nil {
		if err := h.redis.HealthCheck(c.Request.Context()); err != nil {
			response.Services["redis"] = "unhealthy: " + err.Error()
			response.Status = "degraded"
		} else {
			response.Services["redis"] = "healthy"
		}
	} else {
		response.Services["redis"] = "not configured"
	}

	if h.svc != nil {
		response.Models = h.svc.ModelsLoaded()
	}

	c.JSON(http.StatusOK, response)
}
