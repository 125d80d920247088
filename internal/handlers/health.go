package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"feishu-digest-bot/internal/models"
)

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := models.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "disabled",
		Metrics:   make(map[string]string),
	}

	if h.db != nil {
		response.Database = "ok"
		if err := h.db.Raw("SELECT 1").Error; err != nil {
			response.Status = "error"
			response.Database = "error"
			logrus.Errorf("Database health check failed: %v", err)
		}
	}

	if h.scheduler.IsRunning() {
		response.Metrics["scheduler"] = "running"
		response.Metrics["next_run"] = h.scheduler.GetNextRun().Format(time.RFC3339)
		response.Metrics["last_run"] = h.scheduler.GetLastRun().Format(time.RFC3339)
	} else {
		response.Metrics["scheduler"] = "stopped"
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}
