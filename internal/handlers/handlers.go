package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"feishu-digest-bot/internal/events"
	"feishu-digest-bot/internal/repository"
	"feishu-digest-bot/internal/scheduler"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	db        *gorm.DB
	repo      *repository.Repository
	events    *events.Handler
	scheduler *scheduler.Scheduler
}

// NewHandlers creates new HTTP handlers. db and repo may be nil when the
// delivery log database is disabled.
func NewHandlers(db *gorm.DB, repo *repository.Repository, ev *events.Handler, s *scheduler.Scheduler) *Handlers {
	return &Handlers{db: db, repo: repo, events: ev, scheduler: s}
}

// SetupRoutes registers all routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.POST("/webhook/event", h.WebhookEvent)
	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		api.GET("/deliveries", h.ListDeliveries)
		api.GET("/scheduler/status", h.GetSchedulerStatus)
		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.POST("/scheduler/run", h.RunOnce)
	}
}
