package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ListDeliveries returns recent reply and digest delivery attempts.
func (h *Handlers) ListDeliveries(c *gin.Context) {
	if h.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "delivery log database is disabled"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	kind := c.Query("kind")

	logs, err := h.repo.RecentDeliveries(kind, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deliveries": logs, "count": len(logs)})
}
