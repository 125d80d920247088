package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"feishu-digest-bot/internal/events"
)

// WebhookEvent receives platform event callbacks. It answers the
// url_verification handshake and hands message-receive events to the event
// handler; everything else is acknowledged and ignored. Events are handled
// to completion before the response is written, one at a time.
func (h *Handlers) WebhookEvent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	cb, err := events.ParseCallback(body)
	if err != nil {
		logrus.Errorf("Failed to parse event callback: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if cb.IsChallenge() {
		c.JSON(http.StatusOK, gin.H{"challenge": cb.Challenge})
		return
	}

	if cb.Header.EventType != events.MessageReceiveEventType {
		logrus.Infof("Ignoring non-message event: %s", cb.Header.EventType)
		c.Status(http.StatusOK)
		return
	}

	ev, err := cb.InboundEvent()
	if err != nil {
		logrus.Errorf("Invalid message event: %v", err)
		c.Status(http.StatusOK)
		return
	}

	h.events.Handle(c.Request.Context(), ev)
	c.Status(http.StatusOK)
}
