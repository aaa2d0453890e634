package handlers

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-ingest/internal/service/notify"
	"github.com/feichai0017/document-ingest/pkg/logger"
)

const keepAliveInterval = 15 * time.Second

type EventHandler struct {
	hub    *notify.Hub
	logger logger.Logger
}

func NewEventHandler(hub *notify.Hub, log logger.Logger) *EventHandler {
	return &EventHandler{hub: hub, logger: log.Named("events")}
}

// Stream sends lifecycle events as Server-Sent Events until the client
// disconnects.
func (h *EventHandler) Stream(c *gin.Context) {
	events, cancel := h.hub.Subscribe()
	defer cancel()

	log := logger.FromContext(c.Request.Context(), h.logger)
	log.Debug("Event subscriber connected", logger.Int("subscribers", h.hub.Subscribers()))

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case e, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(e.Type), e)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now()})
			return true
		}
	})
	log.Debug("Event subscriber disconnected")
}
