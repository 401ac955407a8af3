package server

import (
	"io"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/happijack/backend/internal/lottery"
	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

type heartbeatPayload struct {
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *httpHandler) handleGameStream(c *gin.Context) {
	gameID, ok := uintParam(c, "gameID")
	if !ok {
		return
	}
	h.streamTopic(c, lottery.GameTopic(gameID))
}

func (h *httpHandler) handleAllEventsStream(c *gin.Context) {
	h.streamTopic(c, RealtimeTopicAll)
}

// streamTopic relays committed events of one topic as server-sent events
// until the client goes away.
func (h *httpHandler) streamTopic(c *gin.Context, topic string) {
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, topic)
	defer cleanup()

	c.Header("Content-Type", sse.ContentType)
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			c.Render(-1, sse.Event{
				Id:    message.Event.ID,
				Event: message.Event.Name,
				Data:  message.Event,
			})
			return true
		case now := <-ticker.C:
			c.Render(-1, sse.Event{
				Event: realtimeEventHeartbeat,
				Data:  heartbeatPayload{Source: realtimeSourceBackend, Timestamp: now.UTC()},
			})
			return true
		}
	})
}
