package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/syllabridge-backend/internal/http/response"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
	"github.com/yungbote/syllabridge-backend/internal/realtime/bus"
)

const keepAliveEvery = 25 * time.Second

type EventsHandler struct {
	log *logger.Logger
	bus bus.Bus
}

func NewEventsHandler(log *logger.Logger, b bus.Bus) *EventsHandler {
	return &EventsHandler{log: log.With("handler", "EventsHandler"), bus: b}
}

// GET /api/ingest/events streams the requester's job events as SSE.
func (h *EventsHandler) Stream(c *gin.Context) {
	rq, ok := requester(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	events := make(chan bus.Event, 32)
	err := h.bus.Subscribe(ctx, rq.OwnerID, func(ev bus.Event) {
		select {
		case events <- ev:
		default:
			h.log.Warn("sse client slow, dropping event", "job_id", ev.JobID, "owner_id", rq.OwnerID)
		}
	})
	if err != nil {
		h.log.Warn("subscribe failed", "error", err, "owner_id", rq.OwnerID)
		response.RespondError(c, http.StatusServiceUnavailable, "events_unavailable", err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	ticker := time.NewTicker(keepAliveEvery)
	defer ticker.Stop()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev := <-events:
			c.SSEvent("job", ev)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}
