package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/crewboard/crewboard-backend/internal/api/http/respond"
	"github.com/crewboard/crewboard-backend/internal/apperr"
	"github.com/crewboard/crewboard-backend/internal/auth"
	"github.com/crewboard/crewboard-backend/internal/realtime"
)

// StreamProjectEvents streams a project's events using Server-Sent Events
// (SSE). The connection joins the project group for the life of the stream.
func (h *Handler) StreamProjectEvents(c *gin.Context) {
	projectID := c.Param("id")
	p := auth.Current(c)
	if p == nil {
		respond.Error(c, apperr.Unauthorized("user not authenticated"))
		return
	}

	if err := h.authorizeJoin(c.Request.Context(), p, projectID); err != nil {
		respond.Error(c, err)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		respond.Error(c, apperr.Internal("stream events", fmt.Errorf("streaming unsupported")))
		return
	}

	sub := h.hub.Register(p.ID)
	defer h.hub.Unregister(sub.ID)
	if err := h.join(c.Request.Context(), p, sub.ID, projectID); err != nil {
		respond.Error(c, err)
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // nginx: disable buffering
	c.Status(http.StatusOK)

	writeEvent(c, controlEnvelope(EventJoined, projectID))
	flusher.Flush()

	ctx := c.Request.Context()

	// Set up keep-alive pings
	ticker := time.NewTicker(h.opt.KeepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Client disconnected
			return

		case <-ticker.C:
			fmt.Fprint(c.Writer, ": keep-alive\n\n")
			flusher.Flush()

		case env, ok := <-sub.C():
			if !ok {
				return
			}
			writeEvent(c, env)
			flusher.Flush()

			if env.Event == realtime.EventRemovedFromProject && env.ProjectID == projectID {
				return
			}
		}
	}
}

func writeEvent(c *gin.Context, env realtime.Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		return
	}
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", env.Event, payload)
}
