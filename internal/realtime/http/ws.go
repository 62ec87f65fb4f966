package http

import (
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/crewboard/crewboard-backend/internal/api/http/respond"
	"github.com/crewboard/crewboard-backend/internal/apperr"
	"github.com/crewboard/crewboard-backend/internal/auth/middleware"
	"github.com/crewboard/crewboard-backend/internal/logging"
	"github.com/crewboard/crewboard-backend/internal/realtime"
)

// Frame types a client may send.
const (
	FrameJoinProject  = "joinProject"
	FrameLeaveProject = "leaveProject"
)

// Control events sent only to the requesting connection.
const (
	EventJoined realtime.EventName = "joined"
	EventLeft   realtime.EventName = "left"
	EventError  realtime.EventName = "error"
)

const maxFrameBytes = 4096

type clientFrame struct {
	Type      string `json:"type"`
	ProjectID string `json:"projectId"`
}

// ServeWS upgrades the request after verifying the bearer credential, then
// relays the subscriber's events until either side closes.
func (h *Handler) ServeWS(c *gin.Context) {
	ctx := c.Request.Context()
	p, err := h.authn.Authenticate(ctx, middleware.ExtractToken(c))
	if err != nil {
		respond.Error(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.FromContext(ctx).WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := h.hub.Register(p.ID)
	log := logging.FromContext(ctx).WithFields(logrus.Fields{"conn_id": sub.ID, "principal_id": p.ID})
	log.Debug("websocket connected")

	control := make(chan realtime.Envelope, 8)
	done := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(conn, sub, control, done)
	}()

	limiter := rate.NewLimiter(h.opt.FrameRate, h.opt.FrameBurst)
	conn.SetReadLimit(maxFrameBytes)
	readDeadline := 2 * h.opt.KeepAlive
	_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Debug("websocket read failed")
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(readDeadline))

		if !limiter.Allow() {
			sendControl(control, errorEnvelope(frame.ProjectID, apperr.ResourceExhausted("too many messages")))
			continue
		}

		switch frame.Type {
		case FrameJoinProject:
			if err := h.authorizeJoin(ctx, p, frame.ProjectID); err != nil {
				sendControl(control, errorEnvelope(frame.ProjectID, err))
				continue
			}
			if err := h.join(ctx, p, sub.ID, frame.ProjectID); err != nil {
				sendControl(control, errorEnvelope(frame.ProjectID, err))
				continue
			}
			sendControl(control, controlEnvelope(EventJoined, frame.ProjectID))
		case FrameLeaveProject:
			h.hub.Leave(sub.ID, frame.ProjectID)
			sendControl(control, controlEnvelope(EventLeft, frame.ProjectID))
		default:
			sendControl(control, errorEnvelope(frame.ProjectID, apperr.Validation("unknown message type %q", frame.Type)))
		}
	}

	close(done)
	<-writerDone
	h.hub.Unregister(sub.ID)
	log.Debug("websocket disconnected")
}

// writeLoop is the only goroutine that writes to conn.
func (h *Handler) writeLoop(conn *websocket.Conn, sub *realtime.Subscriber, control <-chan realtime.Envelope, done <-chan struct{}) {
	ping := time.NewTicker(h.opt.KeepAlive)
	defer ping.Stop()

	write := func(env realtime.Envelope) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(h.opt.WriteTimeout))
		return conn.WriteJSON(env) == nil
	}

	for {
		select {
		case <-done:
			return
		case env, ok := <-sub.C():
			if !ok || !write(env) {
				_ = conn.Close()
				return
			}
		case env := <-control:
			if !write(env) {
				_ = conn.Close()
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(h.opt.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = conn.Close()
				return
			}
		}
	}
}

func sendControl(ch chan<- realtime.Envelope, env realtime.Envelope) {
	select {
	case ch <- env:
	default:
	}
}

func controlEnvelope(name realtime.EventName, projectID string) realtime.Envelope {
	data, _ := json.Marshal(projectID)
	return realtime.Envelope{Event: name, ProjectID: projectID, Data: data}
}

func errorEnvelope(projectID string, err error) realtime.Envelope {
	data, _ := json.Marshal(gin.H{"error": apperr.PublicMessage(err), "kind": apperr.KindOf(err)})
	return realtime.Envelope{Event: EventError, ProjectID: projectID, Data: data}
}
