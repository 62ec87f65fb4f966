package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crewboard/crewboard-backend/internal/realtime"
)

const (
	frameJoinProject  = "joinProject"
	frameLeaveProject = "leaveProject"

	eventJoined realtime.EventName = "joined"
	eventError  realtime.EventName = "error"
)

// Stream is a websocket subscription to the push channel.
type Stream struct {
	conn *websocket.Conn
}

type frame struct {
	Type      string `json:"type"`
	ProjectID string `json:"projectId"`
}

// Dial opens the push channel at baseURL (http or https) with the bearer
// token.
func Dial(ctx context.Context, baseURL, token string) (*Stream, error) {
	wsURL := strings.TrimRight(baseURL, "/") + "/ws"
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", wsURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}
	return &Stream{conn: conn}, nil
}

// Join subscribes to a project and waits for the server's acknowledgement.
// Events that arrive before the ack are returned so the caller can apply
// them.
func (s *Stream) Join(ctx context.Context, projectID string) ([]realtime.Envelope, error) {
	if err := s.conn.WriteJSON(frame{Type: frameJoinProject, ProjectID: projectID}); err != nil {
		return nil, fmt.Errorf("send join: %w", err)
	}

	var early []realtime.Envelope
	for {
		env, err := s.Next(ctx)
		if err != nil {
			return early, err
		}
		switch env.Event {
		case eventJoined:
			return early, nil
		case eventError:
			return early, fmt.Errorf("join %s: %s", projectID, string(env.Data))
		default:
			early = append(early, env)
		}
	}
}

func (s *Stream) Leave(projectID string) error {
	return s.conn.WriteJSON(frame{Type: frameLeaveProject, ProjectID: projectID})
}

// Next blocks for the next envelope or until ctx is done.
func (s *Stream) Next(ctx context.Context) (realtime.Envelope, error) {
	var env realtime.Envelope
	if err := ctx.Err(); err != nil {
		return env, err
	}
	deadline, _ := ctx.Deadline()
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return env, err
	}
	stop := context.AfterFunc(ctx, func() { _ = s.conn.SetReadDeadline(time.Now()) })
	defer stop()

	if err := s.conn.ReadJSON(&env); err != nil {
		if ctx.Err() != nil {
			return env, ctx.Err()
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return env, ErrStreamClosed
		}
		return env, err
	}
	return env, nil
}

var ErrStreamClosed = errors.New("stream closed by server")

func (s *Stream) Close() error {
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return s.conn.Close()
}
