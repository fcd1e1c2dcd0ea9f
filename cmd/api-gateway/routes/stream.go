package routes

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/reena96/picstormai-sub001/cmd/api-gateway/middleware"
	apitypes "github.com/reena96/picstormai-sub001/cmd/api-gateway/types"
	"github.com/reena96/picstormai-sub001/internal/broadcast"
	"github.com/reena96/picstormai-sub001/internal/session"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	maxMsgSize = 4 * 1024
)

// StreamConfig tunes the push transports
type StreamConfig struct {
	HeartbeatInterval time.Duration
}

func (s StreamConfig) heartbeat() time.Duration {
	if s.HeartbeatInterval <= 0 {
		return DefaultHeartbeatInterval
	}
	return s.HeartbeatInterval
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleSessionStream pushes a session's progress as Server-Sent Events.
// The stream opens with the current snapshot and ends after SESSION_COMPLETED.
func handleSessionStream(sessions SessionServiceInterface, hub Subscriber, cfg StreamConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := currentSession(c).ID

		// subscribe before reading state so no message falls between the two
		sub := hub.Subscribe(broadcast.SessionTopic(sessionID))
		defer sub.Close()

		snap, err := sessions.GetSession(c.Request.Context(), sessionID)
		if err != nil {
			respondError(c, err)
			return
		}

		startEventStream(c)
		c.SSEvent(apitypes.SnapshotEventType, apitypes.NewSnapshotEvent(snap))
		c.Writer.Flush()

		if snap.Status.IsTerminal() {
			return
		}

		pumpEvents(c, sub, cfg.heartbeat(), func(msg broadcast.Message) bool {
			return msg.MessageType() == broadcast.TypeSessionCompleted
		})
	}
}

// handleNotificationStream pushes the caller's user-level notifications as
// Server-Sent Events until the client goes away.
func handleNotificationStream(hub Subscriber, cfg StreamConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, _ := middleware.GetUserFromContext(c)

		sub := hub.Subscribe(broadcast.UserTopic(user.ID.String()))
		defer sub.Close()

		startEventStream(c)
		fmt.Fprint(c.Writer, ": connected\n\n")
		c.Writer.Flush()

		pumpEvents(c, sub, cfg.heartbeat(), func(broadcast.Message) bool { return false })
	}
}

func startEventStream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
}

// pumpEvents forwards subscription messages until last reports true, the
// client disconnects, or the subscription is dropped.
func pumpEvents(c *gin.Context, sub *broadcast.Subscription, heartbeat time.Duration, last func(broadcast.Message) bool) {
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done():
			log.Debug().Str("topic", sub.Topic()).Msg("Event stream subscription ended")
			return
		case msg := <-sub.C():
			c.SSEvent(string(msg.MessageType()), msg)
			c.Writer.Flush()
			if last(msg) {
				return
			}
		case <-ticker.C:
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			c.Writer.Flush()
		}
	}
}

// handleSessionWebSocket pushes a session's progress over a WebSocket.
// Frames are JSON messages; the first one is the current snapshot.
func handleSessionWebSocket(sessions SessionServiceInterface, hub Subscriber, cfg StreamConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := currentSession(c).ID

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("WebSocket upgrade failed")
			return
		}
		defer conn.Close()

		sub := hub.Subscribe(broadcast.SessionTopic(sessionID))
		defer sub.Close()

		snap, err := sessions.GetSession(c.Request.Context(), sessionID)
		if err != nil {
			closeSocket(conn, websocket.CloseNormalClosure, "session not found")
			return
		}

		log.Debug().Str("session_id", sessionID).Msg("WebSocket client attached")

		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(apitypes.NewSnapshotEvent(snap)); err != nil {
			return
		}
		if snap.Status.IsTerminal() {
			closeSocket(conn, websocket.CloseNormalClosure, string(snap.Status))
			return
		}

		closed := make(chan struct{})
		go readPump(conn, closed)
		writePump(conn, sub, closed, cfg.heartbeat())
	}
}

// readPump discards client frames and keeps the read deadline fresh on pong
func readPump(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)

	conn.SetReadLimit(maxMsgSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("WebSocket read failed")
			}
			return
		}
	}
}

// writePump is the only writer on conn once the read pump is running
func writePump(conn *websocket.Conn, sub *broadcast.Subscription, closed <-chan struct{}, pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-sub.Done():
			closeSocket(conn, websocket.CloseTryAgainLater, "subscription dropped")
			return
		case msg := <-sub.C():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
			if msg.MessageType() == broadcast.TypeSessionCompleted {
				closeSocket(conn, websocket.CloseNormalClosure, string(session.StatusCompleted))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func closeSocket(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
