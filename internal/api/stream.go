package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mr1hm/safety-concierge/internal/emergency"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
)

type streamFrame struct {
	Type         string                  `json:"type"`
	Snapshot     *snapshotResponse       `json:"snapshot,omitempty"`
	Notification *emergency.Notification `json:"notification,omitempty"`
}

// stream sends the current snapshot, then every notification until the
// client goes away or the broadcaster closes.
func (h *Handler) stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	id, ch := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)

	slog.Info("stream client connected", "subscriber_id", id, "subscribers", h.broadcaster.SubscriberCount())
	defer slog.Info("stream client disconnected", "subscriber_id", id)

	// Reads only detect the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snap := toSnapshotResponse(h.machine.Snapshot())
	if err := writeFrame(conn, streamFrame{Type: "snapshot", Snapshot: &snap}); err != nil {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case n, ok := <-ch:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				return
			}
			if err := writeFrame(conn, streamFrame{Type: "notification", Notification: &n}); err != nil {
				slog.Debug("stream write failed", "subscriber_id", id, "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, f streamFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}
