package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"llmrace/internal/logger"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origins are enforced by the CORS middleware configuration.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// RaceSocket streams race updates over a WebSocket. A client frame
// {"type":"cancel"} resets the race.
func (h *StreamHandler) RaceSocket(c *gin.Context) {
	raceID := c.Param("raceId")

	entry, sub, err := h.races.Subscribe(raceID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Not Found",
			Message: err.Error(),
			Code:    http.StatusNotFound,
		})
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WarnWithContext(&logger.LogContext{RaceID: raceID, Operation: "ws"}, "Upgrade failed: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	var writeMu sync.Mutex
	send := func(m *StreamMessage) error {
		data, err := m.ToJSON()
		if err != nil {
			return err
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	// Reader: a closed connection ends the stream.
	go func() {
		defer cancel()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var msg ClientMessage
			if json.Unmarshal(data, &msg) != nil {
				continue
			}
			if msg.Type == MessageTypeCancel {
				if _, err := h.races.Cancel(raceID); err != nil {
					_ = send(&StreamMessage{Type: MessageTypeError, RaceID: raceID, Timestamp: time.Now(), Error: err.Error()})
				}
			}
		}
	}()

	if err := h.pump(ctx, entry, sub, send); err != nil && ctx.Err() == nil {
		h.log.WarnWithContext(&logger.LogContext{RaceID: raceID, Operation: "ws"}, "Stream ended: %v", err)
		return
	}

	writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "race settled"),
		time.Now().Add(time.Second))
	writeMu.Unlock()
}
