package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"llmrace/internal/logger"
)

// DefaultKeepAlive is the ping interval of race streams.
const DefaultKeepAlive = 30 * time.Second

// StreamHandler serves race updates over SSE and WebSocket.
type StreamHandler struct {
	races     *RaceManager
	log       *logger.Logger
	keepAlive time.Duration
}

// NewStreamHandler creates a stream handler.
func NewStreamHandler(races *RaceManager, log *logger.Logger) *StreamHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &StreamHandler{races: races, log: log, keepAlive: DefaultKeepAlive}
}

// pump sends a snapshot, then every update in order, then a done frame
// once the race settles. It returns when ctx ends or send fails.
func (h *StreamHandler) pump(ctx context.Context, entry *RaceEntry, sub *Subscription, send func(*StreamMessage) error) error {
	if err := send(NewSnapshotMessage(entry.ID, entry.Snapshot())); err != nil {
		return err
	}

	flush := func() error {
		for _, u := range sub.Drain() {
			if err := send(NewUpdateMessage(entry.ID, u)); err != nil {
				return err
			}
		}
		return nil
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := send(NewPingMessage()); err != nil {
				return err
			}
		case <-sub.Ready():
			if err := flush(); err != nil {
				return err
			}
		case <-entry.Done():
			if err := flush(); err != nil {
				return err
			}
			return send(NewDoneMessage(entry.ID, entry.Snapshot()))
		}
	}
}

// StreamRace streams race updates via SSE
func (h *StreamHandler) StreamRace(c *gin.Context) {
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

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	send := func(m *StreamMessage) error {
		frame, err := m.ToSSE()
		if err != nil {
			return err
		}
		if _, err := c.Writer.Write(frame); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}

	err = h.pump(c.Request.Context(), entry, sub, send)
	if err != nil && !errors.Is(err, context.Canceled) {
		h.log.WarnWithContext(&logger.LogContext{RaceID: raceID, Operation: "sse"}, "Stream ended: %v", err)
		return
	}
	h.log.DebugWithContext(&logger.LogContext{RaceID: raceID, Operation: "sse"}, "SSE connection closed")
}
