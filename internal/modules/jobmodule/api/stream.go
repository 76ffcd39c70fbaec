package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	joberrors "github.com/mantonx/videoclipper/internal/modules/jobmodule/errors"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/service"
	"github.com/mantonx/videoclipper/internal/modules/jobmodule/types"
)

const streamWriteTimeout = 10 * time.Second

// StreamMessage is one push on the job stream.
type StreamMessage struct {
	Type      string        `json:"type"`
	Jobs      []types.Job   `json:"jobs"`
	Stats     service.Stats `json:"stats"`
	Timestamp int64         `json:"timestamp"`
}

// StreamJobs handles GET /api/jobs/stream
//
// Upgrades to a websocket and pushes the full job list every stream
// interval until the client goes away. Each push is built from registry
// snapshots, so clients see the same monotonic progress as pollers.
func (h *APIHandler) StreamJobs(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	clientGone := make(chan struct{})
	joberrors.SafeGo(h.reporter, h.logger, "job_stream_reader", func() error {
		defer close(clientGone)
		for {
			// Clients only send keep-alives; a read error means disconnect.
			if _, _, err := conn.ReadMessage(); err != nil {
				return nil
			}
		}
	})

	send := func() error {
		msg := StreamMessage{
			Type:      "jobs",
			Jobs:      h.service.Jobs(),
			Stats:     h.service.Stats(c.Request.Context()),
			Timestamp: time.Now().Unix(),
		}
		conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		return conn.WriteJSON(msg)
	}

	if err := send(); err != nil {
		return
	}

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-clientGone:
			return
		case <-h.closing:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		case <-ticker.C:
			if err := send(); err != nil {
				h.logger.Debug("job stream closed", "error", err)
				return
			}
		}
	}
}
