package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StreamHandler handles GET /ws: it upgrades the connection and relays
// order_status_changed and balance_updated notifications as JSON frames.
// Delivery is fire-and-forget; a client that stops reading is disconnected
// rather than allowed to stall the stream.
func (h *GinHandlers) StreamHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.logger.Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		sub, cancel := h.notifier.Subscribe(wsSendBuffer)
		defer cancel()
		defer conn.Close()

		h.logger.Info().Str("remote", conn.RemoteAddr().String()).Msg("websocket client connected")

		// Read pump: drain control frames and detect the client closing.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()

		for {
			select {
			case note, ok := <-sub:
				if !ok {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteJSON(note); err != nil {
					h.logger.Debug().Err(err).Msg("websocket write failed, dropping client")
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-done:
				h.logger.Info().Msg("websocket client disconnected")
				return
			}
		}
	}
}
