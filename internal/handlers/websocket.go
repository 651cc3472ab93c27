package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/broadcast"
	"github.com/hu-haibin/ComfyUI-ModelFinder/internal/common"
	"github.com/ternarybob/arbor"
)

// WebSocketHandler registers each /ws client as a receive-only hub subscriber
type WebSocketHandler struct {
	hub          *broadcast.Hub
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	logger       arbor.ILogger
}

func NewWebSocketHandler(hub *broadcast.Hub, config *common.WebSocketConfig, logger arbor.ILogger) *WebSocketHandler {
	return &WebSocketHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true // Local tool; the UI may be served from another port
			},
		},
		writeTimeout: common.ParseDurationOr(config.WriteTimeout, 10*time.Second),
		logger:       logger,
	}
}

// HandleWebSocket upgrades the connection and blocks until the client goes away.
// Inbound frames are ignored.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	sub := broadcast.NewWebSocketSubscriber(conn, h.writeTimeout)
	subscription, err := h.hub.Connect(sub)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket subscriber rejected")
		sub.Close()
		return
	}

	defer func() {
		h.hub.Disconnect(subscription)
		sub.Close()
	}()

	if err := sub.DiscardInbound(); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
			h.logger.Warn().Err(err).Str("subscriber_id", subscription.ID).Msg("WebSocket error")
		}
	}
}
