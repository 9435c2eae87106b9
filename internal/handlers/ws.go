package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/skyvault/backend/internal/services"
	"github.com/skyvault/backend/pkg/logger"
	"github.com/skyvault/backend/pkg/utils"
)

type WSHandler struct {
	Presence *services.PresenceRegistry
}

func NewWSHandler(presence *services.PresenceRegistry) *WSHandler {
	return &WSHandler{Presence: presence}
}

// Upgrade rejects plain HTTP requests before the websocket handshake.
func (h *WSHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return utils.Error(c, fiber.StatusUpgradeRequired, "websocket upgrade required")
}

type wsClientMessage struct {
	Event  string `json:"event"`
	UserID string `json:"userID"`
}

// Serve reads client messages until the connection drops. The only inbound
// event is registerUser, which binds the connection to a user id in the
// presence registry; everything else is ignored. The registry entry is
// removed when this connection closes, unless the user already re-registered
// elsewhere.
func (h *WSHandler) Serve() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		defer func() {
			h.Presence.UnregisterConn(conn)
			conn.Close()
		}()

		for {
			var msg wsClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}

			if msg.Event != "registerUser" {
				continue
			}

			userID, err := parseUUID(msg.UserID)
			if err != nil {
				logger.Warn("ws_register_invalid_user", map[string]interface{}{
					"user_id": msg.UserID,
				})
				continue
			}

			h.Presence.Register(userID, conn)
		}
	})
}
