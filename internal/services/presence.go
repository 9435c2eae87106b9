package services

import (
	"sync"

	"github.com/google/uuid"
	"github.com/skyvault/backend/pkg/logger"
)

// PushConn is the slice of a live websocket connection the registry needs.
// *websocket.Conn satisfies it; tests inject fakes.
type PushConn interface {
	WriteJSON(v interface{}) error
}

// PushEvent is the envelope written to a recipient's live connection.
type PushEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// PresenceRegistry maps online user ids to their live push connection. It is
// process-local: entries are lost on restart and clients must re-register.
// One entry per user; a later registration (another tab, another device)
// evicts the earlier one.
type PresenceRegistry struct {
	mu    sync.Mutex
	conns map[uuid.UUID]PushConn
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{conns: make(map[uuid.UUID]PushConn)}
}

func (r *PresenceRegistry) Register(userID uuid.UUID, conn PushConn) {
	r.mu.Lock()
	r.conns[userID] = conn
	r.mu.Unlock()

	logger.Info("presence_registered", map[string]interface{}{
		"user_id": userID.String(),
	})
}

// UnregisterConn removes whatever entry currently points at conn. Called on
// transport disconnect; a no-op when the user already re-registered on a
// newer connection.
func (r *PresenceRegistry) UnregisterConn(conn PushConn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, existing := range r.conns {
		if existing == conn {
			delete(r.conns, userID)
			logger.Info("presence_unregistered", map[string]interface{}{
				"user_id": userID.String(),
			})
			return
		}
	}
}

func (r *PresenceRegistry) IsOnline(userID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[userID]
	return ok
}

// Notify pushes a fire-and-forget event to the recipient if they are online.
// Delivery is at-most-once: offline recipients are skipped silently and a
// write failure only evicts the dead connection. Returns whether a delivery
// was attempted.
func (r *PresenceRegistry) Notify(userID uuid.UUID, event string, payload interface{}) bool {
	r.mu.Lock()
	conn, ok := r.conns[userID]
	r.mu.Unlock()

	if !ok {
		logger.Warn("notification_dropped_offline", map[string]interface{}{
			"user_id": userID.String(),
			"event":   event,
		})
		return false
	}

	if err := conn.WriteJSON(PushEvent{Event: event, Data: payload}); err != nil {
		logger.Error("notification_push_failed", err, map[string]interface{}{
			"user_id": userID.String(),
			"event":   event,
		})
		r.UnregisterConn(conn)
		return false
	}

	logger.InfoWithUser(userID.String(), "notification_pushed", map[string]interface{}{
		"event": event,
	})
	return true
}
