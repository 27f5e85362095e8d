package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tasknest/internal/services"
)

// SessionDebugHandler exposes the conversation session of a user for
// operational debugging. Mounted behind service auth only.
type SessionDebugHandler struct {
	sessions *services.SessionStore
}

// NewSessionDebugHandler creates a session debug handler.
func NewSessionDebugHandler(sessions *services.SessionStore) *SessionDebugHandler {
	return &SessionDebugHandler{sessions: sessions}
}

// Handle returns the dialogue state for a user.
// GET /api/debug/sessions/:userId
func (h *SessionDebugHandler) Handle(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "userId is required",
		})
	}

	session, err := h.sessions.GetOrCreate(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load session",
		})
	}

	return c.JSON(fiber.Map{
		"user_id":        session.UserID,
		"state":          session.State,
		"pending_action": session.PendingAction,
		"displayed_list": session.LastDisplayedList,
		"last_entity":    session.LastReferencedEntity,
		"history_turns":  len(session.History),
		"updated_at":     session.UpdatedAt,
	})
}
