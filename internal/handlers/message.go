package handlers

import (
	"time"

	"github.com/RadhiFadlillah/whatlanggo"
	"github.com/gofiber/fiber/v2"

	"tasknest/internal/logging"
	"tasknest/internal/models"
	"tasknest/internal/services"
)

// MessageHandler receives inbound chat messages from the channel adapter.
type MessageHandler struct {
	router *services.IntentRouter
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(router *services.IntentRouter) *MessageHandler {
	return &MessageHandler{router: router}
}

type inboundPayload struct {
	MessageID     string   `json:"message_id"`
	UserID        string   `json:"user_id"`
	SpaceID       string   `json:"space_id"`
	Text          string   `json:"text"`
	AttachmentIDs []string `json:"attachment_ids"`
}

// Handle processes one inbound message and returns the reply text.
// POST /api/messages
func (h *MessageHandler) Handle(c *fiber.Ctx) error {
	var payload inboundPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid payload",
		})
	}

	if payload.UserID == "" || payload.SpaceID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id and space_id are required",
		})
	}
	if payload.Text == "" && len(payload.AttachmentIDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message has no text and no attachments",
		})
	}

	msg := &models.InboundMessage{
		MessageID:     payload.MessageID,
		UserID:        payload.UserID,
		SpaceID:       payload.SpaceID,
		Text:          payload.Text,
		AttachmentIDs: payload.AttachmentIDs,
		Language:      detectLanguage(payload.Text),
		ReceivedAt:    time.Now(),
	}

	reqLog := logging.WithRequest(payload.MessageID, payload.UserID)

	reply, err := h.router.HandleMessage(c.Context(), msg)
	if err != nil {
		reqLog.Error("failed to handle inbound message", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process message",
		})
	}

	// A duplicate webhook delivery: acknowledge so the channel stops
	// retrying, but send nothing.
	if reply == nil {
		return c.JSON(fiber.Map{"duplicate": true})
	}

	response := fiber.Map{"reply": reply.Text}
	if len(reply.DisplayedList) > 0 {
		response["displayed_list"] = reply.DisplayedList
	}
	return c.JSON(response)
}

// detectLanguage returns the ISO 639-3 code of the message text, or "" when
// detection is unreliable. Classification itself is language-agnostic; the
// code only travels as metadata.
func detectLanguage(text string) string {
	if len(text) < 4 {
		return ""
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6393()
}
