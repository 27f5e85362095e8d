package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InboundMessage is one message arriving from the chat channel adapter.
// It is consumed per request and never persisted by this core.
type InboundMessage struct {
	// MessageID is the channel-assigned id, used for webhook retry dedup.
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	SpaceID   string `json:"space_id"`
	Text      string `json:"text"`
	// Language is the ISO 639-3 code detected from Text ("" when unknown).
	Language      string   `json:"language,omitempty"`
	AttachmentIDs []string `json:"attachment_ids,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}

// HasAttachment reports whether the message carries at least one attachment.
func (m *InboundMessage) HasAttachment() bool {
	return len(m.AttachmentIDs) > 0
}

// OutboundType tags a message the assistant sent to the user.
type OutboundType string

const (
	OutboundReply    OutboundType = "reply"
	OutboundReminder OutboundType = "reminder"
	OutboundBriefing OutboundType = "briefing"
	OutboundNudge    OutboundType = "nudge"
)

// OutboundMessage is a record of a message sent to the user, kept for a short
// window so recent context can be scanned during entity resolution.
type OutboundMessage struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	MessageID string             `bson:"messageId" json:"message_id"`
	UserID    string             `bson:"userId" json:"user_id"`
	Type      OutboundType       `bson:"type" json:"type"`
	Content   string             `bson:"content" json:"content"`
	SentAt    time.Time          `bson:"sentAt" json:"sent_at"`
}

// Reply is the payload this core hands to the channel adapter. The core never
// touches transport; it only produces text.
type Reply struct {
	Text string `json:"text"`
	// DisplayedList carries the numbered list backing Text, when Text
	// renders one, so the session can remember it for ordinal references.
	DisplayedList []DisplayedListItem `json:"displayed_list,omitempty"`
}
