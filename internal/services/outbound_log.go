package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tasknest/internal/database"
	"tasknest/internal/models"
)

// OutboundWindow bounds how far back the entity resolver may scan the
// outbound log for embedded task references.
const OutboundWindow = 60 * time.Minute

// OutboundLog records messages the assistant sent, so recent outbound
// context can be scanned during entity resolution.
type OutboundLog struct {
	collection *mongo.Collection
}

// NewOutboundLog creates the outbound message log.
func NewOutboundLog(mongodb *database.MongoDB) *OutboundLog {
	return &OutboundLog{collection: mongodb.Collection(database.CollectionOutbound)}
}

// Append records a sent message.
func (l *OutboundLog) Append(ctx context.Context, userID string, msgType models.OutboundType, content string) error {
	msg := models.OutboundMessage{
		MessageID: uuid.New().String(),
		UserID:    userID,
		Type:      msgType,
		Content:   content,
		SentAt:    time.Now(),
	}
	if _, err := l.collection.InsertOne(ctx, &msg); err != nil {
		return fmt.Errorf("failed to append outbound message: %w", err)
	}
	return nil
}

// Recent returns up to limit messages sent to the user inside the outbound
// window, most recent first.
func (l *OutboundLog) Recent(ctx context.Context, userID string, limit int) ([]models.OutboundMessage, error) {
	cutoff := time.Now().Add(-OutboundWindow)

	findOptions := options.Find().
		SetSort(bson.D{{Key: "sentAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := l.collection.Find(ctx,
		bson.M{"userId": userID, "sentAt": bson.M{"$gte": cutoff}},
		findOptions,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbound messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []models.OutboundMessage
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode outbound messages: %w", err)
	}
	return messages, nil
}
