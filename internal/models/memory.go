package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is a long-lived fact about the user, surfaced to the AI classifier
// as context. Content is encrypted at rest; the store decrypts on read.
type Memory struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID           string             `bson:"userId" json:"user_id"`
	EncryptedContent string             `bson:"encryptedContent" json:"-"`
	ContentHash      string             `bson:"contentHash" json:"-"`
	Score            float64            `bson:"score" json:"score"`
	CreatedAt        time.Time          `bson:"createdAt" json:"created_at"`
	UpdatedAt        time.Time          `bson:"updatedAt" json:"updated_at"`
}

// Skill is a named capability the user has activated; only the names travel
// into classifier context.
type Skill struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"userId" json:"user_id"`
	Name      string             `bson:"name" json:"name"`
	Enabled   bool               `bson:"enabled" json:"enabled"`
	CreatedAt time.Time          `bson:"createdAt" json:"created_at"`
}
