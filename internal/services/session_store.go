package services

import (
	"context"
	"fmt"
	"log"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tasknest/internal/crypto"
	"tasknest/internal/database"
	"tasknest/internal/models"
)

// SessionStore owns the per-user conversation session records. Sessions are
// fetched once per inbound message and written back once (last-write-wins;
// a single user's messages are serialized by the chat channel).
type SessionStore struct {
	collection *mongo.Collection
	encryption *crypto.EncryptionService
	clock      clockwork.Clock
}

// NewSessionStore creates a session store. encryption may be nil in
// development; history is then stored in the clear.
func NewSessionStore(mongodb *database.MongoDB, encryption *crypto.EncryptionService, clock clockwork.Clock) *SessionStore {
	return &SessionStore{
		collection: mongodb.Collection(database.CollectionSessions),
		encryption: encryption,
		clock:      clock,
	}
}

// GetOrCreate fetches the user's session, creating an idle one when missing.
// History content is decrypted before returning.
func (s *SessionStore) GetOrCreate(ctx context.Context, userID string) (*models.ConversationSession, error) {
	now := s.clock.Now()

	var session models.ConversationSession
	err := s.collection.FindOneAndUpdate(ctx,
		bson.M{"userId": userID},
		bson.M{"$setOnInsert": bson.M{
			"userId":    userID,
			"state":     models.SessionStateIdle,
			"createdAt": now,
			"updatedAt": now,
		}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&session)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create session: %w", err)
	}

	if s.encryption != nil {
		for i := range session.History {
			plain, err := s.encryption.Decrypt(userID, session.History[i].Content)
			if err != nil {
				// Unreadable turns are dropped from context, not fatal.
				log.Printf("⚠️ [SESSION-STORE] Failed to decrypt history turn for user %s: %v", userID, err)
				session.History[i].Content = ""
				continue
			}
			session.History[i].Content = string(plain)
		}
	}

	return &session, nil
}

// Save writes the session back, encrypting history content and refreshing
// updatedAt. The caller's in-memory session keeps its plaintext history.
func (s *SessionStore) Save(ctx context.Context, session *models.ConversationSession) error {
	session.UpdatedAt = s.clock.Now()

	stored := *session
	if s.encryption != nil && len(session.History) > 0 {
		stored.History = make([]models.HistoryMessage, len(session.History))
		copy(stored.History, session.History)
		for i := range stored.History {
			enc, err := s.encryption.Encrypt(session.UserID, []byte(stored.History[i].Content))
			if err != nil {
				return fmt.Errorf("failed to encrypt history turn: %w", err)
			}
			stored.History[i].Content = enc
		}
	}

	_, err := s.collection.ReplaceOne(ctx,
		bson.M{"userId": session.UserID},
		&stored,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// ExpireStalePending clears pending confirmations older than the pending TTL
// across all sessions. Run from the background sweeper; the router also
// checks staleness inline so this is cleanup, not correctness.
func (s *SessionStore) ExpireStalePending(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-models.PendingActionTTL)

	result, err := s.collection.UpdateMany(ctx,
		bson.M{
			"state":     models.SessionStateAwaitingConfirmation,
			"updatedAt": bson.M{"$lt": cutoff},
		},
		bson.M{
			"$set":   bson.M{"state": models.SessionStateIdle, "updatedAt": s.clock.Now()},
			"$unset": bson.M{"pendingAction": ""},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale confirmations: %w", err)
	}
	return result.ModifiedCount, nil
}
