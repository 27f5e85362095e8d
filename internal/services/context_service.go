package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tasknest/internal/crypto"
	"tasknest/internal/database"
	"tasknest/internal/models"
)

// Expense logging and classifier context (memories, skills) share one thin
// service: none of them carry business logic in this core, they only feed
// the classifier and the expense ledger.
type ContextService struct {
	memories   *mongo.Collection
	skills     *mongo.Collection
	expenses   *mongo.Collection
	encryption *crypto.EncryptionService
}

// NewContextService creates the classifier-context service.
func NewContextService(mongodb *database.MongoDB, encryption *crypto.EncryptionService) *ContextService {
	return &ContextService{
		memories:   mongodb.Collection(database.CollectionMemories),
		skills:     mongodb.Collection(database.CollectionSkills),
		expenses:   mongodb.Collection(database.CollectionExpenses),
		encryption: encryption,
	}
}

// TopMemories returns the user's highest-scored memories, decrypted, capped
// at limit.
func (s *ContextService) TopMemories(ctx context.Context, userID string, limit int) ([]string, error) {
	findOptions := options.Find().
		SetSort(bson.D{{Key: "score", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.memories.Find(ctx, bson.M{"userId": userID}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to query memories: %w", err)
	}
	defer cursor.Close(ctx)

	var memories []models.Memory
	if err := cursor.All(ctx, &memories); err != nil {
		return nil, fmt.Errorf("failed to decode memories: %w", err)
	}

	contents := make([]string, 0, len(memories))
	for _, m := range memories {
		if s.encryption == nil {
			contents = append(contents, m.EncryptedContent)
			continue
		}
		plain, err := s.encryption.Decrypt(userID, m.EncryptedContent)
		if err != nil {
			log.Printf("⚠️ [CONTEXT] Failed to decrypt memory %s: %v", m.ID.Hex(), err)
			continue
		}
		contents = append(contents, string(plain))
	}
	return contents, nil
}

// ActivatedSkills returns the names of the user's enabled skills.
func (s *ContextService) ActivatedSkills(ctx context.Context, userID string) ([]string, error) {
	cursor, err := s.skills.Find(ctx, bson.M{"userId": userID, "enabled": true})
	if err != nil {
		return nil, fmt.Errorf("failed to query skills: %w", err)
	}
	defer cursor.Close(ctx)

	var skills []models.Skill
	if err := cursor.All(ctx, &skills); err != nil {
		return nil, fmt.Errorf("failed to decode skills: %w", err)
	}

	names := make([]string, 0, len(skills))
	for _, sk := range skills {
		names = append(names, sk.Name)
	}
	return names, nil
}

// LogExpense appends one expense record to the space's ledger.
func (s *ContextService) LogExpense(ctx context.Context, expense *models.Expense) error {
	expense.CreatedAt = time.Now()
	if _, err := s.expenses.InsertOne(ctx, expense); err != nil {
		return fmt.Errorf("failed to log expense: %w", err)
	}
	return nil
}
