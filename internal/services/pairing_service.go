package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"tasknest/internal/database"
	"tasknest/internal/models"
)

// ErrNotPaired is returned when a space has no linked partner.
var ErrNotPaired = errors.New("no linked partner for this space")

// PairingService resolves the linked partner and display names for a shared
// space. Pairings change rarely, so lookups are cached in-process.
type PairingService struct {
	collection *mongo.Collection
	cache      *gocache.Cache
}

// NewPairingService creates a pairing directory backed by MongoDB.
func NewPairingService(mongodb *database.MongoDB) *PairingService {
	return &PairingService{
		collection: mongodb.Collection(database.CollectionPairings),
		cache:      gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// GetBySpace returns the pairing record for a space.
func (s *PairingService) GetBySpace(ctx context.Context, spaceID primitive.ObjectID) (*models.Pairing, error) {
	if cached, found := s.cache.Get(spaceID.Hex()); found {
		return cached.(*models.Pairing), nil
	}

	var pairing models.Pairing
	err := s.collection.FindOne(ctx, bson.M{"spaceId": spaceID}).Decode(&pairing)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotPaired
		}
		return nil, fmt.Errorf("failed to look up pairing: %w", err)
	}

	s.cache.Set(spaceID.Hex(), &pairing, gocache.DefaultExpiration)
	return &pairing, nil
}

// Partner resolves the linked counterpart of userID in a space, returning
// the partner's id and display name.
func (s *PairingService) Partner(ctx context.Context, spaceID primitive.ObjectID, userID string) (partnerID, displayName string, err error) {
	pairing, err := s.GetBySpace(ctx, spaceID)
	if err != nil {
		return "", "", err
	}

	partnerID = pairing.PartnerOf(userID)
	if partnerID == "" {
		return "", "", ErrNotPaired
	}

	displayName = pairing.DisplayNames[partnerID]
	if displayName == "" {
		displayName = "your partner"
	}
	return partnerID, displayName, nil
}

// ResolveByName finds a pairing member whose display name matches name
// (case-insensitive prefix match), used for "assign X to Sam".
func (s *PairingService) ResolveByName(ctx context.Context, spaceID primitive.ObjectID, name string) (string, string, error) {
	pairing, err := s.GetBySpace(ctx, spaceID)
	if err != nil {
		return "", "", err
	}

	for id, display := range pairing.DisplayNames {
		if equalFoldPrefix(display, name) {
			return id, display, nil
		}
	}
	return "", "", ErrNotPaired
}
