package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDB wraps the MongoDB client and database
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
	dbName   string
}

// Collection names
const (
	CollectionTasks     = "tasks"
	CollectionTaskLists = "task_lists"
	CollectionSessions  = "conversation_sessions"
	CollectionOutbound  = "outbound_messages"
	CollectionPairings  = "pairings"
	CollectionExpenses  = "expenses"
	CollectionMemories  = "memories"
	CollectionSkills    = "skills"
)

// NewMongoDB creates a new MongoDB connection with connection pooling
func NewMongoDB(uri string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dbName := extractDBName(uri)
	if dbName == "" {
		dbName = "tasknest"
	}

	db := &MongoDB{
		client:   client,
		database: client.Database(dbName),
		dbName:   dbName,
	}

	log.Printf("✅ Connected to MongoDB database: %s", dbName)

	return db, nil
}

// extractDBName extracts the database name from MongoDB URI
func extractDBName(uri string) string {
	// mongodb://localhost:27017/tasknest?authSource=admin -> tasknest
	lastSlash := -1
	questionMark := -1

	for i, c := range uri {
		if c == '/' {
			lastSlash = i
		}
		if c == '?' && questionMark == -1 {
			questionMark = i
		}
	}

	if lastSlash != -1 {
		start := lastSlash + 1
		end := len(uri)
		if questionMark != -1 && questionMark > lastSlash {
			end = questionMark
		}
		if start < end {
			return uri[start:end]
		}
	}

	return "tasknest"
}

// Initialize creates indexes for all collections
func (m *MongoDB) Initialize(ctx context.Context) error {
	log.Println("📦 Initializing MongoDB indexes...")

	// Tasks: scope queries, completion filters and the lexical full-text
	// half of hybrid search.
	if err := m.createIndexes(ctx, CollectionTasks, []mongo.IndexModel{
		{Keys: bson.D{{Key: "spaceId", Value: 1}, {Key: "completed", Value: 1}, {Key: "updatedAt", Value: -1}}},
		{Keys: bson.D{{Key: "spaceId", Value: 1}, {Key: "reminderTime", Value: 1}}},
		{Keys: bson.D{{Key: "summary", Value: "text"}}},
	}); err != nil {
		return fmt.Errorf("failed to create tasks indexes: %w", err)
	}

	// Task lists: case-insensitive name lookup per space
	if err := m.createIndexes(ctx, CollectionTaskLists, []mongo.IndexModel{
		{Keys: bson.D{{Key: "spaceId", Value: 1}, {Key: "name", Value: 1}},
			Options: options.Index().SetCollation(&options.Collation{Locale: "en", Strength: 2}).SetUnique(true)},
	}); err != nil {
		return fmt.Errorf("failed to create task_lists indexes: %w", err)
	}

	// Sessions: one per user
	if err := m.createIndexes(ctx, CollectionSessions, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
	}); err != nil {
		return fmt.Errorf("failed to create sessions indexes: %w", err)
	}

	// Outbound messages: recent-first scans plus a TTL cleanup after 2h
	// (the resolver only looks back 60 minutes; the sweeper trims earlier)
	if err := m.createIndexes(ctx, CollectionOutbound, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "sentAt", Value: -1}}},
		{Keys: bson.D{{Key: "sentAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(7200)},
	}); err != nil {
		return fmt.Errorf("failed to create outbound_messages indexes: %w", err)
	}

	// Pairings: member lookup
	if err := m.createIndexes(ctx, CollectionPairings, []mongo.IndexModel{
		{Keys: bson.D{{Key: "spaceId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "userIds", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create pairings indexes: %w", err)
	}

	// Expenses: per-space listings
	if err := m.createIndexes(ctx, CollectionExpenses, []mongo.IndexModel{
		{Keys: bson.D{{Key: "spaceId", Value: 1}, {Key: "createdAt", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("failed to create expenses indexes: %w", err)
	}

	// Memories: top-scored classifier context per user
	if err := m.createIndexes(ctx, CollectionMemories, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "score", Value: -1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "contentHash", Value: 1}}, Options: options.Index().SetUnique(true)},
	}); err != nil {
		return fmt.Errorf("failed to create memories indexes: %w", err)
	}

	// Skills: activated skill names per user
	if err := m.createIndexes(ctx, CollectionSkills, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "enabled", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create skills indexes: %w", err)
	}

	log.Println("✅ MongoDB indexes initialized successfully")
	return nil
}

// createIndexes creates indexes for a collection
func (m *MongoDB) createIndexes(ctx context.Context, collectionName string, indexes []mongo.IndexModel) error {
	collection := m.database.Collection(collectionName)
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// Collection returns a collection handle
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// Client returns the underlying MongoDB client
func (m *MongoDB) Client() *mongo.Client {
	return m.client
}

// Database returns the underlying MongoDB database
func (m *MongoDB) Database() *mongo.Database {
	return m.database
}

// Close closes the MongoDB connection
func (m *MongoDB) Close(ctx context.Context) error {
	log.Println("🔌 Closing MongoDB connection...")
	return m.client.Disconnect(ctx)
}

// Ping checks if the database connection is alive
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}
