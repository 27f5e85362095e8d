package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tasknest/internal/database"
	"tasknest/internal/models"
)

// ErrTaskGone is returned by task mutations when the task no longer exists.
var ErrTaskGone = errors.New("task not found")

// ScoredTask is a search hit with its blended relevance score.
type ScoredTask struct {
	Task  models.Task
	Score float64
}

// TaskStore handles task persistence and the hybrid search RPC.
type TaskStore struct {
	mongodb    *database.MongoDB
	collection *mongo.Collection
	lists      *mongo.Collection
}

// NewTaskStore creates a new task store.
func NewTaskStore(mongodb *database.MongoDB) *TaskStore {
	return &TaskStore{
		mongodb:    mongodb,
		collection: mongodb.Collection(database.CollectionTasks),
		lists:      mongodb.Collection(database.CollectionTaskLists),
	}
}

// Create inserts a new task.
func (s *TaskStore) Create(ctx context.Context, task *models.Task) error {
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now
	if task.Priority == "" {
		task.Priority = models.TaskPriorityLow
	}

	result, err := s.collection.InsertOne(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		task.ID = oid
	}
	return nil
}

// GetByID fetches a single task scoped to its space.
func (s *TaskStore) GetByID(ctx context.Context, spaceID, taskID primitive.ObjectID) (*models.Task, error) {
	var task models.Task
	err := s.collection.FindOne(ctx, bson.M{"_id": taskID, "spaceId": spaceID}).Decode(&task)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrTaskGone
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// ListActive returns incomplete tasks in a space, most recently touched first.
func (s *TaskStore) ListActive(ctx context.Context, spaceID primitive.ObjectID, limit int) ([]models.Task, error) {
	findOptions := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, bson.M{"spaceId": spaceID, "completed": false}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tasks: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []models.Task
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode tasks: %w", err)
	}
	return tasks, nil
}

// Complete marks a task completed. Completing an already-complete task is a
// no-op success: changed reports whether this call flipped the flag.
func (s *TaskStore) Complete(ctx context.Context, spaceID, taskID primitive.ObjectID) (changed bool, err error) {
	now := time.Now()
	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": taskID, "spaceId": spaceID, "completed": false},
		bson.M{"$set": bson.M{"completed": true, "completedAt": now, "updatedAt": now}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete task: %w", err)
	}
	if result.MatchedCount == 0 {
		// Either already complete or gone; distinguish the two.
		count, err := s.collection.CountDocuments(ctx, bson.M{"_id": taskID, "spaceId": spaceID})
		if err != nil {
			return false, fmt.Errorf("failed to verify task: %w", err)
		}
		if count == 0 {
			return false, ErrTaskGone
		}
		return false, nil
	}
	return true, nil
}

// SetPriority updates the task priority.
func (s *TaskStore) SetPriority(ctx context.Context, spaceID, taskID primitive.ObjectID, priority models.TaskPriority) error {
	return s.update(ctx, spaceID, taskID, bson.M{"priority": priority})
}

// SetDueDate updates the due date.
func (s *TaskStore) SetDueDate(ctx context.Context, spaceID, taskID primitive.ObjectID, due time.Time) error {
	return s.update(ctx, spaceID, taskID, bson.M{"dueDate": due})
}

// SetReminder updates the reminder time.
func (s *TaskStore) SetReminder(ctx context.Context, spaceID, taskID primitive.ObjectID, at time.Time) error {
	return s.update(ctx, spaceID, taskID, bson.M{"reminderTime": at})
}

// SetOwner assigns the task to a user.
func (s *TaskStore) SetOwner(ctx context.Context, spaceID, taskID primitive.ObjectID, ownerID string) error {
	return s.update(ctx, spaceID, taskID, bson.M{"ownerId": ownerID})
}

// SetList moves the task to a list.
func (s *TaskStore) SetList(ctx context.Context, spaceID, taskID, listID primitive.ObjectID) error {
	return s.update(ctx, spaceID, taskID, bson.M{"listId": listID})
}

// update applies a $set with a refreshed updatedAt, mapping a missing task
// to ErrTaskGone.
func (s *TaskStore) update(ctx context.Context, spaceID, taskID primitive.ObjectID, set bson.M) error {
	set["updatedAt"] = time.Now()
	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": taskID, "spaceId": spaceID},
		bson.M{"$set": set},
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrTaskGone
	}
	return nil
}

// Delete removes a task permanently. Only the confirmation-gated delete
// action ever calls this.
func (s *TaskStore) Delete(ctx context.Context, spaceID, taskID primitive.ObjectID) error {
	result, err := s.collection.DeleteOne(ctx, bson.M{"_id": taskID, "spaceId": spaceID})
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrTaskGone
	}
	return nil
}

// Merge folds duplicate into primary: primary keeps the earliest due date and
// the higher priority, duplicate is deleted.
func (s *TaskStore) Merge(ctx context.Context, spaceID, primaryID, duplicateID primitive.ObjectID) error {
	primary, err := s.GetByID(ctx, spaceID, primaryID)
	if err != nil {
		return err
	}
	duplicate, err := s.GetByID(ctx, spaceID, duplicateID)
	if err != nil {
		return err
	}

	set := bson.M{"updatedAt": time.Now()}
	if duplicate.DueDate != nil && (primary.DueDate == nil || duplicate.DueDate.Before(*primary.DueDate)) {
		set["dueDate"] = *duplicate.DueDate
	}
	if duplicate.Priority == models.TaskPriorityHigh {
		set["priority"] = models.TaskPriorityHigh
	}

	if _, err := s.collection.UpdateOne(ctx, bson.M{"_id": primaryID, "spaceId": spaceID}, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("failed to update merge target: %w", err)
	}
	return s.Delete(ctx, spaceID, duplicateID)
}

// FindOrCreateList resolves a list by case-insensitive name, creating it when
// missing.
func (s *TaskStore) FindOrCreateList(ctx context.Context, spaceID primitive.ObjectID, name string) (*models.TaskList, error) {
	var list models.TaskList
	err := s.lists.FindOne(ctx,
		bson.M{"spaceId": spaceID, "name": name},
		options.FindOne().SetCollation(&options.Collation{Locale: "en", Strength: 2}),
	).Decode(&list)
	if err == nil {
		return &list, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, fmt.Errorf("failed to look up list: %w", err)
	}

	list = models.TaskList{SpaceID: spaceID, Name: name, CreatedAt: time.Now()}
	result, err := s.lists.InsertOne(ctx, &list)
	if err != nil {
		return nil, fmt.Errorf("failed to create list: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		list.ID = oid
	}
	log.Printf("📋 [TASK-STORE] Created list %q in space %s", name, spaceID.Hex())
	return &list, nil
}

// DueForReminder returns incomplete tasks whose reminder time falls inside
// (from, to].
func (s *TaskStore) DueForReminder(ctx context.Context, from, to time.Time) ([]models.Task, error) {
	cursor, err := s.collection.Find(ctx, bson.M{
		"completed":    false,
		"reminderTime": bson.M{"$gt": from, "$lte": to},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query reminders: %w", err)
	}
	defer cursor.Close(ctx)

	var tasks []models.Task
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("failed to decode reminder tasks: %w", err)
	}
	return tasks, nil
}

// HybridSearch ranks incomplete tasks in the space against the query by
// blending Atlas vector similarity with lexical full-text score. vectorWeight
// controls the blend (0 disables the vector half entirely, queryVec may then
// be nil). Hits are returned best first.
func (s *TaskStore) HybridSearch(
	ctx context.Context,
	spaceID primitive.ObjectID,
	query string,
	queryVec []float32,
	vectorWeight float64,
	limit int,
) ([]ScoredTask, error) {
	type hit struct {
		task  models.Task
		score float64
	}
	merged := make(map[primitive.ObjectID]*hit)

	if vectorWeight > 0 && len(queryVec) > 0 {
		vecHits, err := s.vectorSearch(ctx, spaceID, queryVec, limit)
		if err != nil {
			return nil, fmt.Errorf("vector search failed: %w", err)
		}
		for _, h := range vecHits {
			merged[h.Task.ID] = &hit{task: h.Task, score: vectorWeight * h.Score}
		}
	}

	lexWeight := 1.0 - vectorWeight
	if vectorWeight == 0 {
		lexWeight = 1.0
	}
	if lexWeight > 0 {
		textHits, err := s.textSearch(ctx, spaceID, query, limit)
		if err != nil {
			return nil, fmt.Errorf("text search failed: %w", err)
		}
		for _, h := range textHits {
			if existing, ok := merged[h.Task.ID]; ok {
				existing.score += lexWeight * h.Score
			} else {
				merged[h.Task.ID] = &hit{task: h.Task, score: lexWeight * h.Score}
			}
		}
	}

	hits := make([]ScoredTask, 0, len(merged))
	for _, h := range merged {
		hits = append(hits, ScoredTask{Task: h.task, Score: h.score})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// vectorSearch runs the Atlas $vectorSearch half of the hybrid query.
func (s *TaskStore) vectorSearch(ctx context.Context, spaceID primitive.ObjectID, queryVec []float32, limit int) ([]ScoredTask, error) {
	vec := make(bson.A, len(queryVec))
	for i, v := range queryVec {
		vec[i] = v
	}

	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.M{
			"index":         "task_embeddings",
			"path":          "embedding",
			"queryVector":   vec,
			"numCandidates": limit * 10,
			"limit":         limit,
			"filter":        bson.M{"spaceId": spaceID, "completed": false},
		}}},
		{{Key: "$addFields", Value: bson.M{"searchScore": bson.M{"$meta": "vectorSearchScore"}}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	return decodeScored(ctx, cursor)
}

// textSearch runs the lexical $text half, with scores normalized into [0,1]
// so they can be blended against cosine similarity.
func (s *TaskStore) textSearch(ctx context.Context, spaceID primitive.ObjectID, query string, limit int) ([]ScoredTask, error) {
	filter := bson.M{
		"spaceId":   spaceID,
		"completed": false,
		"$text":     bson.M{"$search": query},
	}
	findOptions := options.Find().
		SetProjection(bson.M{"searchScore": bson.M{"$meta": "textScore"}}).
		SetSort(bson.M{"searchScore": bson.M{"$meta": "textScore"}}).
		SetLimit(int64(limit))

	cursor, err := s.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	hits, err := decodeScored(ctx, cursor)
	if err != nil {
		return nil, err
	}
	for i := range hits {
		// tanh keeps large term-frequency scores from drowning the
		// vector half of the blend
		hits[i].Score = math.Tanh(hits[i].Score / 2)
	}
	return hits, nil
}

func decodeScored(ctx context.Context, cursor *mongo.Cursor) ([]ScoredTask, error) {
	var rows []struct {
		models.Task `bson:",inline"`
		SearchScore float64 `bson:"searchScore"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode search hits: %w", err)
	}

	hits := make([]ScoredTask, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, ScoredTask{Task: r.Task, Score: r.SearchScore})
	}
	return hits, nil
}
