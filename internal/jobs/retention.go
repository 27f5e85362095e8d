package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"tasknest/internal/database"
	"tasknest/internal/services"
)

// CompletedTaskRetention is how long completed tasks stay queryable before
// cleanup.
const CompletedTaskRetention = 90 * 24 * time.Hour

// RetentionJob trims data this core no longer needs: long-completed tasks
// and confirmations that expired with nobody answering.
type RetentionJob struct {
	mongodb  *database.MongoDB
	sessions *services.SessionStore
}

// NewRetentionJob creates the retention cleanup job.
func NewRetentionJob(mongodb *database.MongoDB, sessions *services.SessionStore) *RetentionJob {
	return &RetentionJob{mongodb: mongodb, sessions: sessions}
}

// Name implements Job.
func (j *RetentionJob) Name() string { return "retention-cleanup" }

// Run performs one cleanup sweep.
func (j *RetentionJob) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-CompletedTaskRetention)

	result, err := j.mongodb.Collection(database.CollectionTasks).DeleteMany(ctx, bson.M{
		"completed":   true,
		"completedAt": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return fmt.Errorf("failed to delete old completed tasks: %w", err)
	}
	if result.DeletedCount > 0 {
		log.Printf("🧹 [RETENTION] Removed %d completed tasks older than %s", result.DeletedCount, cutoff.Format("2006-01-02"))
	}

	expired, err := j.sessions.ExpireStalePending(ctx)
	if err != nil {
		return fmt.Errorf("failed to expire stale confirmations: %w", err)
	}
	if expired > 0 {
		log.Printf("🧹 [RETENTION] Discarded %d stale pending confirmations", expired)
	}
	return nil
}
