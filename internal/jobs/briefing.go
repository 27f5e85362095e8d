package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson"

	"tasknest/internal/database"
	"tasknest/internal/models"
	"tasknest/internal/presentation"
	"tasknest/internal/services"
)

const briefingTaskLimit = 50

// BriefingJob sends each paired space its morning summary of tasks due
// today, as a numbered list so follow-up ordinals resolve against it.
type BriefingJob struct {
	mongodb   *database.MongoDB
	tasks     *services.TaskStore
	outbound  *services.OutboundLog
	formatter *presentation.Formatter
	clock     clockwork.Clock
}

// NewBriefingJob creates the daily briefing job.
func NewBriefingJob(mongodb *database.MongoDB, tasks *services.TaskStore, outbound *services.OutboundLog, formatter *presentation.Formatter, clock clockwork.Clock) *BriefingJob {
	return &BriefingJob{
		mongodb:   mongodb,
		tasks:     tasks,
		outbound:  outbound,
		formatter: formatter,
		clock:     clock,
	}
}

// Name implements Job.
func (j *BriefingJob) Name() string { return "daily-briefing" }

// Run sends the briefing to every member of every paired space.
func (j *BriefingJob) Run(ctx context.Context) error {
	cursor, err := j.mongodb.Collection(database.CollectionPairings).Find(ctx, bson.M{})
	if err != nil {
		return fmt.Errorf("failed to list pairings: %w", err)
	}
	defer cursor.Close(ctx)

	var pairings []models.Pairing
	if err := cursor.All(ctx, &pairings); err != nil {
		return fmt.Errorf("failed to decode pairings: %w", err)
	}

	sent := 0
	for _, pairing := range pairings {
		if err := j.briefSpace(ctx, &pairing); err != nil {
			log.Printf("⚠️ [BRIEFING] Space %s skipped: %v", pairing.SpaceID.Hex(), err)
			continue
		}
		sent++
	}
	log.Printf("📋 [BRIEFING] Sent briefings for %d of %d spaces", sent, len(pairings))
	return nil
}

func (j *BriefingJob) briefSpace(ctx context.Context, pairing *models.Pairing) error {
	active, err := j.tasks.ListActive(ctx, pairing.SpaceID, briefingTaskLimit)
	if err != nil {
		return err
	}

	today := j.dueToday(active)
	if len(today) == 0 {
		return nil
	}

	text, _ := j.formatter.FormatBriefing(today)
	for _, userID := range pairing.UserIDs {
		if err := j.outbound.Append(ctx, userID, models.OutboundBriefing, text); err != nil {
			log.Printf("⚠️ [BRIEFING] Failed to queue briefing for %s: %v", userID, err)
		}
	}
	return nil
}

func (j *BriefingJob) dueToday(tasks []models.Task) []models.Task {
	now := j.clock.Now().UTC()
	dayEnd := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)

	var due []models.Task
	for _, task := range tasks {
		if task.DueDate == nil {
			continue
		}
		// Overdue tasks surface too, so nothing silently slips.
		if task.DueDate.UTC().Before(dayEnd) {
			due = append(due, task)
		}
	}
	return due
}
