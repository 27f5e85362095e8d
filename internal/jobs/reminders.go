package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"tasknest/internal/models"
	"tasknest/internal/services"
)

// ReminderJob delivers due reminders. Each sweep covers the window since
// the previous sweep, so a missed tick is caught up on the next one rather
// than dropped.
type ReminderJob struct {
	tasks    *services.TaskStore
	outbound *services.OutboundLog
	clock    clockwork.Clock

	mu       sync.Mutex
	lastSeen time.Time
}

// NewReminderJob creates the reminder delivery job.
func NewReminderJob(tasks *services.TaskStore, outbound *services.OutboundLog, clock clockwork.Clock) *ReminderJob {
	return &ReminderJob{
		tasks:    tasks,
		outbound: outbound,
		clock:    clock,
		lastSeen: clock.Now(),
	}
}

// Name implements Job.
func (j *ReminderJob) Name() string { return "reminder-delivery" }

// Run sends a reminder message for every task whose reminder time fell in
// the window since the last sweep.
func (j *ReminderJob) Run(ctx context.Context) error {
	j.mu.Lock()
	from := j.lastSeen
	to := j.clock.Now()
	j.lastSeen = to
	j.mu.Unlock()

	due, err := j.tasks.DueForReminder(ctx, from, to)
	if err != nil {
		return fmt.Errorf("failed to query due reminders: %w", err)
	}

	for _, task := range due {
		if task.OwnerID == "" {
			continue
		}
		content := fmt.Sprintf("Reminder: %q", task.Summary)
		if err := j.outbound.Append(ctx, task.OwnerID, models.OutboundReminder, content); err != nil {
			log.Printf("⚠️ [REMINDERS] Failed to queue reminder for %q: %v", task.Summary, err)
			continue
		}
		log.Printf("🔔 [REMINDERS] Queued reminder for %q to %s", task.Summary, task.OwnerID)
	}
	return nil
}
