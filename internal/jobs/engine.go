package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
)

// Job is one unit of scheduled background work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Engine drives the background jobs: reminder delivery, the daily briefing
// and retention cleanup.
type Engine struct {
	scheduler gocron.Scheduler
}

// NewEngine creates the job engine.
func NewEngine() (*Engine, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Engine{scheduler: scheduler}, nil
}

// Every registers a job on a fixed interval.
func (e *Engine) Every(interval time.Duration, job Job) error {
	_, err := e.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { e.run(job) }),
		gocron.WithName(job.Name()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", job.Name(), err)
	}
	return nil
}

// Cron registers a job on a cron expression. The expression is validated
// up front so a bad config fails at startup, not at first fire.
func (e *Engine) Cron(expression string, job Job) error {
	if _, err := cron.ParseStandard(expression); err != nil {
		return fmt.Errorf("invalid cron expression %q for %s: %w", expression, job.Name(), err)
	}

	_, err := e.scheduler.NewJob(
		gocron.CronJob(expression, false),
		gocron.NewTask(func() { e.run(job) }),
		gocron.WithName(job.Name()),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", job.Name(), err)
	}
	return nil
}

func (e *Engine) run(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		log.Printf("❌ [JOBS] %s failed: %v", job.Name(), err)
		return
	}
	log.Printf("✅ [JOBS] %s completed in %v", job.Name(), time.Since(start))
}

// Start begins executing registered jobs.
func (e *Engine) Start() {
	e.scheduler.Start()
	log.Printf("🚀 [JOBS] Scheduler started with %d jobs", len(e.scheduler.Jobs()))
}

// Stop shuts the scheduler down, waiting for running jobs.
func (e *Engine) Stop() {
	if err := e.scheduler.Shutdown(); err != nil {
		log.Printf("⚠️ [JOBS] Scheduler shutdown: %v", err)
		return
	}
	log.Println("🛑 [JOBS] Scheduler stopped")
}
