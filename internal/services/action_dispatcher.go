package services

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"tasknest/internal/models"
	"tasknest/internal/timeparse"
)

var amountRe = regexp.MustCompile(`(\d+(?:[.,]\d{1,2})?)`)

// taskMutator is the slice of TaskStore the dispatcher mutates through.
type taskMutator interface {
	Create(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, spaceID, taskID primitive.ObjectID) (*models.Task, error)
	Complete(ctx context.Context, spaceID, taskID primitive.ObjectID) (bool, error)
	SetPriority(ctx context.Context, spaceID, taskID primitive.ObjectID, priority models.TaskPriority) error
	SetDueDate(ctx context.Context, spaceID, taskID primitive.ObjectID, due time.Time) error
	SetReminder(ctx context.Context, spaceID, taskID primitive.ObjectID, at time.Time) error
	SetOwner(ctx context.Context, spaceID, taskID primitive.ObjectID, ownerID string) error
	SetList(ctx context.Context, spaceID, taskID, listID primitive.ObjectID) error
	Delete(ctx context.Context, spaceID, taskID primitive.ObjectID) error
	Merge(ctx context.Context, spaceID, primaryID, duplicateID primitive.ObjectID) error
	FindOrCreateList(ctx context.Context, spaceID primitive.ObjectID, name string) (*models.TaskList, error)
}

// partnerDirectory resolves the linked partner for assignment.
type partnerDirectory interface {
	Partner(ctx context.Context, spaceID primitive.ObjectID, userID string) (string, string, error)
	ResolveByName(ctx context.Context, spaceID primitive.ObjectID, name string) (string, string, error)
}

// expenseLogger appends to the space's expense ledger.
type expenseLogger interface {
	LogExpense(ctx context.Context, expense *models.Expense) error
}

// ActionDispatcher executes the concrete mutation behind each intent.
// complete, set_priority, move, create and expense apply immediately;
// assign, set_due, remind, delete and merge stage a pending action on the
// session and wait for confirmation.
type ActionDispatcher struct {
	tasks    taskMutator
	pairing  partnerDirectory
	expenses expenseLogger
	embedder embedder
	clock    clockwork.Clock
}

// NewActionDispatcher creates an action dispatcher.
func NewActionDispatcher(tasks taskMutator, pairing partnerDirectory, expenses expenseLogger, embedder embedder, clock clockwork.Clock) *ActionDispatcher {
	return &ActionDispatcher{
		tasks:    tasks,
		pairing:  pairing,
		expenses: expenses,
		embedder: embedder,
		clock:    clock,
	}
}

// DispatchRequest carries one resolved intent into the dispatcher.
type DispatchRequest struct {
	Intent     models.Intent
	Message    string // effective body after shortcut stripping
	Parameters map[string]string
	Urgent     bool
	Task       *models.Task // resolved target, nil for create/expense
	OtherTask  *models.Task // second task for merge
	SpaceID    primitive.ObjectID
	UserID     string
}

// Dispatch executes or stages the action and returns the user-facing reply.
// Staged actions are written onto the session; persisting the session is the
// caller's job.
func (d *ActionDispatcher) Dispatch(ctx context.Context, session *models.ConversationSession, req *DispatchRequest) (*models.Reply, error) {
	switch req.Intent {
	case models.IntentCreate:
		return d.createTask(ctx, req)
	case models.IntentComplete:
		return d.completeTask(ctx, req)
	case models.IntentSetPriority:
		return d.setPriority(ctx, req)
	case models.IntentSetDue:
		return d.stageWhen(session, req, models.PendingSetDueDate)
	case models.IntentRemind:
		return d.stageWhen(session, req, models.PendingSetReminder)
	case models.IntentDelete:
		return d.stageDelete(session, req)
	case models.IntentAssign:
		return d.stageAssign(ctx, session, req)
	case models.IntentMerge:
		return d.stageMerge(session, req)
	case models.IntentMove:
		return d.moveTask(ctx, req)
	case models.IntentExpense:
		return d.logExpense(ctx, req)
	}
	return nil, fmt.Errorf("intent %q is not dispatchable", req.Intent)
}

func (d *ActionDispatcher) createTask(ctx context.Context, req *DispatchRequest) (*models.Reply, error) {
	summary := strings.TrimSpace(req.Message)
	if summary == "" {
		return &models.Reply{Text: "What should I add?"}, nil
	}

	task := &models.Task{
		SpaceID: req.SpaceID,
		OwnerID: req.UserID,
		Summary: summary,
	}
	if req.Urgent {
		task.Priority = models.TaskPriorityHigh
	}

	if d.embedder != nil {
		if vec, err := d.embedder.Embed(ctx, summary); err != nil {
			log.Printf("⚠️ [DISPATCHER] Embedding new task failed, stored without vector: %v", err)
		} else {
			task.Embedding = vec
		}
	}

	if err := d.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	text := fmt.Sprintf("Added %q.", task.Summary)
	if req.Urgent {
		text = fmt.Sprintf("Added %q as high priority.", task.Summary)
	}
	return &models.Reply{Text: text}, nil
}

func (d *ActionDispatcher) completeTask(ctx context.Context, req *DispatchRequest) (*models.Reply, error) {
	changed, err := d.tasks.Complete(ctx, req.SpaceID, req.Task.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to complete task: %w", err)
	}
	if !changed {
		return &models.Reply{Text: fmt.Sprintf("%q was already done.", req.Task.Summary)}, nil
	}
	return &models.Reply{Text: fmt.Sprintf("Done! %q is checked off.", req.Task.Summary)}, nil
}

func (d *ActionDispatcher) setPriority(ctx context.Context, req *DispatchRequest) (*models.Reply, error) {
	priority := parsePriority(req.Parameters["priority"], req.Message)
	if err := d.tasks.SetPriority(ctx, req.SpaceID, req.Task.ID, priority); err != nil {
		return nil, fmt.Errorf("failed to set priority: %w", err)
	}
	return &models.Reply{Text: fmt.Sprintf("%q is now %s priority.", req.Task.Summary, priority)}, nil
}

func (d *ActionDispatcher) stageWhen(session *models.ConversationSession, req *DispatchRequest, actionType models.PendingActionType) (*models.Reply, error) {
	expr := req.Parameters["when"]
	if expr == "" {
		expr = req.Message
	}

	now := d.clock.Now()
	parsed, err := timeparse.Parse(expr, now)
	if err != nil {
		return &models.Reply{Text: fmt.Sprintf("I couldn't work out a time from %q. Try something like \"tomorrow at 3pm\".", expr)}, nil
	}

	when := parsed.Time
	if parsed.TimeOnly {
		// Keep the task's existing date, replace only the time of day.
		base := now
		if actionType == models.PendingSetDueDate && req.Task.DueDate != nil {
			base = *req.Task.DueDate
		} else if actionType == models.PendingSetReminder && req.Task.ReminderTime != nil {
			base = *req.Task.ReminderTime
		}
		when = timeparse.ApplyTimeOnly(base, parsed.Time)
	}

	session.SetPending(&models.PendingAction{
		Type:        actionType,
		TaskID:      req.Task.ID,
		TaskSummary: req.Task.Summary,
		When:        &when,
		ProposedAt:  now,
	})

	verb := "due"
	if actionType == models.PendingSetReminder {
		verb = "a reminder"
	}
	return &models.Reply{Text: fmt.Sprintf("Set %s for %q at %s? (yes/no)", verb, req.Task.Summary, when.Format("Mon Jan 2 3:04 PM"))}, nil
}

func (d *ActionDispatcher) stageDelete(session *models.ConversationSession, req *DispatchRequest) (*models.Reply, error) {
	session.SetPending(&models.PendingAction{
		Type:        models.PendingDelete,
		TaskID:      req.Task.ID,
		TaskSummary: req.Task.Summary,
		ProposedAt:  d.clock.Now(),
	})
	return &models.Reply{Text: fmt.Sprintf("Delete %q? This can't be undone. (yes/no)", req.Task.Summary)}, nil
}

func (d *ActionDispatcher) stageAssign(ctx context.Context, session *models.ConversationSession, req *DispatchRequest) (*models.Reply, error) {
	var assigneeID, assigneeName string
	var err error

	if name := req.Parameters["assignee"]; name != "" && !isPartnerWord(name) {
		assigneeID, assigneeName, err = d.pairing.ResolveByName(ctx, req.SpaceID, name)
	} else {
		assigneeID, assigneeName, err = d.pairing.Partner(ctx, req.SpaceID, req.UserID)
	}
	if err != nil {
		if err == ErrNotPaired {
			return &models.Reply{Text: "You don't have a linked partner yet, so I can't hand tasks over."}, nil
		}
		return nil, fmt.Errorf("failed to resolve assignee: %w", err)
	}

	session.SetPending(&models.PendingAction{
		Type:         models.PendingAssign,
		TaskID:       req.Task.ID,
		TaskSummary:  req.Task.Summary,
		AssigneeID:   assigneeID,
		AssigneeName: assigneeName,
		ProposedAt:   d.clock.Now(),
	})
	return &models.Reply{Text: fmt.Sprintf("Hand %q to %s? (yes/no)", req.Task.Summary, assigneeName)}, nil
}

func (d *ActionDispatcher) stageMerge(session *models.ConversationSession, req *DispatchRequest) (*models.Reply, error) {
	if req.OtherTask == nil {
		return nil, ErrTaskTargetMissing
	}
	session.SetPending(&models.PendingAction{
		Type:             models.PendingMerge,
		TaskID:           req.Task.ID,
		TaskSummary:      req.Task.Summary,
		OtherTaskID:      req.OtherTask.ID,
		OtherTaskSummary: req.OtherTask.Summary,
		ProposedAt:       d.clock.Now(),
	})
	return &models.Reply{Text: fmt.Sprintf("Merge %q into %q? (yes/no)", req.OtherTask.Summary, req.Task.Summary)}, nil
}

func (d *ActionDispatcher) moveTask(ctx context.Context, req *DispatchRequest) (*models.Reply, error) {
	listName := strings.TrimSpace(req.Parameters["list"])
	if listName == "" {
		return &models.Reply{Text: "Which list should it go to?"}, nil
	}

	list, err := d.tasks.FindOrCreateList(ctx, req.SpaceID, listName)
	if err != nil {
		return nil, fmt.Errorf("failed to find or create list: %w", err)
	}
	if err := d.tasks.SetList(ctx, req.SpaceID, req.Task.ID, list.ID); err != nil {
		return nil, fmt.Errorf("failed to move task: %w", err)
	}
	return &models.Reply{Text: fmt.Sprintf("Moved %q to %s.", req.Task.Summary, list.Name)}, nil
}

func (d *ActionDispatcher) logExpense(ctx context.Context, req *DispatchRequest) (*models.Reply, error) {
	amount, note, ok := parseExpense(req.Message)
	if !ok {
		return &models.Reply{Text: "How much was it? Try something like \"$ 12.50 groceries\"."}, nil
	}

	expense := &models.Expense{
		SpaceID: req.SpaceID,
		UserID:  req.UserID,
		Amount:  amount,
		Note:    note,
	}
	if err := d.expenses.LogExpense(ctx, expense); err != nil {
		return nil, fmt.Errorf("failed to log expense: %w", err)
	}
	return &models.Reply{Text: fmt.Sprintf("Logged %.2f for %s.", amount, orDefault(note, "the shared ledger"))}, nil
}

// parsePriority maps free text to exactly high or low. "important" and
// unqualified requests mean high; only an explicit "low" means low.
func parsePriority(param, message string) models.TaskPriority {
	text := normalizeText(param + " " + message)
	if strings.Contains(text, "low") {
		return models.TaskPriorityLow
	}
	return models.TaskPriorityHigh
}

// parseExpense extracts the first decimal amount and the remaining note text.
func parseExpense(text string) (float64, string, bool) {
	loc := amountRe.FindStringIndex(text)
	if loc == nil {
		return 0, "", false
	}
	raw := strings.ReplaceAll(text[loc[0]:loc[1]], ",", ".")
	amount, err := strconv.ParseFloat(raw, 64)
	if err != nil || amount <= 0 {
		return 0, "", false
	}

	note := strings.TrimSpace(text[:loc[0]] + " " + text[loc[1]:])
	note = strings.Trim(note, " $€£-:,")
	return amount, strings.TrimSpace(note), true
}

func isPartnerWord(name string) bool {
	switch normalizeText(name) {
	case "partner", "my partner", "them", "her", "him":
		return true
	}
	return false
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
