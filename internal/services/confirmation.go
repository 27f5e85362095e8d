package services

import (
	"context"
	"fmt"
	"log"
	"regexp"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"tasknest/internal/models"
)

// ConfirmationOutcome tells the router what happened to a message that
// arrived while a confirmation was pending.
type ConfirmationOutcome int

const (
	// ConfirmationHandled means the reply settled the pending action
	// (executed or declined); the message is consumed.
	ConfirmationHandled ConfirmationOutcome = iota
	// ConfirmationReprocess means the pending action was discarded
	// (abandoned or stale) and the message must be reprocessed from the
	// top as a fresh message. It is never dropped.
	ConfirmationReprocess
)

var (
	affirmativeRe = regexp.MustCompile(`(?i)^(y|yes|yeah|yep|yup|sure|ok|okay|confirm|do it|go ahead|yes please|please do)[.!]*$`)
	negativeRe    = regexp.MustCompile(`(?i)^(n|no|nope|nah|cancel|stop|don'?t|never ?mind|leave it)[.!]*$`)
)

// ConfirmationFlow settles pending actions when the session is awaiting
// confirmation. An affirmative reply executes the staged mutation, a
// negative reply discards it, and anything else is treated as abandonment.
type ConfirmationFlow struct {
	tasks taskMutator
	clock clockwork.Clock
}

// NewConfirmationFlow creates the confirmation flow.
func NewConfirmationFlow(tasks taskMutator, clock clockwork.Clock) *ConfirmationFlow {
	return &ConfirmationFlow{tasks: tasks, clock: clock}
}

// Handle processes one message against the session's pending action. In
// every path the session leaves in IDLE with no pending action; the caller
// persists it.
func (f *ConfirmationFlow) Handle(ctx context.Context, session *models.ConversationSession, spaceID primitive.ObjectID, text string) (ConfirmationOutcome, *models.Reply) {
	pending := session.PendingAction
	if pending == nil {
		return ConfirmationReprocess, nil
	}

	// A proposal older than its TTL cannot be confirmed, even by "yes".
	if session.PendingStale(f.clock.Now()) {
		log.Printf("⚠️ [CONFIRMATION] Discarding stale pending %s for %q", pending.Type, pending.TaskSummary)
		session.ClearPending()
		countConfirmation("stale")
		return ConfirmationReprocess, nil
	}

	normalized := normalizeText(text)
	switch {
	case affirmativeRe.MatchString(normalized):
		session.ClearPending()
		reply := f.execute(ctx, spaceID, pending)
		countConfirmation("confirmed")
		return ConfirmationHandled, reply

	case negativeRe.MatchString(normalized):
		session.ClearPending()
		countConfirmation("declined")
		return ConfirmationHandled, &models.Reply{Text: fmt.Sprintf("Okay, I'll leave %q as it is.", pending.TaskSummary)}

	default:
		// Unrecognized reply: the user moved on. Discard and let the
		// router treat the message as brand new.
		session.ClearPending()
		countConfirmation("abandoned")
		return ConfirmationReprocess, nil
	}
}

func (f *ConfirmationFlow) execute(ctx context.Context, spaceID primitive.ObjectID, pending *models.PendingAction) *models.Reply {
	var err error
	var text string

	switch pending.Type {
	case models.PendingAssign:
		err = f.tasks.SetOwner(ctx, spaceID, pending.TaskID, pending.AssigneeID)
		text = fmt.Sprintf("Handed %q to %s.", pending.TaskSummary, pending.AssigneeName)
	case models.PendingSetDueDate:
		err = f.tasks.SetDueDate(ctx, spaceID, pending.TaskID, *pending.When)
		text = fmt.Sprintf("%q is due %s.", pending.TaskSummary, pending.When.Format("Mon Jan 2 3:04 PM"))
	case models.PendingSetReminder:
		err = f.tasks.SetReminder(ctx, spaceID, pending.TaskID, *pending.When)
		text = fmt.Sprintf("I'll remind you about %q at %s.", pending.TaskSummary, pending.When.Format("Mon Jan 2 3:04 PM"))
	case models.PendingDelete:
		err = f.tasks.Delete(ctx, spaceID, pending.TaskID)
		text = fmt.Sprintf("Deleted %q.", pending.TaskSummary)
	case models.PendingMerge:
		err = f.tasks.Merge(ctx, spaceID, pending.TaskID, pending.OtherTaskID)
		text = fmt.Sprintf("Merged %q into %q.", pending.OtherTaskSummary, pending.TaskSummary)
	default:
		return &models.Reply{Text: "That proposal is no longer valid."}
	}

	if err != nil {
		log.Printf("❌ [CONFIRMATION] Failed to execute %s for %q: %v", pending.Type, pending.TaskSummary, err)
		return &models.Reply{Text: "Something went wrong applying that. Please try again in a moment."}
	}
	return &models.Reply{Text: text}
}
