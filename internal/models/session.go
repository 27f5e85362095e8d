package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionState is the dialogue state of a conversation session.
type SessionState string

const (
	SessionStateIdle                 SessionState = "idle"
	SessionStateAwaitingConfirmation SessionState = "awaiting_confirmation"
)

// Conversational context TTLs. All staleness checks compare wall-clock time
// at resolution time against the stored timestamps.
const (
	ReferencedEntityTTL = 10 * time.Minute
	DisplayedListTTL    = 15 * time.Minute
	PendingActionTTL    = 5 * time.Minute

	// MaxHistoryMessages bounds the conversation history kept per session.
	// History is classifier context only, never business logic.
	MaxHistoryMessages = 6
)

// PendingActionType tags the variant held in a PendingAction.
type PendingActionType string

const (
	PendingAssign      PendingActionType = "assign"
	PendingSetDueDate  PendingActionType = "set_due_date"
	PendingSetReminder PendingActionType = "set_reminder"
	PendingDelete      PendingActionType = "delete"
	PendingMerge       PendingActionType = "merge"
)

// PendingAction is a proposed mutation awaiting explicit confirmation.
// Exactly one of the payload fields matching Type is meaningful; the
// confirmation executor switches exhaustively on Type.
type PendingAction struct {
	Type        PendingActionType  `bson:"type" json:"type"`
	TaskID      primitive.ObjectID `bson:"taskId" json:"task_id"`
	TaskSummary string             `bson:"taskSummary" json:"task_summary"`

	// assign
	AssigneeID   string `bson:"assigneeId,omitempty" json:"assignee_id,omitempty"`
	AssigneeName string `bson:"assigneeName,omitempty" json:"assignee_name,omitempty"`

	// set_due_date / set_reminder
	When *time.Time `bson:"when,omitempty" json:"when,omitempty"`

	// merge
	OtherTaskID      primitive.ObjectID `bson:"otherTaskId,omitempty" json:"other_task_id,omitempty"`
	OtherTaskSummary string             `bson:"otherTaskSummary,omitempty" json:"other_task_summary,omitempty"`

	ProposedAt time.Time `bson:"proposedAt" json:"proposed_at"`
}

// ReferencedEntity is the last task the conversation touched, cached for
// pronoun resolution. Always re-fetched live before use.
type ReferencedEntity struct {
	TaskID       primitive.ObjectID  `bson:"taskId" json:"task_id"`
	Summary      string              `bson:"summary" json:"summary"`
	DueDate      *time.Time          `bson:"dueDate,omitempty" json:"due_date,omitempty"`
	ListID       *primitive.ObjectID `bson:"listId,omitempty" json:"list_id,omitempty"`
	Priority     TaskPriority        `bson:"priority,omitempty" json:"priority,omitempty"`
	ReferencedAt time.Time           `bson:"referencedAt" json:"referenced_at"`
}

// DisplayedListItem is one row of the last numbered list shown to the user.
type DisplayedListItem struct {
	TaskID   primitive.ObjectID `bson:"taskId" json:"task_id"`
	Summary  string             `bson:"summary" json:"summary"`
	Position int                `bson:"position" json:"position"` // 1-based, as displayed
}

// HistoryMessage is a single conversation turn. Content is stored encrypted
// and decrypted by the session store on read.
type HistoryMessage struct {
	Role      string    `bson:"role" json:"role"` // "user" or "assistant"
	Content   string    `bson:"content" json:"content"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// ConversationSession is the single per-user mutable record owned by the
// message-understanding core. It is fetched once at the start of a request
// and written back once at the end (last-write-wins).
type ConversationSession struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID string             `bson:"userId" json:"user_id"`

	State         SessionState   `bson:"state" json:"state"`
	PendingAction *PendingAction `bson:"pendingAction,omitempty" json:"pending_action,omitempty"`

	LastReferencedEntity *ReferencedEntity   `bson:"lastReferencedEntity,omitempty" json:"last_referenced_entity,omitempty"`
	LastDisplayedList    []DisplayedListItem `bson:"lastDisplayedList,omitempty" json:"last_displayed_list,omitempty"`
	ListDisplayedAt      *time.Time          `bson:"listDisplayedAt,omitempty" json:"list_displayed_at,omitempty"`

	History []HistoryMessage `bson:"history,omitempty" json:"history,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}

// SetPending stages a pending action and moves the session to
// AWAITING_CONFIRMATION. The invariant that pendingAction implies the
// awaiting state (and vice versa) is maintained only through SetPending
// and ClearPending.
func (s *ConversationSession) SetPending(action *PendingAction) {
	s.PendingAction = action
	s.State = SessionStateAwaitingConfirmation
}

// ClearPending discards any pending action and returns the session to IDLE.
func (s *ConversationSession) ClearPending() {
	s.PendingAction = nil
	s.State = SessionStateIdle
}

// PendingStale reports whether the pending confirmation is older than its TTL.
func (s *ConversationSession) PendingStale(now time.Time) bool {
	return s.PendingAction != nil && now.Sub(s.UpdatedAt) > PendingActionTTL
}

// EntityFresh reports whether the last referenced entity may still be used
// for pronoun resolution.
func (s *ConversationSession) EntityFresh(now time.Time) bool {
	return s.LastReferencedEntity != nil &&
		now.Sub(s.LastReferencedEntity.ReferencedAt) <= ReferencedEntityTTL
}

// ListFresh reports whether the last displayed list may still be indexed
// into by ordinal references.
func (s *ConversationSession) ListFresh(now time.Time) bool {
	return len(s.LastDisplayedList) > 0 && s.ListDisplayedAt != nil &&
		now.Sub(*s.ListDisplayedAt) <= DisplayedListTTL
}

// RememberEntity records a task as the most recently referenced entity.
func (s *ConversationSession) RememberEntity(task *Task, now time.Time) {
	s.LastReferencedEntity = &ReferencedEntity{
		TaskID:       task.ID,
		Summary:      task.Summary,
		DueDate:      task.DueDate,
		ListID:       task.ListID,
		Priority:     task.Priority,
		ReferencedAt: now,
	}
}

// RememberList records a numbered list as the most recently displayed one.
func (s *ConversationSession) RememberList(items []DisplayedListItem, now time.Time) {
	s.LastDisplayedList = items
	s.ListDisplayedAt = &now
}

// AppendHistory appends a turn and trims to the bounded window.
func (s *ConversationSession) AppendHistory(role, content string, now time.Time) {
	s.History = append(s.History, HistoryMessage{Role: role, Content: content, Timestamp: now})
	if len(s.History) > MaxHistoryMessages {
		s.History = s.History[len(s.History)-MaxHistoryMessages:]
	}
}
