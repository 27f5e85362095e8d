package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TaskPriority is the two-level priority scheme used across the assistant.
// Free-text priority phrases are mapped onto exactly these two values.
type TaskPriority string

const (
	TaskPriorityHigh TaskPriority = "high"
	TaskPriorityLow  TaskPriority = "low"
)

// Task represents a stored task in a shared space.
// Tasks are created by the note-ingestion pipeline and mutated exclusively
// through the action dispatcher.
type Task struct {
	ID           primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	SpaceID      primitive.ObjectID  `bson:"spaceId" json:"space_id"`
	OwnerID      string              `bson:"ownerId,omitempty" json:"owner_id,omitempty"`
	Summary      string              `bson:"summary" json:"summary"`
	DueDate      *time.Time          `bson:"dueDate,omitempty" json:"due_date,omitempty"`
	ReminderTime *time.Time          `bson:"reminderTime,omitempty" json:"reminder_time,omitempty"`
	Priority     TaskPriority        `bson:"priority" json:"priority"`
	Completed    bool                `bson:"completed" json:"completed"`
	CompletedAt  *time.Time          `bson:"completedAt,omitempty" json:"completed_at,omitempty"`
	ListID       *primitive.ObjectID `bson:"listId,omitempty" json:"list_id,omitempty"`

	// Embedding of the summary, used for hybrid search. Optional: tasks
	// created while the embedding provider was down have none and are only
	// reachable through the lexical tiers.
	Embedding []float32 `bson:"embedding,omitempty" json:"-"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}

// TaskList is a named grouping of tasks within a space.
type TaskList struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SpaceID   primitive.ObjectID `bson:"spaceId" json:"space_id"`
	Name      string             `bson:"name" json:"name"`
	CreatedAt time.Time          `bson:"createdAt" json:"created_at"`
}

// Expense is a lightweight expense record logged from chat ("$12.50 groceries").
type Expense struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SpaceID   primitive.ObjectID `bson:"spaceId" json:"space_id"`
	UserID    string             `bson:"userId" json:"user_id"`
	Amount    float64            `bson:"amount" json:"amount"`
	Note      string             `bson:"note,omitempty" json:"note,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"created_at"`
}

// Pairing links two users into a shared space and carries their display names.
type Pairing struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SpaceID      primitive.ObjectID `bson:"spaceId" json:"space_id"`
	UserIDs      []string           `bson:"userIds" json:"user_ids"`
	DisplayNames map[string]string  `bson:"displayNames" json:"display_names"`
	CreatedAt    time.Time          `bson:"createdAt" json:"created_at"`
}

// PartnerOf returns the other member of the pairing, or "" when userID is
// not part of it (or the pairing is incomplete).
func (p *Pairing) PartnerOf(userID string) string {
	member := false
	partner := ""
	for _, id := range p.UserIDs {
		if id == userID {
			member = true
		} else if partner == "" {
			partner = id
		}
	}
	if !member {
		return ""
	}
	return partner
}
