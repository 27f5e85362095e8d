package models

// Intent is the abstract action category a message maps to.
type Intent string

const (
	IntentCreate        Intent = "create"
	IntentSearch        Intent = "search"
	IntentContextualAsk Intent = "contextual_ask"
	IntentComplete      Intent = "complete"
	IntentSetPriority   Intent = "set_priority"
	IntentSetDue        Intent = "set_due"
	IntentRemind        Intent = "remind"
	IntentDelete        Intent = "delete"
	IntentMove          Intent = "move"
	IntentAssign        Intent = "assign"
	IntentMerge         Intent = "merge"
	IntentExpense       Intent = "expense"
	IntentChat          Intent = "chat"
)

// ValidIntents enumerates every intent value the classifier may return.
var ValidIntents = map[Intent]bool{
	IntentCreate:        true,
	IntentSearch:        true,
	IntentContextualAsk: true,
	IntentComplete:      true,
	IntentSetPriority:   true,
	IntentSetDue:        true,
	IntentRemind:        true,
	IntentDelete:        true,
	IntentMove:          true,
	IntentAssign:        true,
	IntentMerge:         true,
	IntentExpense:       true,
	IntentChat:          true,
}

// NeedsTarget reports whether the intent acts on a specific stored task and
// therefore requires entity resolution before dispatch.
func (i Intent) NeedsTarget() bool {
	switch i {
	case IntentComplete, IntentSetPriority, IntentSetDue, IntentRemind,
		IntentDelete, IntentMove, IntentAssign, IntentMerge:
		return true
	}
	return false
}

// IntentResult is the deterministic output of the lexical matcher.
type IntentResult struct {
	Intent Intent `json:"intent"`
	// Message is the effective message body after shortcut-label stripping.
	Message string `json:"message"`
	// TargetPhrase is the free-text reference to the task being acted on,
	// empty when the rule carries no capture.
	TargetPhrase string `json:"target_phrase,omitempty"`
	// Parameters holds rule-specific extras (priority text, date text,
	// expense amount, destination list name).
	Parameters map[string]string `json:"parameters,omitempty"`
	Urgent     bool              `json:"urgent,omitempty"`
}

// ClassifiedIntent is the structured output of the AI classifier. Every field
// is advisory; the router validates before trusting any of it.
type ClassifiedIntent struct {
	Intent           Intent            `json:"intent"`
	TargetID         string            `json:"target_id,omitempty"`
	TargetNamePhrase string            `json:"target_name_phrase,omitempty"`
	Parameters       map[string]string `json:"parameters,omitempty"`
	Confidence       float64           `json:"confidence"`
	Reasoning        string            `json:"reasoning"`
}
