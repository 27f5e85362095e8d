package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"tasknest/internal/config"
	"tasknest/internal/models"
)

// ConfidenceThreshold is the hard gate below which an AI classification is
// discarded in favor of the lexical matcher. The boundary is inclusive: a
// result at exactly 0.5 is trusted.
const ConfidenceThreshold = 0.5

// Context caps for the classification prompt.
const (
	maxContextTasks    = 30
	maxContextMemories = 10
	maxOutboundContext = 3
)

const classifySystemPrompt = `You classify a single chat message sent to a shared task assistant.

Return ONLY a JSON object, no markdown, with this exact shape:
{
  "intent": one of "create","search","contextual_ask","complete","set_priority","set_due","remind","delete","move","assign","merge","expense","chat",
  "target_id": id of the task acted on, from the active task list, or "",
  "target_name_phrase": the words in the message referring to that task, or "",
  "parameters": {"priority": "...", "when": "...", "assignee": "...", "list": "...", "amount": "..."} with only the keys that apply,
  "confidence": your certainty from 0.0 to 1.0,
  "reasoning": one short sentence
}

Rules:
- "complete" only when the user says something is finished or done.
- "set_due"/"remind" when the message attaches a date or time to an existing task.
- "assign" when a task is handed to the partner.
- "expense" when the message records money spent.
- Questions about stored tasks are "search"; questions needing the task list plus reasoning are "contextual_ask".
- Anything that is simply a new thing to do is "create".
- If the message is small talk with no task content, use "chat".`

// ClassifierContext is everything the AI classifier sees besides the message.
type ClassifierContext struct {
	History        []models.HistoryMessage
	RecentOutbound []models.OutboundMessage
	ActiveTasks    []models.Task
	Memories       []string
	Skills         []string
	// Language is the detected ISO 639-3 code of the message, "" when
	// detection was unreliable.
	Language string
}

// IntentClassifier wraps the LLM call that classifies inbound messages.
// Every failure mode (timeout, quota, malformed output, low confidence)
// surfaces as an error; the router falls back to the lexical matcher.
type IntentClassifier struct {
	llm   *LLMService
	model string
}

// NewIntentClassifier creates the AI intent classifier.
func NewIntentClassifier(llm *LLMService, cfg *config.Config) *IntentClassifier {
	return &IntentClassifier{llm: llm, model: cfg.ClassifyModel}
}

// Classify asks the model to classify the message. The returned intent has
// passed shape validation; the caller applies the confidence gate.
func (c *IntentClassifier) Classify(ctx context.Context, message string, cc *ClassifierContext) (*models.ClassifiedIntent, error) {
	userPrompt, err := buildClassifyPrompt(message, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to build classification context: %w", err)
	}

	messages := []map[string]interface{}{
		{"role": "system", "content": classifySystemPrompt},
		{"role": "user", "content": userPrompt},
	}

	raw, err := c.llm.ChatCompletionSync(ctx, c.model, messages)
	if err != nil {
		return nil, fmt.Errorf("classification call failed: %w", err)
	}

	return parseClassifiedIntent(raw)
}

func buildClassifyPrompt(message string, cc *ClassifierContext) (string, error) {
	type taskLine struct {
		ID      string `json:"id"`
		Summary string `json:"summary"`
	}

	payload := map[string]interface{}{"message": message}
	if cc.Language != "" {
		payload["message_language"] = cc.Language
	}

	if n := len(cc.History); n > 0 {
		history := cc.History
		if n > models.MaxHistoryMessages {
			history = history[n-models.MaxHistoryMessages:]
		}
		turns := make([]map[string]string, 0, len(history))
		for _, h := range history {
			turns = append(turns, map[string]string{"role": h.Role, "content": h.Content})
		}
		payload["conversation_history"] = turns
	}

	if len(cc.RecentOutbound) > 0 {
		outbound := cc.RecentOutbound
		if len(outbound) > maxOutboundContext {
			outbound = outbound[:maxOutboundContext]
		}
		snippets := make([]string, 0, len(outbound))
		for _, m := range outbound {
			snippets = append(snippets, fmt.Sprintf("[%s] %s", m.Type, truncateString(m.Content, 200)))
		}
		payload["recent_assistant_messages"] = snippets
	}

	if len(cc.ActiveTasks) > 0 {
		tasks := cc.ActiveTasks
		if len(tasks) > maxContextTasks {
			tasks = tasks[:maxContextTasks]
		}
		lines := make([]taskLine, 0, len(tasks))
		for _, t := range tasks {
			lines = append(lines, taskLine{ID: t.ID.Hex(), Summary: t.Summary})
		}
		payload["active_tasks"] = lines
	}

	if len(cc.Memories) > 0 {
		memories := cc.Memories
		if len(memories) > maxContextMemories {
			memories = memories[:maxContextMemories]
		}
		payload["memories"] = memories
	}
	if len(cc.Skills) > 0 {
		payload["activated_skills"] = cc.Skills
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// parseClassifiedIntent decodes the model output into a validated
// ClassifiedIntent. Markdown fences around the JSON are tolerated, any
// other deviation from the schema is an error.
func parseClassifiedIntent(raw string) (*models.ClassifiedIntent, error) {
	cleaned := stripCodeFences(raw)

	var result models.ClassifiedIntent
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("malformed classifier output: %w", err)
	}

	if !models.ValidIntents[result.Intent] {
		return nil, fmt.Errorf("unknown intent %q", result.Intent)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return nil, fmt.Errorf("confidence %v outside [0,1]", result.Confidence)
	}
	return &result, nil
}

// stripCodeFences removes a surrounding ```json ... ``` block if present.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
