package services

import (
	"strings"
	"testing"

	"tasknest/internal/models"
)

func TestParseClassifiedIntent(t *testing.T) {
	raw := `{"intent":"complete","target_id":"","target_name_phrase":"the milk","parameters":{},"confidence":0.92,"reasoning":"user says done"}`

	result, err := parseClassifiedIntent(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Intent != models.IntentComplete {
		t.Errorf("expected complete, got %s", result.Intent)
	}
	if result.TargetNamePhrase != "the milk" {
		t.Errorf("expected target phrase, got %q", result.TargetNamePhrase)
	}
}

func TestParseClassifiedIntentWithCodeFences(t *testing.T) {
	raw := "```json\n{\"intent\":\"chat\",\"confidence\":0.8,\"reasoning\":\"small talk\"}\n```"

	result, err := parseClassifiedIntent(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Intent != models.IntentChat {
		t.Errorf("expected chat, got %s", result.Intent)
	}
}

func TestParseClassifiedIntentRejectsGarbage(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"prose", "I think the user wants to complete a task."},
		{"unknown intent", `{"intent":"destroy","confidence":0.9,"reasoning":"x"}`},
		{"confidence out of range", `{"intent":"chat","confidence":1.5,"reasoning":"x"}`},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := parseClassifiedIntent(tc.raw); err == nil {
				t.Errorf("expected error for %q", tc.raw)
			}
		})
	}
}

func TestBuildClassifyPromptCapsContext(t *testing.T) {
	cc := &ClassifierContext{
		History: make([]models.HistoryMessage, 10),
		Skills:  []string{"reminders"},
	}
	for i := range cc.History {
		cc.History[i] = models.HistoryMessage{Role: "user", Content: "msg"}
	}

	prompt, err := buildClassifyPrompt("hello", cc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Bounded history: only the last 6 turns travel.
	if got := countOccurrences(prompt, `"content":"msg"`); got != models.MaxHistoryMessages {
		t.Errorf("expected %d history turns in prompt, got %d", models.MaxHistoryMessages, got)
	}
}

func TestBuildClassifyPromptCarriesLanguage(t *testing.T) {
	prompt, err := buildClassifyPrompt("compra leche", &ClassifierContext{Language: "spa"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(prompt, `"message_language":"spa"`) {
		t.Errorf("detected language missing from prompt: %s", prompt)
	}

	prompt, err = buildClassifyPrompt("hi", &ClassifierContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(prompt, "message_language") {
		t.Errorf("unreliable detection must be omitted, got %s", prompt)
	}
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
			i += len(sub) - 1
		}
	}
	return count
}
