package services

import (
	"strings"

	"tasknest/internal/models"
)

// IntentMatcher is the pattern-based fallback classifier. It is pure: no
// I/O, no state beyond the rule tables, total over all inputs. The router
// leans on it whenever the AI classifier fails or reports low confidence,
// so it must never error and never panic.
type IntentMatcher struct {
	lexicons *LexiconService
}

// NewIntentMatcher creates a matcher backed by the given lexicon service.
func NewIntentMatcher(lexicons *LexiconService) *IntentMatcher {
	return &IntentMatcher{lexicons: lexicons}
}

// ClassifyLexically maps normalized message text to an intent by fixed
// priority: shortcut prefixes, the merge command, task-action patterns
// (guarded against questions), search patterns, chat detectors, and finally
// the create default.
func (m *IntentMatcher) ClassifyLexically(text string, hasAttachment bool) models.IntentResult {
	lex := m.lexicons.Current()
	trimmed := strings.TrimSpace(text)

	// An attachment with no caption is a note to ingest.
	if trimmed == "" {
		return models.IntentResult{Intent: models.IntentCreate, Message: ""}
	}

	// (a) shortcut prefixes: label removed, remainder is the message body
	for _, sc := range lex.Shortcuts {
		if strings.HasPrefix(trimmed, sc.Prefix) {
			body := strings.TrimSpace(trimmed[len(sc.Prefix):])
			res := models.IntentResult{Intent: sc.Intent, Message: body, Urgent: sc.Urgent}
			// The body names what to find or act on: "?buy" searches
			// for "buy", "@walk the dog" hands that task over.
			if sc.Intent == models.IntentSearch || sc.Intent.NeedsTarget() {
				res.TargetPhrase = body
			}
			return res
		}
	}

	// (b) exact merge command
	if lex.MergeCommand.MatchString(trimmed) {
		return models.IntentResult{Intent: models.IntentMerge, Message: trimmed}
	}

	// (c) task-action bank, first match wins. Questions never mutate:
	// "did I finish the taxes?" is a search, not a completion.
	if !lex.Question.MatchString(trimmed) {
		for _, rule := range lex.ActionRules {
			if res, ok := applyRule(rule, trimmed); ok {
				return res
			}
		}
	}

	// (d) contextual search before simple search: follow-ups referencing
	// prior context must keep their pronouns for the entity resolver.
	for _, rule := range lex.ContextualSearch {
		if res, ok := applyRule(rule, trimmed); ok {
			return res
		}
	}
	for _, rule := range lex.SimpleSearch {
		if res, ok := applyRule(rule, trimmed); ok {
			if res.TargetPhrase == "" {
				res.TargetPhrase = trimmed
			}
			return res
		}
	}

	// (e) conversational chat. Skipped for attachments: a caption that
	// reads like small talk still describes the attached note.
	if hasAttachment {
		return models.IntentResult{Intent: models.IntentCreate, Message: trimmed}
	}
	for _, rule := range lex.ChatRules {
		if res, ok := applyRule(rule, trimmed); ok {
			return res
		}
	}

	// (f) default: treat as a new note/task
	return models.IntentResult{Intent: models.IntentCreate, Message: trimmed}
}

// applyRule matches one rule and extracts its captures.
func applyRule(rule LexRule, text string) (models.IntentResult, bool) {
	match := rule.Pattern.FindStringSubmatch(text)
	if match == nil {
		return models.IntentResult{}, false
	}

	res := models.IntentResult{Intent: rule.Intent, Message: text}
	if rule.TargetGroup > 0 && rule.TargetGroup < len(match) {
		res.TargetPhrase = strings.TrimSpace(match[rule.TargetGroup])
	}
	if len(rule.ParamGroups) > 0 {
		res.Parameters = make(map[string]string, len(rule.ParamGroups))
		for name, idx := range rule.ParamGroups {
			if idx > 0 && idx < len(match) {
				res.Parameters[name] = strings.TrimSpace(match[idx])
			}
		}
	}
	return res, true
}
