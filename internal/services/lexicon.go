package services

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"tasknest/internal/models"
)

// LexRule is one pattern→intent rule. Rules are evaluated top to bottom,
// first match wins, so order inside a bank is part of the contract.
type LexRule struct {
	Name    string
	Pattern *regexp.Regexp
	Intent  models.Intent
	// TargetGroup / ParamGroups name the capture groups carrying the
	// target phrase and any extra parameters (priority text, date text,
	// assignee, destination list).
	TargetGroup int
	ParamGroups map[string]int
}

// Shortcut is a single-character message prefix that forces an intent.
type Shortcut struct {
	Prefix string
	Intent models.Intent
	Urgent bool
}

// Lexicon holds the compiled rule tables behind the lexical intent matcher.
// It is immutable after construction; hot reloads swap the whole value.
type Lexicon struct {
	Shortcuts        []Shortcut
	MergeCommand     *regexp.Regexp
	Question         *regexp.Regexp
	ActionRules      []LexRule
	ContextualSearch []LexRule
	SimpleSearch     []LexRule
	ChatRules        []LexRule
}

// lexiconFile is the YAML shape of an external lexicon override.
type lexiconFile struct {
	Shortcuts []struct {
		Prefix string `yaml:"prefix"`
		Intent string `yaml:"intent"`
		Urgent bool   `yaml:"urgent"`
	} `yaml:"shortcuts"`
	Actions []struct {
		Name    string         `yaml:"name"`
		Pattern string         `yaml:"pattern"`
		Intent  string         `yaml:"intent"`
		Target  int            `yaml:"target_group"`
		Params  map[string]int `yaml:"param_groups"`
	} `yaml:"actions"`
}

// DefaultLexicon returns the compiled-in rule tables.
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		Shortcuts: []Shortcut{
			{Prefix: "!", Intent: models.IntentCreate, Urgent: true},
			{Prefix: "?", Intent: models.IntentSearch},
			{Prefix: ".", Intent: models.IntentChat},
			{Prefix: "$", Intent: models.IntentExpense},
			{Prefix: "@", Intent: models.IntentAssign},
		},

		MergeCommand: regexp.MustCompile(`(?i)^merge(?:\s+(?:them|those|last\s+two))?$`),

		Question: regexp.MustCompile(`(?i)(?:^(?:what|who|when|where|which|why|how|do|does|did|is|are|can|could|should)\b|\?\s*$)`),

		ActionRules: []LexRule{
			{
				Name:        "complete-done-with",
				Pattern:     regexp.MustCompile(`(?i)^(?:done with|finished(?: with)?|completed|i did|mark off|check off|tick off)\s+(?:the\s+)?(.+)$`),
				Intent:      models.IntentComplete,
				TargetGroup: 1,
			},
			{
				Name:        "complete-is-done",
				Pattern:     regexp.MustCompile(`(?i)^(?:the\s+)?(.+?)\s+(?:is|are)\s+(?:done|finished|complete)$`),
				Intent:      models.IntentComplete,
				TargetGroup: 1,
			},
			{
				Name:        "priority-make",
				Pattern:     regexp.MustCompile(`(?i)^(?:make|set|mark)\s+(?:the\s+)?(.+?)\s+(?:as\s+)?(high priority|low priority|important|urgent|top priority|not important|low)$`),
				Intent:      models.IntentSetPriority,
				TargetGroup: 1,
				ParamGroups: map[string]int{"priority": 2},
			},
			{
				Name:        "due-set",
				Pattern:     regexp.MustCompile(`(?i)^(?:set\s+)?(?:the\s+)?due(?:\s+date)?\s+(?:for|of|on)?\s*(.+?)\s+(?:to|for|on)\s+(.+)$`),
				Intent:      models.IntentSetDue,
				TargetGroup: 1,
				ParamGroups: map[string]int{"when": 2},
			},
			{
				Name:        "due-is-due",
				Pattern:     regexp.MustCompile(`(?i)^(?:the\s+)?(.+?)\s+(?:is|are)\s+due\s+(.+)$`),
				Intent:      models.IntentSetDue,
				TargetGroup: 1,
				ParamGroups: map[string]int{"when": 2},
			},
			{
				Name:        "assign-to",
				Pattern:     regexp.MustCompile(`(?i)^(?:assign|give|hand)\s+(?:the\s+)?(.+?)\s+to\s+(.+)$`),
				Intent:      models.IntentAssign,
				TargetGroup: 1,
				ParamGroups: map[string]int{"assignee": 2},
			},
			{
				Name:        "delete",
				Pattern:     regexp.MustCompile(`(?i)^(?:delete|remove|drop|scrap|forget about)\s+(?:the\s+)?(?:task\s+)?(.+)$`),
				Intent:      models.IntentDelete,
				TargetGroup: 1,
			},
			{
				Name:        "move-to-list",
				Pattern:     regexp.MustCompile(`(?i)^move\s+(?:the\s+)?(.+?)\s+(?:to|into)\s+(?:the\s+)?(.+?)(?:\s+list)?$`),
				Intent:      models.IntentMove,
				TargetGroup: 1,
				ParamGroups: map[string]int{"list": 2},
			},
			{
				Name:        "remind",
				Pattern:     regexp.MustCompile(`(?i)^remind\s+(?:me\s+)?(?:about\s+|of\s+|to\s+)?(.+?)\s+((?:at|in|on|next|this)\s+.+|tomorrow.*|today.*|tonight.*)$`),
				Intent:      models.IntentRemind,
				TargetGroup: 1,
				ParamGroups: map[string]int{"when": 2},
			},
		},

		ContextualSearch: []LexRule{
			{
				Name:    "contextual-followup",
				Pattern: regexp.MustCompile(`(?i)^(?:what about|how about|and)\b`),
				Intent:  models.IntentContextualAsk,
			},
			{
				Name:    "contextual-pronoun-question",
				Pattern: regexp.MustCompile(`(?i)\b(?:it|that|this|those|them)\b.*\?\s*$`),
				Intent:  models.IntentContextualAsk,
			},
		},

		SimpleSearch: []LexRule{
			{
				Name:        "search-verb",
				Pattern:     regexp.MustCompile(`(?i)^(?:find|search(?: for)?|look up|show(?: me)?|list)\s+(.+)$`),
				Intent:      models.IntentSearch,
				TargetGroup: 1,
			},
			{
				Name:    "search-question",
				Pattern: regexp.MustCompile(`(?i)^(?:what|where|when|which|do (?:i|we) have|is there)\b`),
				Intent:  models.IntentSearch,
			},
		},

		ChatRules: []LexRule{
			{
				Name:    "chat-greeting",
				Pattern: regexp.MustCompile(`(?i)^(?:hi|hiya|hello|hey|yo|good (?:morning|afternoon|evening|night))\b[\s!.]*$`),
				Intent:  models.IntentChat,
			},
			{
				Name:    "chat-thanks",
				Pattern: regexp.MustCompile(`(?i)^(?:thanks|thank you|thx|ty|cheers|great|awesome|nice|ok|okay|cool)\b[\s!.]*$`),
				Intent:  models.IntentChat,
			},
		},
	}
}

// LexiconService owns the active lexicon and hot-reloads it when the
// override file changes. Without an override file it serves the defaults.
type LexiconService struct {
	mu      sync.RWMutex
	current *Lexicon
	path    string
	watcher *fsnotify.Watcher
}

// NewLexiconService creates the service, loading path when given.
func NewLexiconService(path string) (*LexiconService, error) {
	s := &LexiconService{current: DefaultLexicon(), path: path}
	if path == "" {
		return s, nil
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️ [LEXICON] Watcher unavailable, hot reload disabled: %v", err)
		return s, nil
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		log.Printf("⚠️ [LEXICON] Cannot watch %s: %v", path, err)
		watcher.Close()
		return s, nil
	}
	s.watcher = watcher
	go s.watch()

	return s, nil
}

// Current returns the active lexicon.
func (s *LexiconService) Current() *Lexicon {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Close stops the file watcher.
func (s *LexiconService) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *LexiconService) watch() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Name != s.path || !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
				continue
			}
			if err := s.load(); err != nil {
				log.Printf("⚠️ [LEXICON] Reload failed, keeping previous tables: %v", err)
				continue
			}
			log.Printf("🔄 [LEXICON] Reloaded rule tables from %s", s.path)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("⚠️ [LEXICON] Watcher error: %v", err)
		}
	}
}

// load merges the YAML override over the defaults and swaps the lexicon in.
func (s *LexiconService) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read lexicon file: %w", err)
	}

	var file lexiconFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse lexicon YAML: %w", err)
	}

	lex := DefaultLexicon()

	if len(file.Shortcuts) > 0 {
		lex.Shortcuts = lex.Shortcuts[:0]
		for _, sc := range file.Shortcuts {
			intent := models.Intent(sc.Intent)
			if !models.ValidIntents[intent] {
				return fmt.Errorf("shortcut %q: unknown intent %q", sc.Prefix, sc.Intent)
			}
			lex.Shortcuts = append(lex.Shortcuts, Shortcut{Prefix: sc.Prefix, Intent: intent, Urgent: sc.Urgent})
		}
	}

	if len(file.Actions) > 0 {
		lex.ActionRules = lex.ActionRules[:0]
		for _, a := range file.Actions {
			re, err := regexp.Compile(a.Pattern)
			if err != nil {
				return fmt.Errorf("action rule %q: %w", a.Name, err)
			}
			intent := models.Intent(a.Intent)
			if !models.ValidIntents[intent] {
				return fmt.Errorf("action rule %q: unknown intent %q", a.Name, a.Intent)
			}
			lex.ActionRules = append(lex.ActionRules, LexRule{
				Name:        a.Name,
				Pattern:     re,
				Intent:      intent,
				TargetGroup: a.Target,
				ParamGroups: a.Params,
			})
		}
	}

	s.mu.Lock()
	s.current = lex
	s.mu.Unlock()
	return nil
}
