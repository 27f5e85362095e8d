package services

import (
	"context"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"tasknest/internal/models"
)

const (
	locatorLimit        = 5
	keywordScanLimit    = 200
	keywordMinTokenLen  = 2
	keywordWordHitScore = 2.0
	keywordSubHitScore  = 1.0
)

// keywordStopwords are query tokens that carry no signal about which task
// is meant. Without this filter "the dentist" would score "water the
// plants" as high as "book dentist appointment".
var keywordStopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "at": true,
	"do": true, "for": true, "in": true, "is": true, "it": true,
	"me": true, "my": true, "of": true, "on": true, "or": true,
	"our": true, "that": true, "the": true, "this": true, "to": true,
	"up": true, "we": true, "with": true, "your": true,
}

// taskSearcher is the slice of TaskStore the locator needs.
type taskSearcher interface {
	HybridSearch(ctx context.Context, spaceID primitive.ObjectID, query string, queryVec []float32, vectorWeight float64, limit int) ([]ScoredTask, error)
	ListActive(ctx context.Context, spaceID primitive.ObjectID, limit int) ([]models.Task, error)
}

// embedder produces query vectors for the semantic half of search.
type embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// TaskLocator finds tasks by free-text phrase. It degrades through three
// tiers: hybrid (vector + lexical) search, lexical-only search when the
// embedding provider is unavailable, and an in-process keyword scan when
// the search backend itself fails. It never returns an error to callers;
// exhausting all tiers yields an empty result.
type TaskLocator struct {
	store         taskSearcher
	embedder      embedder
	vectorWeight  float64
	searchTimeout time.Duration
}

// NewTaskLocator creates a task locator. A zero searchTimeout leaves the
// search tiers unbounded.
func NewTaskLocator(store taskSearcher, embedder embedder, vectorWeight float64, searchTimeout time.Duration) *TaskLocator {
	return &TaskLocator{
		store:         store,
		embedder:      embedder,
		vectorWeight:  vectorWeight,
		searchTimeout: searchTimeout,
	}
}

// Locate returns active tasks matching the phrase, best first. The embed
// and search calls run under the locator's timeout; the keyword scan keeps
// the caller's context so an expired search deadline cannot poison it.
func (l *TaskLocator) Locate(parent context.Context, spaceID primitive.ObjectID, phrase string) []ScoredTask {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return nil
	}

	ctx := parent
	if l.searchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, l.searchTimeout)
		defer cancel()
	}

	queryVec, err := l.embedQuery(ctx, phrase)
	if err != nil {
		log.Printf("⚠️ [TASK-LOCATOR] Embedding unavailable, using lexical search only: %v", err)
	}

	weight := l.vectorWeight
	if len(queryVec) == 0 {
		weight = 0
	}

	hits, err := l.store.HybridSearch(ctx, spaceID, phrase, queryVec, weight, locatorLimit)
	if err != nil {
		log.Printf("⚠️ [TASK-LOCATOR] Search backend failed, falling back to keyword scan: %v", err)
		countSearchTier("keyword")
		return l.keywordScan(parent, spaceID, phrase)
	}

	if weight > 0 {
		countSearchTier("hybrid")
	} else {
		countSearchTier("lexical")
	}
	return hits
}

func (l *TaskLocator) embedQuery(ctx context.Context, phrase string) ([]float32, error) {
	if l.embedder == nil || l.vectorWeight <= 0 {
		return nil, nil
	}
	return l.embedder.Embed(ctx, phrase)
}

// keywordScan is the last-resort tier: it scores active tasks by content
// token overlap with the phrase and returns only the single best match.
// A token matching a whole word of the summary counts double a substring
// match; on a tie the earliest listed task wins.
func (l *TaskLocator) keywordScan(ctx context.Context, spaceID primitive.ObjectID, phrase string) []ScoredTask {
	tasks, err := l.store.ListActive(ctx, spaceID, keywordScanLimit)
	if err != nil {
		log.Printf("❌ [TASK-LOCATOR] Keyword scan could not list tasks: %v", err)
		return nil
	}

	var tokens []string
	for _, tok := range tokenize(phrase, keywordMinTokenLen) {
		if !keywordStopwords[tok] {
			tokens = append(tokens, tok)
		}
	}
	if len(tokens) == 0 {
		return nil
	}

	var best *ScoredTask
	for _, task := range tasks {
		summary := normalizeText(task.Summary)
		words := make(map[string]bool)
		for _, w := range tokenize(summary, 1) {
			words[w] = true
		}

		score := 0.0
		for _, tok := range tokens {
			switch {
			case words[tok]:
				score += keywordWordHitScore
			case strings.Contains(summary, tok):
				score += keywordSubHitScore
			}
		}
		if score > 0 && (best == nil || score > best.Score) {
			best = &ScoredTask{Task: task, Score: score}
		}
	}

	if best == nil {
		return nil
	}
	return []ScoredTask{*best}
}
