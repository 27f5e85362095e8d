package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"tasknest/internal/models"
)

type fakeSearcher struct {
	hybridHits []ScoredTask
	hybridErr  error
	active     []models.Task
	activeErr  error

	lastVec    []float32
	lastWeight float64
}

func (f *fakeSearcher) HybridSearch(ctx context.Context, spaceID primitive.ObjectID, query string, queryVec []float32, vectorWeight float64, limit int) ([]ScoredTask, error) {
	f.lastVec = queryVec
	f.lastWeight = vectorWeight
	return f.hybridHits, f.hybridErr
}

func (f *fakeSearcher) ListActive(ctx context.Context, spaceID primitive.ObjectID, limit int) ([]models.Task, error) {
	return f.active, f.activeErr
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

func makeTask(summary string) models.Task {
	return models.Task{ID: primitive.NewObjectID(), Summary: summary}
}

func TestLocateHybridTier(t *testing.T) {
	want := makeTask("buy groceries")
	store := &fakeSearcher{hybridHits: []ScoredTask{{Task: want, Score: 0.9}}}
	embedder := &fakeEmbedder{vec: []float32{0.1, 0.2}}
	locator := NewTaskLocator(store, embedder, 0.7, 0)

	hits := locator.Locate(context.Background(), primitive.NewObjectID(), "groceries")
	if len(hits) != 1 || hits[0].Task.ID != want.ID {
		t.Fatalf("expected hybrid hit, got %v", hits)
	}
	if store.lastWeight != 0.7 {
		t.Errorf("expected vector weight 0.7, got %v", store.lastWeight)
	}
	if len(store.lastVec) != 2 {
		t.Errorf("expected query vector to reach the store, got %v", store.lastVec)
	}
}

func TestLocateFallsBackToLexicalWhenEmbeddingFails(t *testing.T) {
	want := makeTask("call the plumber")
	store := &fakeSearcher{hybridHits: []ScoredTask{{Task: want, Score: 0.5}}}
	embedder := &fakeEmbedder{err: errors.New("provider down")}
	locator := NewTaskLocator(store, embedder, 0.7, 0)

	hits := locator.Locate(context.Background(), primitive.NewObjectID(), "plumber")
	if len(hits) != 1 {
		t.Fatalf("expected lexical hit, got %v", hits)
	}
	if store.lastWeight != 0 {
		t.Errorf("expected lexical-only search (weight 0), got %v", store.lastWeight)
	}
	if store.lastVec != nil {
		t.Errorf("expected no query vector, got %v", store.lastVec)
	}
}

func TestLocateFallsBackToKeywordScanWhenSearchFails(t *testing.T) {
	store := &fakeSearcher{
		hybridErr: errors.New("backend unavailable"),
		active: []models.Task{
			makeTask("pick up dry cleaning"),
			makeTask("water the plants"),
			makeTask("book dentist appointment"),
		},
	}
	locator := NewTaskLocator(store, &fakeEmbedder{vec: []float32{1}}, 0.7, 0)

	hits := locator.Locate(context.Background(), primitive.NewObjectID(), "the dentist")
	if len(hits) != 1 {
		t.Fatalf("expected one keyword hit, got %d", len(hits))
	}
	if hits[0].Task.Summary != "book dentist appointment" {
		t.Errorf("wrong hit: %q", hits[0].Task.Summary)
	}
}

func TestKeywordScanPrefersWholeWordOverSubstring(t *testing.T) {
	store := &fakeSearcher{
		hybridErr: errors.New("down"),
		active: []models.Task{
			makeTask("renew carpool pass"), // "car" only as substring
			makeTask("wash the car"),       // "car" as whole word
		},
	}
	locator := NewTaskLocator(store, nil, 0, 0)

	hits := locator.Locate(context.Background(), primitive.NewObjectID(), "car")
	if len(hits) != 1 {
		t.Fatalf("keyword tier must return only the best match, got %d", len(hits))
	}
	if hits[0].Task.Summary != "wash the car" {
		t.Errorf("whole-word match must win, got %q", hits[0].Task.Summary)
	}
}

func TestKeywordScanIgnoresStopwords(t *testing.T) {
	// "the" must not score: otherwise "water the plants" ties with the
	// dentist task and wins on list order.
	store := &fakeSearcher{
		hybridErr: errors.New("down"),
		active: []models.Task{
			makeTask("water the plants"),
			makeTask("book dentist appointment"),
		},
	}
	locator := NewTaskLocator(store, nil, 0, 0)

	hits := locator.Locate(context.Background(), primitive.NewObjectID(), "the dentist")
	if len(hits) != 1 {
		t.Fatalf("expected one keyword hit, got %d", len(hits))
	}
	if hits[0].Task.Summary != "book dentist appointment" {
		t.Errorf("wrong hit: %q", hits[0].Task.Summary)
	}

	if hits := locator.Locate(context.Background(), primitive.NewObjectID(), "the"); len(hits) != 0 {
		t.Errorf("stopword-only phrase must match nothing, got %v", hits)
	}
}

func TestKeywordScanDropsNonMatches(t *testing.T) {
	store := &fakeSearcher{
		hybridErr: errors.New("down"),
		active:    []models.Task{makeTask("water the plants")},
	}
	locator := NewTaskLocator(store, nil, 0, 0)

	hits := locator.Locate(context.Background(), primitive.NewObjectID(), "taxes")
	if len(hits) != 0 {
		t.Errorf("expected no hits, got %v", hits)
	}
}

// hangingSearcher simulates a search backend that never answers within the
// deadline.
type hangingSearcher struct {
	fakeSearcher
}

func (h *hangingSearcher) HybridSearch(ctx context.Context, spaceID primitive.ObjectID, query string, queryVec []float32, vectorWeight float64, limit int) ([]ScoredTask, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestLocateSearchTimeoutTriggersKeywordTier(t *testing.T) {
	store := &hangingSearcher{fakeSearcher{
		active: []models.Task{makeTask("book dentist appointment")},
	}}
	locator := NewTaskLocator(store, nil, 0, 10*time.Millisecond)

	hits := locator.Locate(context.Background(), primitive.NewObjectID(), "dentist")
	if len(hits) != 1 || hits[0].Task.Summary != "book dentist appointment" {
		t.Fatalf("expired search deadline must fall through to the keyword tier, got %v", hits)
	}
}

func TestLocateEmptyPhrase(t *testing.T) {
	locator := NewTaskLocator(&fakeSearcher{}, nil, 0, 0)
	if hits := locator.Locate(context.Background(), primitive.NewObjectID(), "   "); hits != nil {
		t.Errorf("expected nil for blank phrase, got %v", hits)
	}
}
