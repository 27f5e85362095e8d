package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"tasknest/internal/models"
)

type resolverFetcher struct {
	tasks map[primitive.ObjectID]*models.Task
}

func (f *resolverFetcher) GetByID(ctx context.Context, spaceID, taskID primitive.ObjectID) (*models.Task, error) {
	if task, ok := f.tasks[taskID]; ok {
		return task, nil
	}
	return nil, ErrTaskGone
}

type resolverLocator struct {
	hits    []ScoredTask
	queries []string
}

func (l *resolverLocator) Locate(ctx context.Context, spaceID primitive.ObjectID, phrase string) []ScoredTask {
	l.queries = append(l.queries, phrase)
	return l.hits
}

type resolverOutbound struct {
	messages []models.OutboundMessage
	err      error
}

func (o *resolverOutbound) Recent(ctx context.Context, userID string, limit int) ([]models.OutboundMessage, error) {
	return o.messages, o.err
}

func newTestResolver(fetcher *resolverFetcher, locator *resolverLocator, outbound *resolverOutbound, clock clockwork.Clock) *EntityResolver {
	if fetcher == nil {
		fetcher = &resolverFetcher{tasks: map[primitive.ObjectID]*models.Task{}}
	}
	if locator == nil {
		locator = &resolverLocator{}
	}
	if outbound == nil {
		outbound = &resolverOutbound{}
	}
	return NewEntityResolver(fetcher, locator, outbound, clock)
}

func displayedList(tasks ...*models.Task) []models.DisplayedListItem {
	items := make([]models.DisplayedListItem, len(tasks))
	for i, t := range tasks {
		items[i] = models.DisplayedListItem{TaskID: t.ID, Summary: t.Summary, Position: i + 1}
	}
	return items
}

func TestResolveOrdinal(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := makeTask("laundry")
	b := makeTask("groceries")
	c := makeTask("dishes")
	aa, bb, cc := a, b, c

	fetcher := &resolverFetcher{tasks: map[primitive.ObjectID]*models.Task{
		a.ID: &aa, b.ID: &bb, c.ID: &cc,
	}}
	session := &models.ConversationSession{}
	session.RememberList(displayedList(&aa, &bb, &cc), clock.Now())

	resolver := newTestResolver(fetcher, nil, nil, clock)
	task, err := resolver.Resolve(context.Background(), session, primitive.NewObjectID(), "u1", "", "the second one")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.ID != b.ID {
		t.Errorf("expected %q, got %q", b.Summary, task.Summary)
	}
}

func TestResolveOrdinalOutOfRange(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := makeTask("laundry")
	session := &models.ConversationSession{}
	session.RememberList(displayedList(&a), clock.Now())

	resolver := newTestResolver(nil, nil, nil, clock)
	_, err := resolver.Resolve(context.Background(), session, primitive.NewObjectID(), "u1", "", "the fifth one")
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestResolveOrdinalStaleList(t *testing.T) {
	clock := clockwork.NewFakeClock()
	a := makeTask("laundry")
	b := makeTask("groceries")
	aa, bb := a, b
	session := &models.ConversationSession{}
	session.RememberList(displayedList(&aa, &bb), clock.Now())

	clock.Advance(16 * time.Minute)

	resolver := newTestResolver(nil, nil, nil, clock)
	_, err := resolver.Resolve(context.Background(), session, primitive.NewObjectID(), "u1", "", "the second one")
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("stale list must not be indexed, got %v", err)
	}
}

func TestResolveDirectID(t *testing.T) {
	clock := clockwork.NewFakeClock()
	task := makeTask("call dentist")
	tt := task
	fetcher := &resolverFetcher{tasks: map[primitive.ObjectID]*models.Task{task.ID: &tt}}

	resolver := newTestResolver(fetcher, nil, nil, clock)
	got, err := resolver.Resolve(context.Background(), &models.ConversationSession{}, primitive.NewObjectID(), "u1", task.ID.Hex(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != task.ID {
		t.Errorf("expected direct id hit, got %q", got.Summary)
	}
}

func TestResolveWrongDirectIDFallsThrough(t *testing.T) {
	clock := clockwork.NewFakeClock()
	want := makeTask("water plants")
	locator := &resolverLocator{hits: []ScoredTask{{Task: want, Score: 2}}}

	resolver := newTestResolver(nil, locator, nil, clock)
	got, err := resolver.Resolve(context.Background(), &models.ConversationSession{}, primitive.NewObjectID(), "u1", primitive.NewObjectID().Hex(), "plants")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != want.ID {
		t.Errorf("expected semantic fallback hit, got %q", got.Summary)
	}
}

func TestResolvePronounUsesFreshEntity(t *testing.T) {
	clock := clockwork.NewFakeClock()
	task := makeTask("renew passport")
	tt := task
	fetcher := &resolverFetcher{tasks: map[primitive.ObjectID]*models.Task{task.ID: &tt}}
	locator := &resolverLocator{}

	session := &models.ConversationSession{}
	session.RememberEntity(&tt, clock.Now())
	clock.Advance(9 * time.Minute)

	resolver := newTestResolver(fetcher, locator, nil, clock)
	got, err := resolver.Resolve(context.Background(), session, primitive.NewObjectID(), "u1", "", "it")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != task.ID {
		t.Errorf("expected entity fallback hit, got %q", got.Summary)
	}
	if len(locator.queries) != 0 {
		t.Errorf("bare pronoun must skip semantic search, searched %v", locator.queries)
	}
}

func TestResolvePronounExpiredEntity(t *testing.T) {
	clock := clockwork.NewFakeClock()
	task := makeTask("renew passport")
	tt := task
	fetcher := &resolverFetcher{tasks: map[primitive.ObjectID]*models.Task{task.ID: &tt}}

	session := &models.ConversationSession{}
	session.RememberEntity(&tt, clock.Now())
	clock.Advance(11 * time.Minute)

	resolver := newTestResolver(fetcher, nil, nil, clock)
	_, err := resolver.Resolve(context.Background(), session, primitive.NewObjectID(), "u1", "", "it")
	if !errors.Is(err, ErrTaskTargetMissing) {
		t.Errorf("expired entity must not resolve, got %v", err)
	}
}

func TestResolveEntityFallbackSkipsCompleted(t *testing.T) {
	clock := clockwork.NewFakeClock()
	task := makeTask("renew passport")
	task.Completed = true
	tt := task
	fetcher := &resolverFetcher{tasks: map[primitive.ObjectID]*models.Task{task.ID: &tt}}

	session := &models.ConversationSession{}
	session.RememberEntity(&tt, clock.Now())

	resolver := newTestResolver(fetcher, nil, nil, clock)
	_, err := resolver.Resolve(context.Background(), session, primitive.NewObjectID(), "u1", "", "it")
	if !errors.Is(err, ErrTaskTargetMissing) {
		t.Errorf("completed entity must not resolve, got %v", err)
	}
}

func TestResolveFromOutboundReminder(t *testing.T) {
	clock := clockwork.NewFakeClock()
	want := makeTask("water the plants")
	locator := &resolverLocator{hits: []ScoredTask{{Task: want, Score: 2}}}
	outbound := &resolverOutbound{messages: []models.OutboundMessage{
		{Type: models.OutboundReminder, Content: `Reminder: "water the plants"`},
	}}

	resolver := newTestResolver(nil, locator, outbound, clock)
	got, err := resolver.Resolve(context.Background(), &models.ConversationSession{}, primitive.NewObjectID(), "u1", "", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != want.ID {
		t.Errorf("expected outbound-context hit, got %q", got.Summary)
	}
	if len(locator.queries) != 1 || locator.queries[0] != "water the plants" {
		t.Errorf("expected extracted phrase search, got %v", locator.queries)
	}
}

func TestResolveNoReferenceNoContext(t *testing.T) {
	clock := clockwork.NewFakeClock()
	resolver := newTestResolver(nil, nil, nil, clock)
	_, err := resolver.Resolve(context.Background(), &models.ConversationSession{}, primitive.NewObjectID(), "u1", "", "")
	if !errors.Is(err, ErrTaskTargetMissing) {
		t.Errorf("expected ErrTaskTargetMissing, got %v", err)
	}
}

func TestResolvePhraseNotFound(t *testing.T) {
	clock := clockwork.NewFakeClock()
	resolver := newTestResolver(nil, nil, nil, clock)
	_, err := resolver.Resolve(context.Background(), &models.ConversationSession{}, primitive.NewObjectID(), "u1", "", "the taxes")
	if !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestExtractTaskReferences(t *testing.T) {
	content := "Good morning! Today:\n1. Buy milk\n2. Call the bank\n- water plants"
	refs := extractTaskReferences(content)
	want := map[string]bool{"Buy milk": true, "Call the bank": true, "water plants": true}
	if len(refs) != 3 {
		t.Fatalf("expected 3 references, got %v", refs)
	}
	for _, r := range refs {
		if !want[r] {
			t.Errorf("unexpected reference %q", r)
		}
	}
}
