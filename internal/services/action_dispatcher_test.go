package services

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"tasknest/internal/models"
)

type dispatcherStore struct {
	created      []*models.Task
	completed    []primitive.ObjectID
	completeRet  bool
	priorities   map[primitive.ObjectID]models.TaskPriority
	dueDates     map[primitive.ObjectID]time.Time
	reminders    map[primitive.ObjectID]time.Time
	owners       map[primitive.ObjectID]string
	lists        map[primitive.ObjectID]primitive.ObjectID
	deleted      []primitive.ObjectID
	merged       [][2]primitive.ObjectID
	createdLists []string
}

func newDispatcherStore() *dispatcherStore {
	return &dispatcherStore{
		completeRet: true,
		priorities:  map[primitive.ObjectID]models.TaskPriority{},
		dueDates:    map[primitive.ObjectID]time.Time{},
		reminders:   map[primitive.ObjectID]time.Time{},
		owners:      map[primitive.ObjectID]string{},
		lists:       map[primitive.ObjectID]primitive.ObjectID{},
	}
}

func (s *dispatcherStore) Create(ctx context.Context, task *models.Task) error {
	task.ID = primitive.NewObjectID()
	s.created = append(s.created, task)
	return nil
}

func (s *dispatcherStore) GetByID(ctx context.Context, spaceID, taskID primitive.ObjectID) (*models.Task, error) {
	return nil, ErrTaskGone
}

func (s *dispatcherStore) Complete(ctx context.Context, spaceID, taskID primitive.ObjectID) (bool, error) {
	s.completed = append(s.completed, taskID)
	return s.completeRet, nil
}

func (s *dispatcherStore) SetPriority(ctx context.Context, spaceID, taskID primitive.ObjectID, priority models.TaskPriority) error {
	s.priorities[taskID] = priority
	return nil
}

func (s *dispatcherStore) SetDueDate(ctx context.Context, spaceID, taskID primitive.ObjectID, due time.Time) error {
	s.dueDates[taskID] = due
	return nil
}

func (s *dispatcherStore) SetReminder(ctx context.Context, spaceID, taskID primitive.ObjectID, at time.Time) error {
	s.reminders[taskID] = at
	return nil
}

func (s *dispatcherStore) SetOwner(ctx context.Context, spaceID, taskID primitive.ObjectID, ownerID string) error {
	s.owners[taskID] = ownerID
	return nil
}

func (s *dispatcherStore) SetList(ctx context.Context, spaceID, taskID, listID primitive.ObjectID) error {
	s.lists[taskID] = listID
	return nil
}

func (s *dispatcherStore) Delete(ctx context.Context, spaceID, taskID primitive.ObjectID) error {
	s.deleted = append(s.deleted, taskID)
	return nil
}

func (s *dispatcherStore) Merge(ctx context.Context, spaceID, primaryID, duplicateID primitive.ObjectID) error {
	s.merged = append(s.merged, [2]primitive.ObjectID{primaryID, duplicateID})
	return nil
}

func (s *dispatcherStore) FindOrCreateList(ctx context.Context, spaceID primitive.ObjectID, name string) (*models.TaskList, error) {
	s.createdLists = append(s.createdLists, name)
	return &models.TaskList{ID: primitive.NewObjectID(), SpaceID: spaceID, Name: name}, nil
}

type fakePairing struct {
	partnerID   string
	partnerName string
	err         error
}

func (p *fakePairing) Partner(ctx context.Context, spaceID primitive.ObjectID, userID string) (string, string, error) {
	return p.partnerID, p.partnerName, p.err
}

func (p *fakePairing) ResolveByName(ctx context.Context, spaceID primitive.ObjectID, name string) (string, string, error) {
	return p.partnerID, p.partnerName, p.err
}

type fakeExpenses struct {
	logged []*models.Expense
}

func (e *fakeExpenses) LogExpense(ctx context.Context, expense *models.Expense) error {
	e.logged = append(e.logged, expense)
	return nil
}

func newTestDispatcher(store *dispatcherStore, pairing *fakePairing, expenses *fakeExpenses, clock clockwork.Clock) *ActionDispatcher {
	if pairing == nil {
		pairing = &fakePairing{err: ErrNotPaired}
	}
	if expenses == nil {
		expenses = &fakeExpenses{}
	}
	return NewActionDispatcher(store, pairing, expenses, nil, clock)
}

func dispatchReq(intent models.Intent, task *models.Task) *DispatchRequest {
	return &DispatchRequest{
		Intent:  intent,
		Task:    task,
		SpaceID: primitive.NewObjectID(),
		UserID:  "u1",
	}
}

func TestDispatchCompleteIdempotent(t *testing.T) {
	store := newDispatcherStore()
	store.completeRet = false // already complete
	dispatcher := newTestDispatcher(store, nil, nil, clockwork.NewFakeClock())
	task := makeTask("buy milk")

	session := &models.ConversationSession{State: models.SessionStateIdle}
	reply, err := dispatcher.Dispatch(context.Background(), session, dispatchReq(models.IntentComplete, &task))
	if err != nil {
		t.Fatalf("already-complete must be a no-op success, got %v", err)
	}
	if reply.Text != `"buy milk" was already done.` {
		t.Errorf("unexpected reply: %q", reply.Text)
	}
	if session.State != models.SessionStateIdle {
		t.Errorf("complete must never await confirmation")
	}
}

func TestDispatchSetPriority(t *testing.T) {
	cases := []struct {
		message string
		want    models.TaskPriority
	}{
		{"make it important", models.TaskPriorityHigh},
		{"make it low priority", models.TaskPriorityLow},
		{"make it urgent", models.TaskPriorityHigh},
	}
	for _, tc := range cases {
		t.Run(tc.message, func(t *testing.T) {
			store := newDispatcherStore()
			dispatcher := newTestDispatcher(store, nil, nil, clockwork.NewFakeClock())
			task := makeTask("taxes")

			req := dispatchReq(models.IntentSetPriority, &task)
			req.Message = tc.message
			session := &models.ConversationSession{State: models.SessionStateIdle}
			if _, err := dispatcher.Dispatch(context.Background(), session, req); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := store.priorities[task.ID]; got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
			if session.State != models.SessionStateIdle {
				t.Errorf("set_priority must apply immediately")
			}
		})
	}
}

func TestDispatchSetDueStagesPending(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC))
	store := newDispatcherStore()
	dispatcher := newTestDispatcher(store, nil, nil, clock)
	task := makeTask("file taxes")

	req := dispatchReq(models.IntentSetDue, &task)
	req.Parameters = map[string]string{"when": "tomorrow at 3pm"}
	session := &models.ConversationSession{State: models.SessionStateIdle}

	reply, err := dispatcher.Dispatch(context.Background(), session, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.State != models.SessionStateAwaitingConfirmation {
		t.Fatalf("expected awaiting confirmation, got %s", session.State)
	}
	if session.PendingAction == nil || session.PendingAction.Type != models.PendingSetDueDate {
		t.Fatalf("expected pending set_due_date, got %+v", session.PendingAction)
	}
	want := time.Date(2026, 3, 12, 15, 0, 0, 0, time.UTC)
	if !session.PendingAction.When.Equal(want) {
		t.Errorf("expected %v, got %v", want, *session.PendingAction.When)
	}
	if len(store.dueDates) != 0 {
		t.Errorf("due date must not be written before confirmation")
	}
	if reply.Text == "" {
		t.Errorf("expected a confirmation prompt")
	}
}

func TestDispatchSetDueTimeOnlyKeepsDate(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC))
	dispatcher := newTestDispatcher(newDispatcherStore(), nil, nil, clock)

	existing := time.Date(2026, 3, 20, 9, 0, 0, 0, time.UTC)
	task := makeTask("dentist")
	task.DueDate = &existing

	req := dispatchReq(models.IntentSetDue, &task)
	req.Parameters = map[string]string{"when": "at 5pm"}
	session := &models.ConversationSession{State: models.SessionStateIdle}

	if _, err := dispatcher.Dispatch(context.Background(), session, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 3, 20, 17, 0, 0, 0, time.UTC)
	if !session.PendingAction.When.Equal(want) {
		t.Errorf("time-only update must keep the existing day, got %v", *session.PendingAction.When)
	}
}

func TestDispatchSetDueUnparsable(t *testing.T) {
	dispatcher := newTestDispatcher(newDispatcherStore(), nil, nil, clockwork.NewFakeClock())
	task := makeTask("dentist")

	req := dispatchReq(models.IntentSetDue, &task)
	req.Parameters = map[string]string{"when": "whenever you feel like it maybe"}
	session := &models.ConversationSession{State: models.SessionStateIdle}

	reply, err := dispatcher.Dispatch(context.Background(), session, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.PendingAction != nil {
		t.Errorf("unparsable time must not stage an action")
	}
	if reply.Text == "" {
		t.Errorf("expected a clarification reply")
	}
}

func TestDispatchDeleteStagesPending(t *testing.T) {
	store := newDispatcherStore()
	dispatcher := newTestDispatcher(store, nil, nil, clockwork.NewFakeClock())
	task := makeTask("old chore")

	session := &models.ConversationSession{State: models.SessionStateIdle}
	if _, err := dispatcher.Dispatch(context.Background(), session, dispatchReq(models.IntentDelete, &task)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.PendingAction == nil || session.PendingAction.Type != models.PendingDelete {
		t.Fatalf("expected pending delete, got %+v", session.PendingAction)
	}
	if len(store.deleted) != 0 {
		t.Errorf("delete must wait for confirmation")
	}
}

func TestDispatchAssignUnpaired(t *testing.T) {
	dispatcher := newTestDispatcher(newDispatcherStore(), &fakePairing{err: ErrNotPaired}, nil, clockwork.NewFakeClock())
	task := makeTask("laundry")

	session := &models.ConversationSession{State: models.SessionStateIdle}
	reply, err := dispatcher.Dispatch(context.Background(), session, dispatchReq(models.IntentAssign, &task))
	if err != nil {
		t.Fatalf("unpaired must reply, not error: %v", err)
	}
	if session.PendingAction != nil {
		t.Errorf("unpaired assign must not stage an action")
	}
	if reply.Text == "" {
		t.Errorf("expected an explanation reply")
	}
}

func TestDispatchAssignStagesPending(t *testing.T) {
	pairing := &fakePairing{partnerID: "u2", partnerName: "Sam"}
	dispatcher := newTestDispatcher(newDispatcherStore(), pairing, nil, clockwork.NewFakeClock())
	task := makeTask("laundry")

	session := &models.ConversationSession{State: models.SessionStateIdle}
	reply, err := dispatcher.Dispatch(context.Background(), session, dispatchReq(models.IntentAssign, &task))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := session.PendingAction
	if p == nil || p.Type != models.PendingAssign || p.AssigneeID != "u2" {
		t.Fatalf("expected pending assign to u2, got %+v", p)
	}
	if reply.Text != `Hand "laundry" to Sam? (yes/no)` {
		t.Errorf("unexpected prompt: %q", reply.Text)
	}
}

func TestDispatchMoveImmediate(t *testing.T) {
	store := newDispatcherStore()
	dispatcher := newTestDispatcher(store, nil, nil, clockwork.NewFakeClock())
	task := makeTask("buy decorations")

	req := dispatchReq(models.IntentMove, &task)
	req.Parameters = map[string]string{"list": "Party"}
	session := &models.ConversationSession{State: models.SessionStateIdle}

	if _, err := dispatcher.Dispatch(context.Background(), session, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.createdLists) != 1 || store.createdLists[0] != "Party" {
		t.Errorf("expected find-or-create of Party list, got %v", store.createdLists)
	}
	if _, ok := store.lists[task.ID]; !ok {
		t.Errorf("expected task moved immediately")
	}
}

func TestDispatchExpense(t *testing.T) {
	expenses := &fakeExpenses{}
	dispatcher := newTestDispatcher(newDispatcherStore(), nil, expenses, clockwork.NewFakeClock())

	req := dispatchReq(models.IntentExpense, nil)
	req.Message = "12.50 groceries"
	session := &models.ConversationSession{State: models.SessionStateIdle}

	if _, err := dispatcher.Dispatch(context.Background(), session, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(expenses.logged) != 1 {
		t.Fatalf("expected one logged expense")
	}
	if expenses.logged[0].Amount != 12.50 || expenses.logged[0].Note != "groceries" {
		t.Errorf("bad parse: %+v", expenses.logged[0])
	}
}

func TestDispatchCreateUrgent(t *testing.T) {
	store := newDispatcherStore()
	dispatcher := newTestDispatcher(store, nil, nil, clockwork.NewFakeClock())

	req := dispatchReq(models.IntentCreate, nil)
	req.Message = "call mom"
	req.Urgent = true
	session := &models.ConversationSession{State: models.SessionStateIdle}

	if _, err := dispatcher.Dispatch(context.Background(), session, req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected one created task")
	}
	if store.created[0].Priority != models.TaskPriorityHigh {
		t.Errorf("urgent create must be high priority")
	}
}
