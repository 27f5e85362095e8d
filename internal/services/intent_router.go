package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"

	"tasknest/internal/config"
	"tasknest/internal/models"
	"tasknest/internal/presentation"
)

const (
	inboundDedupTTL   = 10 * time.Minute
	sessionLockTTL    = 30 * time.Second
	contextualLimit   = 10
	chatSystemPrompt  = `You are a warm, concise assistant for a shared to-do list between two partners. Keep replies to one or two sentences. Never invent tasks.`
	whichTaskReply    = "Which task do you mean?"
	retryLaterReply   = "Something went wrong on my end. Please try again in a moment."
	startOverReply    = "Let's start over. What would you like to do?"
	stillWorkingReply = "One sec, I'm still working on your previous message."
	mergeNeedsListMsg = "Show me the list first (try \"what's on the list\"), then ask me to merge."
)

// Narrow views of the collaborators, so the router can be exercised with
// fakes in tests.
type (
	sessionRepository interface {
		GetOrCreate(ctx context.Context, userID string) (*models.ConversationSession, error)
		Save(ctx context.Context, session *models.ConversationSession) error
	}

	aiClassifier interface {
		Classify(ctx context.Context, message string, cc *ClassifierContext) (*models.ClassifiedIntent, error)
	}

	lexicalClassifier interface {
		ClassifyLexically(text string, hasAttachment bool) models.IntentResult
	}

	entityResolving interface {
		Resolve(ctx context.Context, session *models.ConversationSession, spaceID primitive.ObjectID, userID, targetID, phrase string) (*models.Task, error)
	}

	actionRunner interface {
		Dispatch(ctx context.Context, session *models.ConversationSession, req *DispatchRequest) (*models.Reply, error)
	}

	confirmationHandler interface {
		Handle(ctx context.Context, session *models.ConversationSession, spaceID primitive.ObjectID, text string) (ConfirmationOutcome, *models.Reply)
	}

	routerTaskReader interface {
		ListActive(ctx context.Context, spaceID primitive.ObjectID, limit int) ([]models.Task, error)
		GetByID(ctx context.Context, spaceID, taskID primitive.ObjectID) (*models.Task, error)
	}

	contextSource interface {
		TopMemories(ctx context.Context, userID string, limit int) ([]string, error)
		ActivatedSkills(ctx context.Context, userID string) ([]string, error)
	}

	outboundSink interface {
		Append(ctx context.Context, userID string, msgType models.OutboundType, content string) error
		Recent(ctx context.Context, userID string, limit int) ([]models.OutboundMessage, error)
	}

	chatCompleter interface {
		ChatCompletionSync(ctx context.Context, model string, messages []map[string]interface{}) (string, error)
	}

	dedupGuard interface {
		SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	}

	lockGuard interface {
		AcquireLock(ctx context.Context, lockKey, lockValue string, expiration time.Duration) (bool, error)
		ReleaseLock(ctx context.Context, lockKey, lockValue string) (bool, error)
	}
)

// IntentRouter is the per-message orchestrator: confirmation short-circuit,
// AI classification with deterministic fallback, entity resolution and
// dispatch. One session read at the start, one write at the end.
type IntentRouter struct {
	sessions      sessionRepository
	classifier    aiClassifier
	matcher       lexicalClassifier
	resolver      entityResolving
	locator       phraseLocator
	dispatcher    actionRunner
	confirmations confirmationHandler
	tasks         routerTaskReader
	contexts      contextSource
	outbound      outboundSink
	llm           chatCompleter
	dedup         dedupGuard
	locks         lockGuard
	formatter     *presentation.Formatter
	clock         clockwork.Clock

	chatModel       string
	classifyTimeout time.Duration
}

// RouterDeps bundles the router's collaborators.
type RouterDeps struct {
	Sessions      sessionRepository
	Classifier    aiClassifier
	Matcher       lexicalClassifier
	Resolver      entityResolving
	Locator       phraseLocator
	Dispatcher    actionRunner
	Confirmations confirmationHandler
	Tasks         routerTaskReader
	Contexts      contextSource
	Outbound      outboundSink
	LLM           chatCompleter
	Dedup         dedupGuard
	Locks         lockGuard
	Formatter     *presentation.Formatter
	Clock         clockwork.Clock
}

// NewIntentRouter creates the router.
func NewIntentRouter(deps RouterDeps, cfg *config.Config) *IntentRouter {
	return &IntentRouter{
		sessions:        deps.Sessions,
		classifier:      deps.Classifier,
		matcher:         deps.Matcher,
		resolver:        deps.Resolver,
		locator:         deps.Locator,
		dispatcher:      deps.Dispatcher,
		confirmations:   deps.Confirmations,
		tasks:           deps.Tasks,
		contexts:        deps.Contexts,
		outbound:        deps.Outbound,
		llm:             deps.LLM,
		dedup:           deps.Dedup,
		locks:           deps.Locks,
		formatter:       deps.Formatter,
		clock:           deps.Clock,
		chatModel:       cfg.ChatModel,
		classifyTimeout: cfg.ClassifyTimeout,
	}
}

// HandleMessage processes one inbound message end to end and returns the
// reply to deliver. A nil reply with nil error means the message was a
// duplicate delivery and nothing should be sent.
func (r *IntentRouter) HandleMessage(ctx context.Context, msg *models.InboundMessage) (*models.Reply, error) {
	start := time.Now()

	if r.dedup != nil && msg.MessageID != "" {
		fresh, err := r.dedup.SetNX(ctx, "inbound:"+msg.MessageID, 1, inboundDedupTTL)
		if err != nil {
			log.Printf("⚠️ [ROUTER] Dedup check failed, processing anyway: %v", err)
		} else if !fresh {
			log.Printf("ℹ️ [ROUTER] Duplicate delivery of message %s dropped", msg.MessageID)
			return nil, nil
		}
	}

	// Serialize processing per user. Whoever holds the lock owns the
	// session document until the reply is out.
	if r.locks != nil {
		lockKey := "lock:user:" + msg.UserID
		token := uuid.NewString()
		held, err := r.locks.AcquireLock(ctx, lockKey, token, sessionLockTTL)
		switch {
		case err != nil:
			log.Printf("⚠️ [ROUTER] User lock unavailable, proceeding unserialized: %v", err)
		case !held:
			log.Printf("ℹ️ [ROUTER] Message from %s rejected, previous one still in flight", msg.UserID)
			return &models.Reply{Text: stillWorkingReply}, nil
		default:
			defer func() {
				if _, err := r.locks.ReleaseLock(ctx, lockKey, token); err != nil {
					log.Printf("⚠️ [ROUTER] Failed to release user lock: %v", err)
				}
			}()
		}
	}

	spaceID, err := primitive.ObjectIDFromHex(msg.SpaceID)
	if err != nil {
		return nil, fmt.Errorf("invalid space id %q: %w", msg.SpaceID, err)
	}

	session, err := r.sessions.GetOrCreate(ctx, msg.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	reply := r.process(ctx, session, spaceID, msg)

	now := r.clock.Now()
	session.AppendHistory("user", msg.Text, now)
	if reply != nil && reply.Text != "" {
		session.AppendHistory("assistant", reply.Text, now)
		if len(reply.DisplayedList) > 0 {
			session.RememberList(reply.DisplayedList, now)
		}
	}
	if err := r.sessions.Save(ctx, session); err != nil {
		log.Printf("❌ [ROUTER] Failed to save session for %s: %v", msg.UserID, err)
	}

	if reply != nil && reply.Text != "" && r.outbound != nil {
		if err := r.outbound.Append(ctx, msg.UserID, models.OutboundReply, reply.Text); err != nil {
			log.Printf("⚠️ [ROUTER] Failed to log outbound reply: %v", err)
		}
	}

	if m := GetMetrics(); m != nil {
		m.HandleLatency.Observe(time.Since(start).Seconds())
	}
	return reply, nil
}

// process runs the state machine and classification. A discarded
// confirmation reprocesses the same text as a fresh message, capped at one
// re-entry.
func (r *IntentRouter) process(ctx context.Context, session *models.ConversationSession, spaceID primitive.ObjectID, msg *models.InboundMessage) *models.Reply {
	for attempt := 0; attempt < 2; attempt++ {
		if session.State == models.SessionStateAwaitingConfirmation {
			outcome, reply := r.confirmations.Handle(ctx, session, spaceID, msg.Text)
			if outcome == ConfirmationHandled {
				return reply
			}
			continue
		}
		return r.classifyAndDispatch(ctx, session, spaceID, msg)
	}

	session.ClearPending()
	return &models.Reply{Text: startOverReply}
}

// routedIntent is the unified result of either classification path.
type routedIntent struct {
	intent       models.Intent
	message      string
	targetID     string
	targetPhrase string
	params       map[string]string
	urgent       bool
}

func (r *IntentRouter) classifyAndDispatch(ctx context.Context, session *models.ConversationSession, spaceID primitive.ObjectID, msg *models.InboundMessage) *models.Reply {
	cc := r.gatherContext(ctx, spaceID, msg, session)
	resolved := r.classify(ctx, msg, cc)

	if m := GetMetrics(); m != nil {
		m.MessagesProcessed.WithLabelValues(string(resolved.intent)).Inc()
	}

	switch {
	case resolved.intent == models.IntentChat:
		return r.chatReply(ctx, session, msg.Text)

	case resolved.intent == models.IntentSearch || resolved.intent == models.IntentContextualAsk:
		return r.searchReply(ctx, spaceID, resolved)

	case resolved.intent == models.IntentMerge:
		return r.mergeReply(ctx, session, spaceID, msg.UserID, resolved)

	case resolved.intent.NeedsTarget():
		return r.targetedAction(ctx, session, spaceID, msg.UserID, resolved)

	default: // create, expense
		return r.dispatch(ctx, session, resolved, nil, nil, spaceID, msg.UserID)
	}
}

// gatherContext fetches the classifier's read-only context concurrently.
// Each fetch failure is logged and leaves its slice empty; classification
// proceeds with whatever arrived.
func (r *IntentRouter) gatherContext(ctx context.Context, spaceID primitive.ObjectID, msg *models.InboundMessage, session *models.ConversationSession) *ClassifierContext {
	cc := &ClassifierContext{History: session.History, Language: msg.Language}
	userID := msg.UserID

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tasks, err := r.tasks.ListActive(gctx, spaceID, maxContextTasks)
		if err != nil {
			log.Printf("⚠️ [ROUTER] Active task fetch failed: %v", err)
			return nil
		}
		cc.ActiveTasks = tasks
		return nil
	})
	g.Go(func() error {
		memories, err := r.contexts.TopMemories(gctx, userID, maxContextMemories)
		if err != nil {
			log.Printf("⚠️ [ROUTER] Memory fetch failed: %v", err)
			return nil
		}
		cc.Memories = memories
		return nil
	})
	g.Go(func() error {
		skills, err := r.contexts.ActivatedSkills(gctx, userID)
		if err != nil {
			log.Printf("⚠️ [ROUTER] Skill fetch failed: %v", err)
			return nil
		}
		cc.Skills = skills
		return nil
	})
	g.Go(func() error {
		recent, err := r.outbound.Recent(gctx, userID, maxOutboundContext)
		if err != nil {
			log.Printf("⚠️ [ROUTER] Outbound context fetch failed: %v", err)
			return nil
		}
		cc.RecentOutbound = recent
		return nil
	})
	_ = g.Wait()
	return cc
}

// classify tries the AI classifier first, then falls back to the lexical
// matcher on failure or low confidence. The 0.5 gate is inclusive.
func (r *IntentRouter) classify(ctx context.Context, msg *models.InboundMessage, cc *ClassifierContext) routedIntent {
	if r.classifier != nil {
		cctx, cancel := context.WithTimeout(ctx, r.classifyTimeout)
		result, err := r.classifier.Classify(cctx, msg.Text, cc)
		cancel()

		switch {
		case err != nil:
			log.Printf("⚠️ [ROUTER] AI classification unavailable, using lexical matcher: %v", err)
			countClassification("lexical", "unavailable")
		case result.Confidence < ConfidenceThreshold:
			log.Printf("ℹ️ [ROUTER] AI confidence %.2f below gate, using lexical matcher", result.Confidence)
			countClassification("lexical", "low_confidence")
		default:
			countClassification("ai", "ok")
			return routedIntent{
				intent:       result.Intent,
				message:      msg.Text,
				targetID:     result.TargetID,
				targetPhrase: result.TargetNamePhrase,
				params:       result.Parameters,
			}
		}
	} else {
		countClassification("lexical", "unavailable")
	}

	lex := r.matcher.ClassifyLexically(msg.Text, msg.HasAttachment())
	return routedIntent{
		intent:       lex.Intent,
		message:      lex.Message,
		targetPhrase: lex.TargetPhrase,
		params:       lex.Parameters,
		urgent:       lex.Urgent,
	}
}

func (r *IntentRouter) targetedAction(ctx context.Context, session *models.ConversationSession, spaceID primitive.ObjectID, userID string, resolved routedIntent) *models.Reply {
	task, err := r.resolver.Resolve(ctx, session, spaceID, userID, resolved.targetID, resolved.targetPhrase)
	switch {
	case errors.Is(err, ErrTaskTargetMissing):
		return &models.Reply{Text: whichTaskReply}
	case errors.Is(err, ErrTaskNotFound):
		return &models.Reply{Text: fmt.Sprintf("I couldn't find anything matching %q.", resolved.targetPhrase)}
	case err != nil:
		log.Printf("❌ [ROUTER] Entity resolution failed: %v", err)
		return &models.Reply{Text: retryLaterReply}
	}

	session.RememberEntity(task, r.clock.Now())
	return r.dispatch(ctx, session, resolved, task, nil, spaceID, userID)
}

// mergeReply merges the top two entries of the last displayed list. Without
// a fresh list there is nothing unambiguous to merge.
func (r *IntentRouter) mergeReply(ctx context.Context, session *models.ConversationSession, spaceID primitive.ObjectID, userID string, resolved routedIntent) *models.Reply {
	if !session.ListFresh(r.clock.Now()) || len(session.LastDisplayedList) < 2 {
		return &models.Reply{Text: mergeNeedsListMsg}
	}

	primary, err := r.tasks.GetByID(ctx, spaceID, session.LastDisplayedList[0].TaskID)
	if err != nil {
		return &models.Reply{Text: mergeNeedsListMsg}
	}
	duplicate, err := r.tasks.GetByID(ctx, spaceID, session.LastDisplayedList[1].TaskID)
	if err != nil {
		return &models.Reply{Text: mergeNeedsListMsg}
	}

	return r.dispatch(ctx, session, resolved, primary, duplicate, spaceID, userID)
}

func (r *IntentRouter) searchReply(ctx context.Context, spaceID primitive.ObjectID, resolved routedIntent) *models.Reply {
	phrase := resolved.targetPhrase
	if phrase == "" {
		phrase = resolved.message
	}

	var tasks []models.Task
	if resolved.intent == models.IntentContextualAsk {
		active, err := r.tasks.ListActive(ctx, spaceID, contextualLimit)
		if err != nil {
			log.Printf("❌ [ROUTER] Active task fetch failed: %v", err)
			return &models.Reply{Text: retryLaterReply}
		}
		tasks = active
	} else {
		for _, hit := range r.locator.Locate(ctx, spaceID, phrase) {
			if !hit.Task.Completed {
				tasks = append(tasks, hit.Task)
			}
		}
		if len(tasks) == 0 {
			return &models.Reply{Text: fmt.Sprintf("I couldn't find anything matching %q.", phrase)}
		}
	}

	text, items := r.formatter.FormatTaskList("Here's what I found:", tasks)
	return &models.Reply{Text: text, DisplayedList: items}
}

func (r *IntentRouter) chatReply(ctx context.Context, session *models.ConversationSession, text string) *models.Reply {
	if r.llm == nil {
		return &models.Reply{Text: "I'm better with tasks than small talk. What can I put on the list?"}
	}

	messages := []map[string]interface{}{{"role": "system", "content": chatSystemPrompt}}
	for _, h := range session.History {
		messages = append(messages, map[string]interface{}{"role": h.Role, "content": h.Content})
	}
	messages = append(messages, map[string]interface{}{"role": "user", "content": text})

	cctx, cancel := context.WithTimeout(ctx, r.classifyTimeout)
	defer cancel()
	content, err := r.llm.ChatCompletionSync(cctx, r.chatModel, messages)
	if err != nil {
		log.Printf("⚠️ [ROUTER] Chat completion failed: %v", err)
		return &models.Reply{Text: "I'm better with tasks than small talk. What can I put on the list?"}
	}
	return &models.Reply{Text: r.formatter.PlainText(content)}
}

func (r *IntentRouter) dispatch(ctx context.Context, session *models.ConversationSession, resolved routedIntent, task, other *models.Task, spaceID primitive.ObjectID, userID string) *models.Reply {
	reply, err := r.dispatcher.Dispatch(ctx, session, &DispatchRequest{
		Intent:     resolved.intent,
		Message:    resolved.message,
		Parameters: resolved.params,
		Urgent:     resolved.urgent,
		Task:       task,
		OtherTask:  other,
		SpaceID:    spaceID,
		UserID:     userID,
	})
	if err != nil {
		if errors.Is(err, ErrTaskTargetMissing) {
			return &models.Reply{Text: whichTaskReply}
		}
		log.Printf("❌ [ROUTER] Dispatch of %s failed: %v", resolved.intent, err)
		return &models.Reply{Text: retryLaterReply}
	}
	return reply
}
