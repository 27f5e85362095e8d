package services

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"tasknest/internal/models"
)

// Resolution failure sentinels. The two are surfaced differently: not-found
// echoes the phrase back ("couldn't find X"), target-missing asks "which task?".
var (
	ErrTaskNotFound      = errors.New("no task matched the reference")
	ErrTaskTargetMissing = errors.New("no task reference given")
)

const outboundScanLimit = 5

var (
	ordinalWordRe  = regexp.MustCompile(`(?i)\b(first|second|third|fourth|fifth|sixth|seventh|eighth|ninth|tenth)\b`)
	ordinalDigitRe = regexp.MustCompile(`(?i)(?:#|\bnumber\s+|\bno\.?\s+)(\d{1,2})\b|\b(\d{1,2})(?:st|nd|rd|th)\b`)

	reminderRefRe = regexp.MustCompile(`Reminder: "([^"]+)"`)
	bulletRefRe   = regexp.MustCompile(`(?m)^\s*[-•*]\s+(.+?)\s*$`)
	numberedRefRe = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+(.+?)\s*$`)
)

var ordinalWords = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
}

var barePronouns = map[string]bool{
	"it": true, "that": true, "this": true,
	"that one": true, "this one": true,
}

// taskFetcher is the slice of TaskStore the resolver needs for live lookups.
type taskFetcher interface {
	GetByID(ctx context.Context, spaceID, taskID primitive.ObjectID) (*models.Task, error)
}

// phraseLocator finds tasks by free-text phrase (the semantic locator).
type phraseLocator interface {
	Locate(ctx context.Context, spaceID primitive.ObjectID, phrase string) []ScoredTask
}

// outboundReader reads recent messages sent to the user.
type outboundReader interface {
	Recent(ctx context.Context, userID string, limit int) ([]models.OutboundMessage, error)
}

// EntityResolver maps a reference phrase, pronoun or ordinal to a concrete
// stored task using the session's short-lived conversational memory.
type EntityResolver struct {
	tasks    taskFetcher
	locator  phraseLocator
	outbound outboundReader
	clock    clockwork.Clock
}

// NewEntityResolver creates an entity resolver.
func NewEntityResolver(tasks taskFetcher, locator phraseLocator, outbound outboundReader, clock clockwork.Clock) *EntityResolver {
	return &EntityResolver{tasks: tasks, locator: locator, outbound: outbound, clock: clock}
}

// Resolve finds the task a message refers to. targetID is the classifier's
// direct id hint (may be empty or wrong), phrase is the free-text reference
// (may be empty). Returns ErrTaskNotFound when an explicit phrase matched
// nothing, ErrTaskTargetMissing when no reference was given at all.
func (r *EntityResolver) Resolve(
	ctx context.Context,
	session *models.ConversationSession,
	spaceID primitive.ObjectID,
	userID string,
	targetID string,
	phrase string,
) (*models.Task, error) {
	now := r.clock.Now()
	phrase = normalizeText(phrase)

	// 1. Ordinal reference into the last displayed list.
	if pos, ok := parseOrdinal(phrase); ok {
		if session.ListFresh(now) && pos >= 1 && pos <= len(session.LastDisplayedList) {
			item := session.LastDisplayedList[pos-1]
			task, err := r.tasks.GetByID(ctx, spaceID, item.TaskID)
			if err == nil {
				return task, nil
			}
			log.Printf("⚠️ [ENTITY-RESOLVER] Ordinal %d pointed at a vanished task: %v", pos, err)
		}
		// Stale list or out of range: fall through.
	}

	// 2. Direct id from the classifier, verified live.
	if targetID != "" {
		if oid, err := primitive.ObjectIDFromHex(targetID); err == nil {
			if task, err := r.tasks.GetByID(ctx, spaceID, oid); err == nil {
				return task, nil
			}
		}
	}

	// 3+4. Semantic search, skipped for bare pronouns.
	if phrase != "" && !barePronouns[phrase] {
		if task := r.firstIncomplete(r.locator.Locate(ctx, spaceID, phrase)); task != nil {
			return task, nil
		}
	}

	// 5. Last referenced entity, re-fetched live to confirm it still exists
	// and is incomplete.
	if session.EntityFresh(now) {
		task, err := r.tasks.GetByID(ctx, spaceID, session.LastReferencedEntity.TaskID)
		if err == nil && !task.Completed {
			return task, nil
		}
	}

	// 6. Scan recent outbound messages for an embedded task reference.
	if task := r.fromOutboundContext(ctx, spaceID, userID); task != nil {
		return task, nil
	}

	if phrase != "" && !barePronouns[phrase] {
		return nil, ErrTaskNotFound
	}
	return nil, ErrTaskTargetMissing
}

func (r *EntityResolver) firstIncomplete(hits []ScoredTask) *models.Task {
	for _, h := range hits {
		if !h.Task.Completed {
			task := h.Task
			return &task
		}
	}
	return nil
}

func (r *EntityResolver) fromOutboundContext(ctx context.Context, spaceID primitive.ObjectID, userID string) *models.Task {
	messages, err := r.outbound.Recent(ctx, userID, outboundScanLimit)
	if err != nil {
		log.Printf("⚠️ [ENTITY-RESOLVER] Outbound context scan failed: %v", err)
		return nil
	}

	for _, msg := range messages {
		for _, ref := range extractTaskReferences(msg.Content) {
			if task := r.firstIncomplete(r.locator.Locate(ctx, spaceID, ref)); task != nil {
				return task
			}
		}
	}
	return nil
}

// parseOrdinal extracts a 1-based position from phrasings like "the second
// one", "#3" or "number 2".
func parseOrdinal(phrase string) (int, bool) {
	if phrase == "" {
		return 0, false
	}
	if m := ordinalWordRe.FindStringSubmatch(phrase); m != nil {
		return ordinalWords[strings.ToLower(m[1])], true
	}
	if m := ordinalDigitRe.FindStringSubmatch(phrase); m != nil {
		digits := m[1]
		if digits == "" {
			digits = m[2]
		}
		n, err := strconv.Atoi(digits)
		if err == nil && n >= 1 {
			return n, true
		}
	}
	return 0, false
}

// extractTaskReferences pulls candidate task phrases out of an outbound
// message: quoted reminder subjects, bulleted nudge lines and numbered
// briefing lines.
func extractTaskReferences(content string) []string {
	var refs []string
	for _, m := range reminderRefRe.FindAllStringSubmatch(content, -1) {
		refs = append(refs, m[1])
	}
	for _, m := range bulletRefRe.FindAllStringSubmatch(content, -1) {
		refs = append(refs, m[1])
	}
	for _, m := range numberedRefRe.FindAllStringSubmatch(content, -1) {
		refs = append(refs, m[1])
	}
	return refs
}
