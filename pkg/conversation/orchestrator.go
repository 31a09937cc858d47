// Package conversation owns the single active conversation between the
// player and a character: lifecycle, turn handling, backend failure
// recovery, and folding finished conversations into character memory.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/astcode/simvibe3d/pkg/actor"
	"github.com/astcode/simvibe3d/pkg/chat"
	"github.com/astcode/simvibe3d/pkg/markers"
	"github.com/astcode/simvibe3d/pkg/memory"
	"github.com/astcode/simvibe3d/pkg/prompts"
)

var (
	// ErrNoSession is returned by Turn when no conversation is open.
	ErrNoSession = errors.New("no open conversation")
	// ErrSessionClosed is returned when the session was closed or
	// swapped while a generation call was in flight; the late response
	// is discarded rather than applied to another character's history.
	ErrSessionClosed = errors.New("conversation closed during generation")
)

// DefaultGenerateTimeout bounds a single backend call. Expiry is treated
// like any other transport failure.
const DefaultGenerateTimeout = 8 * time.Second

// Generator is the text-generation boundary the orchestrator consumes.
type Generator interface {
	GenerateResponse(ctx context.Context, messages []chat.ChatMessage) (string, error)
}

// Session is the ephemeral state of one open conversation. It is created
// by Start and destroyed by End; it is never persisted mid-flight.
type Session struct {
	ID           uuid.UUID
	Profile      *actor.CharacterProfile
	SystemPrompt string // computed once at session start, frozen
	History      []chat.ChatMessage
	Resumed      bool // seeded from remembered messages
	leadOffered  bool // a [LEAD] marker appeared this session
}

// StartResult describes a freshly opened conversation.
type StartResult struct {
	CharacterID string
	Greeting    string // fixed greeting, set only on a first meeting
	History     []chat.ChatMessage
	Resumed     bool
	LeadOffer   bool // a lead offer is still standing from earlier
}

// TurnResult is the outcome of one player turn.
type TurnResult struct {
	CharacterID string
	Text        string // display text, markers stripped
	Raw         string // full generated reply, markers included; empty for fallbacks
	LeadOffer   bool   // this reply contained a [LEAD] marker
	Clue        string // clue text revealed by this reply, if any
	Fallback    bool   // reply drawn from the fixed fallback list
}

// Orchestrator manages the single conversation that may be open at any
// time. Turns are serialized: a second Turn call waits for the first to
// settle. Start and End only touch session state, so closing while a
// generation call is in flight is possible and voids that call's result.
type Orchestrator struct {
	mu     sync.Mutex // guards session
	turnMu sync.Mutex // serializes Turn calls end to end

	llm     Generator
	mem     *memory.Store
	logger  *slog.Logger
	timeout time.Duration

	session *Session
}

// New creates an orchestrator in the closed state.
func New(llm Generator, mem *memory.Store, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		llm:     llm,
		mem:     mem,
		logger:  logger,
		timeout: DefaultGenerateTimeout,
	}
}

// WithTimeout overrides the generation timeout.
func (o *Orchestrator) WithTimeout(d time.Duration) *Orchestrator {
	o.timeout = d
	return o
}

// Start opens a conversation with the given character. An already-open
// conversation is closed first, committing its memory; there is no
// queuing of sessions. On a first meeting the character's fixed greeting
// is recorded into history as a character turn (it is not generated);
// on a repeat meeting the remembered message tail seeds the history.
func (o *Orchestrator) Start(ctx context.Context, profile *actor.CharacterProfile, mainObjectiveComplete bool) (StartResult, error) {
	if err := o.End(ctx); err != nil {
		// The prior session's memory commit failed. The new session
		// still opens; the loss is logged, not fatal.
		o.logger.Error("Failed to commit previous conversation", "error", err)
	}

	mem := o.mem.Get(ctx, profile.ID)
	systemPrompt, err := prompts.BuildSystemPrompt(profile, mem, mainObjectiveComplete)
	if err != nil {
		return StartResult{}, fmt.Errorf("failed to build system prompt: %w", err)
	}

	s := &Session{
		ID:           uuid.New(),
		Profile:      profile,
		SystemPrompt: systemPrompt,
	}
	result := StartResult{
		CharacterID: profile.ID,
		LeadOffer:   mem.OfferedToLead && profile.CanLead,
	}

	if len(mem.RecentMessages) > 0 {
		s.History = make([]chat.ChatMessage, len(mem.RecentMessages))
		copy(s.History, mem.RecentMessages)
		s.Resumed = true
		result.Resumed = true
	} else {
		s.History = append(s.History, chat.ChatMessage{
			Role:    chat.ChatRoleAgent,
			Content: profile.Greeting,
		})
		result.Greeting = profile.Greeting
	}
	result.History = append([]chat.ChatMessage(nil), s.History...)

	o.mu.Lock()
	o.session = s
	o.mu.Unlock()

	o.logger.Info("Conversation started",
		"character_id", profile.ID,
		"previous_conversations", mem.ConversationCount,
		"relationship", mem.Relationship,
		"resumed", s.Resumed)
	return result, nil
}

// Turn sends one player message and returns the character's reply.
// Backend failure of any kind is absorbed: the player sees a line from
// the character's fixed fallback list, and that line is not recorded in
// the history that End will persist.
func (o *Orchestrator) Turn(ctx context.Context, userText string) (TurnResult, error) {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	o.mu.Lock()
	s := o.session
	if s == nil {
		o.mu.Unlock()
		return TurnResult{}, ErrNoSession
	}
	sessionID := s.ID
	profile := s.Profile

	s.History = append(s.History, chat.ChatMessage{
		Role:    chat.ChatRoleUser,
		Content: userText,
	})

	msgs := make([]chat.ChatMessage, 0, len(s.History)+1)
	msgs = append(msgs, chat.ChatMessage{Role: chat.ChatRoleSystem, Content: s.SystemPrompt})
	msgs = append(msgs, s.History...)
	o.mu.Unlock()

	genCtx, cancel := context.WithTimeout(ctx, o.timeout)
	reply, err := o.llm.GenerateResponse(genCtx, msgs)
	cancel()

	o.mu.Lock()
	defer o.mu.Unlock()

	// The session may have been closed or swapped while the call was in
	// flight. Its identity was bound at call time; a stale response is
	// discarded instead of corrupting another character's history.
	if o.session == nil || o.session.ID != sessionID {
		o.logger.Warn("Discarding late generation response",
			"character_id", profile.ID)
		return TurnResult{}, ErrSessionClosed
	}

	if err != nil {
		o.logger.Warn("Text generation failed, using fallback",
			"character_id", profile.ID, "error", err)
		return TurnResult{
			CharacterID: profile.ID,
			Text:        profile.Fallbacks[rand.Intn(len(profile.Fallbacks))],
			Fallback:    true,
		}, nil
	}

	s.History = append(s.History, chat.ChatMessage{
		Role:    chat.ChatRoleAgent,
		Content: reply,
	})

	result := TurnResult{
		CharacterID: profile.ID,
		Text:        markers.Strip(reply),
		Raw:         reply,
	}
	if markers.HasLeadOffer(reply) && profile.CanLead {
		result.LeadOffer = true
		s.leadOffered = true
	}
	if clue, ok := markers.ExtractClue(reply); ok {
		result.Clue = clue
	}
	return result, nil
}

// End closes the open conversation, folding its history into the
// character's durable memory. Ending when no conversation is open is a
// no-op. Memory commits only on this path; a process that dies with a
// conversation open loses that conversation.
func (o *Orchestrator) End(ctx context.Context) error {
	o.mu.Lock()
	s := o.session
	o.session = nil
	o.mu.Unlock()

	if s == nil {
		return nil
	}
	if len(s.History) == 0 {
		return nil
	}

	if err := o.mem.Update(ctx, s.Profile.ID, s.History, s.leadOffered); err != nil {
		return fmt.Errorf("failed to update memory for %s: %w", s.Profile.ID, err)
	}
	o.logger.Info("Conversation ended",
		"character_id", s.Profile.ID,
		"turns", len(s.History),
		"lead_offered", s.leadOffered)
	return nil
}

// Active returns the profile of the character in the open conversation.
func (o *Orchestrator) Active() (*actor.CharacterProfile, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil, false
	}
	return o.session.Profile, true
}

// Transcript returns a copy of the open conversation's history.
func (o *Orchestrator) Transcript() ([]chat.ChatMessage, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return nil, false
	}
	return append([]chat.ChatMessage(nil), o.session.History...), true
}
