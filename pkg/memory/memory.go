// Package memory holds each character's durable record of the player:
// how many conversations they have had, what was discussed, and how the
// relationship has grown. Memory shapes the system prompt for every
// future conversation.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/astcode/simvibe3d/pkg/chat"
)

// Tier is the coarse relationship bucket derived from conversation count.
type Tier string

const (
	TierStranger      Tier = "stranger"
	TierMetBefore     Tier = "met before"
	TierAcquaintance  Tier = "acquaintance"
	TierTrustedFriend Tier = "trusted friend"
)

// TierForCount derives the relationship tier from a conversation count.
// The tier is never stored independently of the count.
func TierForCount(n int) Tier {
	switch {
	case n >= 5:
		return TierTrustedFriend
	case n >= 3:
		return TierAcquaintance
	case n >= 1:
		return TierMetBefore
	default:
		return TierStranger
	}
}

// TopicVocabulary is the fixed keyword set scanned against player
// messages when a conversation is folded into memory.
var TopicVocabulary = []string{
	"ghost", "protocol", "neocorp", "erasure", "oracle",
	"decoder", "chip", "entrance", "data", "memory",
}

const (
	// MaxTopics bounds the topic list; oldest topics evict first.
	MaxTopics = 10
	// MaxRecentMessages bounds the carried-over conversation tail.
	MaxRecentMessages = 10
	// MaxMessageLen truncates each remembered message content.
	MaxMessageLen = 300
)

// CharacterMemory is one character's durable record of the player.
type CharacterMemory struct {
	ConversationCount int                `json:"conversation_count"`
	Relationship      Tier               `json:"relationship"`
	Topics            []string           `json:"topics,omitempty"`
	RecentMessages    []chat.ChatMessage `json:"recent_messages,omitempty"`
	OfferedToLead     bool               `json:"offered_to_lead,omitempty"`
	LastInteractionAt *time.Time         `json:"last_interaction_at,omitempty"`
}

// Table is the full memory table, keyed by character id. It is persisted
// as a single value: every write loads the full table, mutates it, and
// saves it back.
type Table map[string]*CharacterMemory

// Persistence is the storage boundary the memory store consumes.
type Persistence interface {
	LoadMemoryTable(ctx context.Context) (Table, error)
	SaveMemoryTable(ctx context.Context, t Table) error
	DeleteMemoryTable(ctx context.Context) error
}

// Store manages per-character memory on top of an injected persistence
// boundary. A load failure is recovered by substituting an empty table;
// it is never fatal.
type Store struct {
	persist Persistence
	logger  *slog.Logger
	now     func() time.Time
}

// NewStore creates a memory store backed by the given persistence.
func NewStore(persist Persistence, logger *slog.Logger) *Store {
	return &Store{
		persist: persist,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Store) loadTable(ctx context.Context) Table {
	t, err := s.persist.LoadMemoryTable(ctx)
	if err != nil {
		s.logger.Warn("Failed to load memory table, starting empty", "error", err)
		return make(Table)
	}
	if t == nil {
		return make(Table)
	}
	return t
}

// Get returns the character's memory, or the default stranger record if
// none has been persisted. Get never fails and never creates a persisted
// record; creation happens on the first Update.
func (s *Store) Get(ctx context.Context, characterID string) CharacterMemory {
	t := s.loadTable(ctx)
	if m, ok := t[characterID]; ok && m != nil {
		return *m
	}
	return CharacterMemory{Relationship: TierStranger}
}

// Update folds a finished conversation into the character's memory:
// increments the conversation count, extracts topics from player
// messages, rederives the relationship tier, and keeps the tail of the
// conversation for continuity. The offeredToLead flag is sticky: Update
// can set it but never clears it.
func (s *Store) Update(ctx context.Context, characterID string, history []chat.ChatMessage, offeredToLead bool) error {
	t := s.loadTable(ctx)

	m, ok := t[characterID]
	if !ok || m == nil {
		m = &CharacterMemory{}
		t[characterID] = m
	}

	m.ConversationCount++
	now := s.now()
	m.LastInteractionAt = &now

	m.Topics = extractTopics(m.Topics, history)
	m.Relationship = TierForCount(m.ConversationCount)

	if offeredToLead {
		m.OfferedToLead = true
	}

	tail := history
	if len(tail) > MaxRecentMessages {
		tail = tail[len(tail)-MaxRecentMessages:]
	}
	m.RecentMessages = make([]chat.ChatMessage, 0, len(tail))
	for _, msg := range tail {
		m.RecentMessages = append(m.RecentMessages, chat.ChatMessage{
			Role:    msg.Role,
			Content: truncate(msg.Content, MaxMessageLen),
		})
	}

	if err := s.persist.SaveMemoryTable(ctx, t); err != nil {
		return fmt.Errorf("failed to save memory table: %w", err)
	}

	s.logger.Debug("Memory updated",
		"character_id", characterID,
		"conversation_count", m.ConversationCount,
		"relationship", m.Relationship,
		"topics", len(m.Topics))
	return nil
}

// ClearLeadOffer clears the sticky lead-offer flag, called when the
// player accepts the character's offer to guide them.
func (s *Store) ClearLeadOffer(ctx context.Context, characterID string) error {
	t := s.loadTable(ctx)
	m, ok := t[characterID]
	if !ok || m == nil || !m.OfferedToLead {
		return nil
	}
	m.OfferedToLead = false
	if err := s.persist.SaveMemoryTable(ctx, t); err != nil {
		return fmt.Errorf("failed to save memory table: %w", err)
	}
	return nil
}

// Reset wipes the entire memory table. Only an explicit full reset
// deletes character memory.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.persist.DeleteMemoryTable(ctx); err != nil {
		return fmt.Errorf("failed to delete memory table: %w", err)
	}
	return nil
}

// extractTopics scans player-authored messages for vocabulary keywords
// and appends new matches to the existing topic list, keeping the most
// recent MaxTopics.
func extractTopics(existing []string, history []chat.ChatMessage) []string {
	topics := make([]string, len(existing))
	copy(topics, existing)

	seen := make(map[string]bool, len(topics))
	for _, topic := range topics {
		seen[topic] = true
	}

	for _, msg := range history {
		if msg.Role != chat.ChatRoleUser {
			continue
		}
		content := strings.ToLower(msg.Content)
		for _, keyword := range TopicVocabulary {
			if seen[keyword] {
				continue
			}
			if strings.Contains(content, keyword) {
				topics = append(topics, keyword)
				seen[keyword] = true
			}
		}
	}

	if len(topics) > MaxTopics {
		topics = topics[len(topics)-MaxTopics:]
	}
	return topics
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
