package memory

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/astcode/simvibe3d/pkg/chat"
)

// fakePersistence is an in-memory Persistence for tests.
type fakePersistence struct {
	table   Table
	loadErr error
	saveErr error
	saves   int
}

func (f *fakePersistence) LoadMemoryTable(ctx context.Context) (Table, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.table, nil
}

func (f *fakePersistence) SaveMemoryTable(ctx context.Context, t Table) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.table = t
	f.saves++
	return nil
}

func (f *fakePersistence) DeleteMemoryTable(ctx context.Context) error {
	f.table = nil
	return nil
}

func newTestStore(t *testing.T) (*Store, *fakePersistence) {
	t.Helper()
	p := &fakePersistence{}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewStore(p, logger), p
}

func TestTierForCount(t *testing.T) {
	cases := []struct {
		count int
		want  Tier
	}{
		{0, TierStranger},
		{1, TierMetBefore},
		{2, TierMetBefore},
		{3, TierAcquaintance},
		{4, TierAcquaintance},
		{5, TierTrustedFriend},
		{20, TierTrustedFriend},
	}
	for _, tc := range cases {
		if got := TierForCount(tc.count); got != tc.want {
			t.Errorf("TierForCount(%d) = %q, want %q", tc.count, got, tc.want)
		}
	}
}

func TestGetUnseenCharacter(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	m := store.Get(ctx, "zara")
	if m.ConversationCount != 0 {
		t.Errorf("expected zero conversations, got %d", m.ConversationCount)
	}
	if m.Relationship != TierStranger {
		t.Errorf("expected stranger, got %q", m.Relationship)
	}
	if len(m.Topics) != 0 || len(m.RecentMessages) != 0 {
		t.Error("expected empty topics and messages")
	}
}

func TestGetDoesNotPersist(t *testing.T) {
	store, p := newTestStore(t)
	ctx := context.Background()

	store.Get(ctx, "zara")
	if p.saves != 0 {
		t.Errorf("Get must not persist, saw %d saves", p.saves)
	}
}

func TestUpdateFirstConversation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	history := []chat.ChatMessage{
		{Role: chat.ChatRoleAgent, Content: "Hey there, stranger."},
		{Role: chat.ChatRoleUser, Content: "Tell me about the ghost sightings."},
	}
	if err := store.Update(ctx, "zara", history, false); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	m := store.Get(ctx, "zara")
	if m.ConversationCount != 1 {
		t.Errorf("expected 1 conversation, got %d", m.ConversationCount)
	}
	if m.Relationship != TierMetBefore {
		t.Errorf("expected met before, got %q", m.Relationship)
	}
	found := false
	for _, topic := range m.Topics {
		if topic == "ghost" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected topic %q in %v", "ghost", m.Topics)
	}
	if m.LastInteractionAt == nil || time.Since(*m.LastInteractionAt) > time.Minute {
		t.Error("expected a recent last interaction timestamp")
	}
}

func TestUpdateTopicsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	history := []chat.ChatMessage{
		{Role: chat.ChatRoleUser, Content: "What do you know about the protocol and neocorp?"},
	}
	for i := 0; i < 4; i++ {
		if err := store.Update(ctx, "marcus", history, false); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	m := store.Get(ctx, "marcus")
	if len(m.Topics) != 2 {
		t.Errorf("expected exactly 2 topics, got %v", m.Topics)
	}
	if m.ConversationCount != 4 {
		t.Errorf("expected 4 conversations, got %d", m.ConversationCount)
	}
}

func TestUpdateIgnoresCharacterMessages(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	history := []chat.ChatMessage{
		{Role: chat.ChatRoleAgent, Content: "The ghost protocol is real."},
	}
	if err := store.Update(ctx, "nova", history, false); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if m := store.Get(ctx, "nova"); len(m.Topics) != 0 {
		t.Errorf("topics must come from player messages only, got %v", m.Topics)
	}
}

func TestUpdateBounds(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	long := strings.Repeat("x", 600)
	var history []chat.ChatMessage
	for i := 0; i < 25; i++ {
		history = append(history, chat.ChatMessage{Role: chat.ChatRoleUser, Content: long})
	}
	if err := store.Update(ctx, "oracle", history, false); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	m := store.Get(ctx, "oracle")
	if len(m.RecentMessages) != MaxRecentMessages {
		t.Errorf("expected %d recent messages, got %d", MaxRecentMessages, len(m.RecentMessages))
	}
	for _, msg := range m.RecentMessages {
		if len(msg.Content) > MaxMessageLen {
			t.Errorf("message content exceeds %d chars: %d", MaxMessageLen, len(msg.Content))
		}
	}
	if len(m.Topics) > MaxTopics {
		t.Errorf("topics exceed %d: %d", MaxTopics, len(m.Topics))
	}
}

func TestTruncateRuneBoundary(t *testing.T) {
	tests := []struct {
		name string
		s    string
		n    int
		want string
	}{
		{"short unchanged", "hello", 300, "hello"},
		{"ascii cut", strings.Repeat("a", 301), 300, strings.Repeat("a", 300)},
		{"multibyte at boundary", strings.Repeat("a", 299) + "é", 300, strings.Repeat("a", 299)},
		{"all multibyte", strings.Repeat("é", 200), 301, strings.Repeat("é", 150)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.s, tt.n)
			if got != tt.want {
				t.Errorf("truncate(%d) = %q, want %q", tt.n, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate produced invalid UTF-8: %q", got)
			}
		})
	}
}

func TestUpdateTruncatesOnRuneBoundary(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	history := []chat.ChatMessage{{
		Role:    chat.ChatRoleUser,
		Content: strings.Repeat("a", 299) + "é",
	}}
	if err := store.Update(ctx, "zara", history, false); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	m := store.Get(ctx, "zara")
	if len(m.RecentMessages) != 1 {
		t.Fatalf("expected 1 recent message, got %d", len(m.RecentMessages))
	}
	if !utf8.ValidString(m.RecentMessages[0].Content) {
		t.Errorf("persisted message is not valid UTF-8: %q", m.RecentMessages[0].Content)
	}
}

func TestLeadOfferSticky(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	history := []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "help me"}}
	if err := store.Update(ctx, "zara", history, true); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if m := store.Get(ctx, "zara"); !m.OfferedToLead {
		t.Fatal("expected lead offer to be set")
	}

	// A later update without an offer must not clear the flag
	if err := store.Update(ctx, "zara", history, false); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if m := store.Get(ctx, "zara"); !m.OfferedToLead {
		t.Error("lead offer must be sticky across updates")
	}

	// Only an explicit acceptance clears it
	if err := store.ClearLeadOffer(ctx, "zara"); err != nil {
		t.Fatalf("ClearLeadOffer failed: %v", err)
	}
	if m := store.Get(ctx, "zara"); m.OfferedToLead {
		t.Error("expected lead offer cleared")
	}
}

func TestLoadFailureRecovered(t *testing.T) {
	store, p := newTestStore(t)
	p.loadErr = fmt.Errorf("corrupt value")
	ctx := context.Background()

	m := store.Get(ctx, "zara")
	if m.ConversationCount != 0 || m.Relationship != TierStranger {
		t.Error("expected default record when load fails")
	}
}

func TestReset(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	history := []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: "hello"}}
	if err := store.Update(ctx, "zara", history, false); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := store.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if m := store.Get(ctx, "zara"); m.ConversationCount != 0 {
		t.Error("expected memory wiped after reset")
	}
}
