package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupBroadcaster(t *testing.T) (*Broadcaster, *redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	return NewBroadcaster(client, logger), client, mr
}

func TestBroadcaster_PublishObjectiveCompleted(t *testing.T) {
	b, client, mr := setupBroadcaster(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	sub := client.Subscribe(ctx, Channel)
	defer func() { _ = sub.Close() }()

	// Wait for the subscription to register before publishing
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	if err := b.PublishObjectiveCompleted(ctx, "zara", "talk_zara"); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			t.Fatalf("Failed to unmarshal event: %v", err)
		}
		if event.Type != EventTypeObjectiveCompleted {
			t.Errorf("Expected %s, got %s", EventTypeObjectiveCompleted, event.Type)
		}
		if event.CharacterID != "zara" {
			t.Errorf("Expected character zara, got %s", event.CharacterID)
		}
		if event.Data["objective"] != "talk_zara" {
			t.Errorf("Unexpected data: %v", event.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
	}
}

func TestBroadcaster_PublishLeadingStarted(t *testing.T) {
	b, client, mr := setupBroadcaster(t)
	defer mr.Close()
	defer func() { _ = client.Close() }()

	ctx := context.Background()
	sub := client.Subscribe(ctx, Channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	if err := b.PublishLeadingStarted(ctx, "zara", "Marcus Chen's location"); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			t.Fatalf("Failed to unmarshal event: %v", err)
		}
		if event.Type != EventTypeLeadingStarted {
			t.Errorf("Expected %s, got %s", EventTypeLeadingStarted, event.Type)
		}
		if event.Data["destination"] != "Marcus Chen's location" {
			t.Errorf("Unexpected data: %v", event.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
	}
}
