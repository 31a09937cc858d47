package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeConversationStarted EventType = "conversation.started"
	EventTypeConversationTurn    EventType = "conversation.turn"
	EventTypeConversationEnded   EventType = "conversation.ended"
	EventTypeObjectiveCompleted  EventType = "quest.objective_completed"
	EventTypeClueDiscovered      EventType = "quest.clue_discovered"
	EventTypeLeadingStarted      EventType = "npc.leading_started"
	EventTypeLeadingArrived      EventType = "npc.leading_arrived"
	EventTypeMemoryUpdated       EventType = "memory.updated"
	EventTypeMainObjectiveDone   EventType = "world.main_objective_complete"
)

// Channel is the Redis Pub/Sub channel all district events go to.
const Channel = "district-events"

// Event represents a generic event structure
type Event struct {
	Type        EventType              `json:"type"`
	CharacterID string                 `json:"character_id,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// Broadcaster publishes events to Redis Pub/Sub so the 3D client and
// other observers can react without polling
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishConversationStarted publishes a conversation.started event
func (b *Broadcaster) PublishConversationStarted(ctx context.Context, characterID string, resumed bool) error {
	return b.publish(ctx, Event{
		Type:        EventTypeConversationStarted,
		CharacterID: characterID,
		Data: map[string]interface{}{
			"resumed": resumed,
		},
	})
}

// PublishConversationTurn publishes a conversation.turn event
func (b *Broadcaster) PublishConversationTurn(ctx context.Context, characterID string, fallback bool) error {
	return b.publish(ctx, Event{
		Type:        EventTypeConversationTurn,
		CharacterID: characterID,
		Data: map[string]interface{}{
			"fallback": fallback,
		},
	})
}

// PublishConversationEnded publishes a conversation.ended event
func (b *Broadcaster) PublishConversationEnded(ctx context.Context, characterID string) error {
	return b.publish(ctx, Event{
		Type:        EventTypeConversationEnded,
		CharacterID: characterID,
	})
}

// PublishObjectiveCompleted publishes a quest.objective_completed event
func (b *Broadcaster) PublishObjectiveCompleted(ctx context.Context, characterID string, objectiveID string) error {
	return b.publish(ctx, Event{
		Type:        EventTypeObjectiveCompleted,
		CharacterID: characterID,
		Data: map[string]interface{}{
			"objective": objectiveID,
		},
	})
}

// PublishClueDiscovered publishes a quest.clue_discovered event
func (b *Broadcaster) PublishClueDiscovered(ctx context.Context, characterID string, clue string) error {
	return b.publish(ctx, Event{
		Type:        EventTypeClueDiscovered,
		CharacterID: characterID,
		Data: map[string]interface{}{
			"clue": clue,
		},
	})
}

// PublishLeadingStarted publishes an npc.leading_started event
func (b *Broadcaster) PublishLeadingStarted(ctx context.Context, characterID string, destinationLabel string) error {
	return b.publish(ctx, Event{
		Type:        EventTypeLeadingStarted,
		CharacterID: characterID,
		Data: map[string]interface{}{
			"destination": destinationLabel,
		},
	})
}

// PublishLeadingArrived publishes an npc.leading_arrived event
func (b *Broadcaster) PublishLeadingArrived(ctx context.Context, characterID string, destinationLabel string) error {
	return b.publish(ctx, Event{
		Type:        EventTypeLeadingArrived,
		CharacterID: characterID,
		Data: map[string]interface{}{
			"destination": destinationLabel,
		},
	})
}

// PublishMemoryUpdated publishes a memory.updated event
func (b *Broadcaster) PublishMemoryUpdated(ctx context.Context, characterID string) error {
	return b.publish(ctx, Event{
		Type:        EventTypeMemoryUpdated,
		CharacterID: characterID,
	})
}

// PublishMainObjectiveComplete publishes a world.main_objective_complete event
func (b *Broadcaster) PublishMainObjectiveComplete(ctx context.Context) error {
	return b.publish(ctx, Event{
		Type: EventTypeMainObjectiveDone,
	})
}

func (b *Broadcaster) publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event", event)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, Channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", Channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", Channel,
		"event_type", event.Type,
		"character_id", event.CharacterID,
	)

	return nil
}
