package services

import (
	"context"

	"github.com/astcode/simvibe3d/pkg/chat"
)

// LLMService defines the interface for the dialogue generation backend
type LLMService interface {
	// InitModel initializes the LLM model on startup
	InitModel(ctx context.Context, modelName string) error

	// GenerateResponse generates one in-character reply for the given
	// message sequence (system prompt first, then alternating turns)
	GenerateResponse(ctx context.Context, messages []chat.ChatMessage) (string, error)

	// IsModelReady checks if the specified model is ready for use
	IsModelReady(ctx context.Context, modelName string) (bool, error)
}
