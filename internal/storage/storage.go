package storage

import (
	"context"

	"github.com/astcode/simvibe3d/pkg/actor"
	"github.com/astcode/simvibe3d/pkg/memory"
	"github.com/astcode/simvibe3d/pkg/quest"
	"github.com/astcode/simvibe3d/pkg/world"
)

// Storage defines persistence for dialogue memory, quest progression
// and world state, plus filesystem-backed character profiles.
//
// Load methods return (nil, nil) when no saved value exists; callers
// treat that as a fresh start.
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// NPC memory operations (Redis-backed)
	LoadMemoryTable(ctx context.Context) (memory.Table, error)
	SaveMemoryTable(ctx context.Context, t memory.Table) error
	DeleteMemoryTable(ctx context.Context) error

	// Quest save operations (Redis-backed)
	LoadQuestSave(ctx context.Context) (*quest.Save, error)
	SaveQuestSave(ctx context.Context, s *quest.Save) error
	DeleteQuestSave(ctx context.Context) error

	// World state operations (Redis-backed)
	LoadWorldState(ctx context.Context) (*world.State, error)
	SaveWorldState(ctx context.Context, ws *world.State) error
	DeleteWorldState(ctx context.Context) error

	// Character profile operations (filesystem-backed)
	GetProfile(ctx context.Context, characterID string) (*actor.CharacterProfile, error)
	ListProfiles(ctx context.Context) ([]string, error)
}
