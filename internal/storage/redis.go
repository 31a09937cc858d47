package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/astcode/simvibe3d/pkg/actor"
	"github.com/astcode/simvibe3d/pkg/memory"
	"github.com/astcode/simvibe3d/pkg/quest"
	"github.com/astcode/simvibe3d/pkg/world"
)

const (
	memoryTableKey = "npc-memory"
	questSaveKey   = "quest-save"
	worldStateKey  = "world-state"
)

// RedisStorage implements the Storage interface using Redis for save
// data and the filesystem for static resources (character profiles)
type RedisStorage struct {
	client  *redis.Client
	logger  *slog.Logger
	dataDir string
}

// Ensure RedisStorage implements Storage interface
var _ Storage = (*RedisStorage)(nil)

// NewRedisStorage creates a new Redis storage instance
func NewRedisStorage(redisURL string, dataDir string, logger *slog.Logger) *RedisStorage {
	rdb := redis.NewClient(&redis.Options{
		Addr: redisURL,
	})

	if dataDir == "" {
		dataDir = "./data"
	}

	return &RedisStorage{
		client:  rdb,
		logger:  logger,
		dataDir: dataDir,
	}
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	cmd := r.client.Ping(ctx)
	if err := cmd.Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

// get loads and unmarshals a JSON value, returning false when the key
// does not exist.
func (r *RedisStorage) get(ctx context.Context, key string, v any) (bool, error) {
	cmd := r.client.Get(ctx, key)
	if err := cmd.Err(); err != nil {
		if err == redis.Nil {
			return false, nil
		}
		r.logger.Error("Failed to load key", "key", key, "error", err)
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}

	data := cmd.Val()
	if data == "" {
		return false, nil
	}

	if err := json.Unmarshal([]byte(data), v); err != nil {
		r.logger.Error("Failed to unmarshal key", "key", key, "error", err)
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (r *RedisStorage) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("Failed to marshal key", "key", key, "error", err)
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}

	// Save data has no TTL: dialogue memory and quest progress
	// survive until an explicit reset.
	cmd := r.client.Set(ctx, key, string(data), 0)
	if err := cmd.Err(); err != nil {
		r.logger.Error("Failed to save key", "key", key, "error", err)
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}

func (r *RedisStorage) del(ctx context.Context, key string) error {
	cmd := r.client.Del(ctx, key)
	if err := cmd.Err(); err != nil {
		r.logger.Error("Failed to delete key", "key", key, "error", err)
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// NPC memory operations (Redis-backed)

func (r *RedisStorage) LoadMemoryTable(ctx context.Context) (memory.Table, error) {
	var t memory.Table
	found, err := r.get(ctx, memoryTableKey, &t)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return t, nil
}

func (r *RedisStorage) SaveMemoryTable(ctx context.Context, t memory.Table) error {
	return r.set(ctx, memoryTableKey, t)
}

func (r *RedisStorage) DeleteMemoryTable(ctx context.Context) error {
	return r.del(ctx, memoryTableKey)
}

// Quest save operations (Redis-backed)

func (r *RedisStorage) LoadQuestSave(ctx context.Context) (*quest.Save, error) {
	var s quest.Save
	found, err := r.get(ctx, questSaveKey, &s)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &s, nil
}

func (r *RedisStorage) SaveQuestSave(ctx context.Context, s *quest.Save) error {
	return r.set(ctx, questSaveKey, s)
}

func (r *RedisStorage) DeleteQuestSave(ctx context.Context) error {
	return r.del(ctx, questSaveKey)
}

// World state operations (Redis-backed)

func (r *RedisStorage) LoadWorldState(ctx context.Context) (*world.State, error) {
	var ws world.State
	found, err := r.get(ctx, worldStateKey, &ws)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &ws, nil
}

func (r *RedisStorage) SaveWorldState(ctx context.Context, ws *world.State) error {
	ws.UpdatedAt = time.Now()
	return r.set(ctx, worldStateKey, ws)
}

func (r *RedisStorage) DeleteWorldState(ctx context.Context) error {
	return r.del(ctx, worldStateKey)
}

// Character profile operations (filesystem-backed)

// validProfileID keeps request-supplied ids inside the characters
// directory: lowercase snake_case only, no path separators or dots.
var validProfileID = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func (r *RedisStorage) GetProfile(ctx context.Context, characterID string) (*actor.CharacterProfile, error) {
	if !validProfileID.MatchString(characterID) {
		return nil, fmt.Errorf("character not found: %s", characterID)
	}
	path := filepath.Join(r.dataDir, "characters", characterID+".json")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("character not found: %s", characterID)
		}
		return nil, fmt.Errorf("failed to read character file %s: %w", path, err)
	}

	var profile actor.CharacterProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse character JSON from %s: %w", path, err)
	}

	// Filename overrides any ID in the JSON
	profile.ID = characterID

	return &profile, nil
}

func (r *RedisStorage) ListProfiles(ctx context.Context) ([]string, error) {
	charactersPath := filepath.Join(r.dataDir, "characters")

	entries, err := os.ReadDir(charactersPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read characters directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
		}
	}

	return ids, nil
}
