package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/astcode/simvibe3d/pkg/actor"
	"github.com/astcode/simvibe3d/pkg/memory"
	"github.com/astcode/simvibe3d/pkg/quest"
	"github.com/astcode/simvibe3d/pkg/world"
)

// MockStorage is a mock implementation of Storage for testing
type MockStorage struct {
	mu          sync.RWMutex
	memoryTable memory.Table
	questSave   *quest.Save
	worldState  *world.State
	profiles    map[string]*actor.CharacterProfile
	pingError   error
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		profiles: make(map[string]*actor.CharacterProfile),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// Ping mocks storage ping
func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

// Close mocks storage close
func (m *MockStorage) Close() error {
	return nil
}

// NPC memory operations

func (m *MockStorage) LoadMemoryTable(ctx context.Context) (memory.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.memoryTable, nil
}

func (m *MockStorage) SaveMemoryTable(ctx context.Context, t memory.Table) error {
	if t == nil {
		return errors.New("memory table cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memoryTable = t
	return nil
}

func (m *MockStorage) DeleteMemoryTable(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memoryTable = nil
	return nil
}

// Quest save operations

func (m *MockStorage) LoadQuestSave(ctx context.Context) (*quest.Save, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.questSave, nil
}

func (m *MockStorage) SaveQuestSave(ctx context.Context, s *quest.Save) error {
	if s == nil {
		return errors.New("quest save cannot be nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questSave = s
	return nil
}

func (m *MockStorage) DeleteQuestSave(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.questSave = nil
	return nil
}

// World state operations

func (m *MockStorage) LoadWorldState(ctx context.Context) (*world.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.worldState, nil
}

func (m *MockStorage) SaveWorldState(ctx context.Context, ws *world.State) error {
	if ws == nil {
		return errors.New("world state cannot be nil")
	}
	ws.UpdatedAt = time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.worldState = ws
	return nil
}

func (m *MockStorage) DeleteWorldState(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.worldState = nil
	return nil
}

// Character profile operations

func (m *MockStorage) GetProfile(ctx context.Context, characterID string) (*actor.CharacterProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, exists := m.profiles[characterID]
	if !exists {
		return nil, errors.New("character not found")
	}
	return p, nil
}

func (m *MockStorage) ListProfiles(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]string, 0, len(m.profiles))
	for id := range m.profiles {
		result = append(result, id)
	}
	return result, nil
}

// AddProfile adds a character profile to the mock storage (for testing)
func (m *MockStorage) AddProfile(characterID string, p *actor.CharacterProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[characterID] = p
}
