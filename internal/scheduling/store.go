package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const settingsKey = "scheduling:settings"

// SettingsStore persists the active scheduling settings.
type SettingsStore interface {
	Get(ctx context.Context) (Settings, error)
	Set(ctx context.Context, settings Settings) error
}

// RedisSettingsStore keeps settings as a JSON blob in Redis.
type RedisSettingsStore struct {
	redis    *redis.Client
	defaults Settings
}

// NewRedisSettingsStore creates a store that falls back to defaults when nothing is saved.
func NewRedisSettingsStore(client *redis.Client, defaults Settings) *RedisSettingsStore {
	return &RedisSettingsStore{redis: client, defaults: defaults}
}

// Get retrieves settings, returning the defaults if none were saved.
func (s *RedisSettingsStore) Get(ctx context.Context) (Settings, error) {
	data, err := s.redis.Get(ctx, settingsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return s.defaults, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("scheduling: get settings: %w", err)
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("scheduling: unmarshal settings: %w", err)
	}
	return settings, nil
}

// Set saves settings.
func (s *RedisSettingsStore) Set(ctx context.Context, settings Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("scheduling: marshal settings: %w", err)
	}
	if err := s.redis.Set(ctx, settingsKey, data, 0).Err(); err != nil {
		return fmt.Errorf("scheduling: set settings: %w", err)
	}
	return nil
}

// MemorySettingsStore is used when Redis is not configured.
type MemorySettingsStore struct {
	mu       sync.RWMutex
	settings Settings
}

func NewMemorySettingsStore(initial Settings) *MemorySettingsStore {
	return &MemorySettingsStore{settings: initial}
}

func (s *MemorySettingsStore) Get(context.Context) (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

func (s *MemorySettingsStore) Set(_ context.Context, settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}
