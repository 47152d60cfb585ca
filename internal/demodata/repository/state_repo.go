package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nocturne-health/demo-backend/internal/demodata/domain"
	"github.com/nocturne-health/demo-backend/internal/demodata/engine"
	"github.com/redis/go-redis/v9"
)

const (
	stateKey         = "demo:sim:state"  // Carried simulation state between ticks
	latestEntryKey   = "demo:sim:latest" // Most recent generated entry
	tickEventChannel = "demo:sim:events" // Pub/Sub channel for live tick events
	stateTTL         = 7 * 24 * time.Hour
)

// StateRepository persists the live simulation state in Redis so a ticker can
// resume mid-day after a restart, and fans out tick events over Pub/Sub.
type StateRepository struct {
	client *redis.Client
}

// NewStateRepository creates a new StateRepository
func NewStateRepository(client *redis.Client) *StateRepository {
	return &StateRepository{client: client}
}

// SaveState stores the carried simulation state.
func (r *StateRepository) SaveState(ctx context.Context, st engine.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal simulation state: %w", err)
	}

	if err := r.client.Set(ctx, stateKey, data, stateTTL).Err(); err != nil {
		return fmt.Errorf("failed to save simulation state: %w", err)
	}

	return nil
}

// LoadState retrieves the carried simulation state.
func (r *StateRepository) LoadState(ctx context.Context) (engine.State, error) {
	data, err := r.client.Get(ctx, stateKey).Result()
	if err == redis.Nil {
		return engine.State{}, domain.ErrStateNotFound
	}
	if err != nil {
		return engine.State{}, fmt.Errorf("failed to load simulation state: %w", err)
	}

	var st engine.State
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return engine.State{}, fmt.Errorf("failed to unmarshal simulation state: %w", err)
	}

	return st, nil
}

// SaveLatest caches the most recent entry and publishes it as a tick event.
func (r *StateRepository) SaveLatest(ctx context.Context, entry domain.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, latestEntryKey, data, stateTTL)
	pipe.Publish(ctx, tickEventChannel, data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save latest entry: %w", err)
	}

	return nil
}

// Latest retrieves the cached most recent entry.
func (r *StateRepository) Latest(ctx context.Context) (*domain.Entry, error) {
	data, err := r.client.Get(ctx, latestEntryKey).Result()
	if err == redis.Nil {
		return nil, domain.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest entry: %w", err)
	}

	var entry domain.Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entry: %w", err)
	}

	return &entry, nil
}

// Clear drops the carried state and latest-entry cache. Used by the demo data
// purge so the next tick starts a fresh run.
func (r *StateRepository) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, stateKey, latestEntryKey).Err(); err != nil {
		return fmt.Errorf("failed to clear simulation state: %w", err)
	}
	return nil
}
