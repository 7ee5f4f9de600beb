package repository

import (
	"context"
	"sync"

	"github.com/mherren/voxbot/internal/domain"
)

type InMemoryGeneratorRepository struct {
	mu         sync.RWMutex
	generators map[string]domain.GeneratorConfig
}

func NewInMemoryGeneratorRepository() *InMemoryGeneratorRepository {
	return &InMemoryGeneratorRepository{
		generators: make(map[string]domain.GeneratorConfig),
	}
}

func (r *InMemoryGeneratorRepository) Create(ctx context.Context, cfg domain.GeneratorConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.generators[cfg.TriggerChannelID]; ok {
		return ErrGeneratorExists
	}

	r.generators[cfg.TriggerChannelID] = cfg
	return nil
}

func (r *InMemoryGeneratorRepository) Delete(ctx context.Context, triggerChannelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.generators[triggerChannelID]; !ok {
		return ErrGeneratorNotFound
	}

	delete(r.generators, triggerChannelID)
	return nil
}

func (r *InMemoryGeneratorRepository) List(ctx context.Context) ([]domain.GeneratorConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.GeneratorConfig, 0, len(r.generators))
	for _, cfg := range r.generators {
		result = append(result, cfg)
	}
	return result, nil
}

type InMemoryFilterRepository struct {
	mu      sync.RWMutex
	filters map[string][]string
}

func NewInMemoryFilterRepository() *InMemoryFilterRepository {
	return &InMemoryFilterRepository{
		filters: make(map[string][]string),
	}
}

func (r *InMemoryFilterRepository) Save(ctx context.Context, guildID string, patterns []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(patterns) == 0 {
		delete(r.filters, guildID)
		return nil
	}

	stored := make([]string, len(patterns))
	copy(stored, patterns)
	r.filters[guildID] = stored
	return nil
}

func (r *InMemoryFilterRepository) Load(ctx context.Context) (map[string][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string][]string, len(r.filters))
	for guildID, patterns := range r.filters {
		copied := make([]string, len(patterns))
		copy(copied, patterns)
		result[guildID] = copied
	}
	return result, nil
}
