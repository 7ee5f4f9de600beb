package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mherren/voxbot/internal/domain"
	"github.com/mherren/voxbot/internal/repository"
)

var (
	ErrDuplicateTrigger  = errors.New("trigger channel already has a generator")
	ErrGeneratorNotFound = errors.New("generator not found")
)

// Registry holds the configured room generators, backed by persistent
// storage with a read-mostly in-memory cache.
type Registry struct {
	repo repository.GeneratorRepository
	log  *slog.Logger

	mu         sync.RWMutex
	generators map[string]domain.GeneratorConfig
}

func NewRegistry(repo repository.GeneratorRepository, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		repo:       repo,
		log:        log,
		generators: make(map[string]domain.GeneratorConfig),
	}
}

func (r *Registry) LoadAll(ctx context.Context) error {
	const op = "service.registry.loadAll"

	stored, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.generators = make(map[string]domain.GeneratorConfig, len(stored))
	for _, cfg := range stored {
		r.generators[cfg.TriggerChannelID] = cfg
	}

	r.log.Info("generators loaded", slog.Int("count", len(stored)))
	return nil
}

func (r *Registry) Register(ctx context.Context, cfg domain.GeneratorConfig) error {
	const op = "service.registry.register"

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.generators[cfg.TriggerChannelID]; ok {
		return ErrDuplicateTrigger
	}

	if err := r.repo.Create(ctx, cfg); err != nil {
		if errors.Is(err, repository.ErrGeneratorExists) {
			return ErrDuplicateTrigger
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	r.generators[cfg.TriggerChannelID] = cfg
	return nil
}

func (r *Registry) Unregister(ctx context.Context, triggerChannelID string) error {
	const op = "service.registry.unregister"

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.generators[triggerChannelID]; !ok {
		return ErrGeneratorNotFound
	}

	if err := r.repo.Delete(ctx, triggerChannelID); err != nil && !errors.Is(err, repository.ErrGeneratorNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}

	delete(r.generators, triggerChannelID)
	return nil
}

func (r *Registry) Lookup(triggerChannelID string) (domain.GeneratorConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.generators[triggerChannelID]
	return cfg, ok
}

func (r *Registry) List(guildID string) []domain.GeneratorConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.GeneratorConfig, 0, len(r.generators))
	for _, cfg := range r.generators {
		if guildID == "" || cfg.GuildID == guildID {
			result = append(result, cfg)
		}
	}
	return result
}
