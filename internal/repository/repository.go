package repository

import (
	"context"
	"errors"

	"github.com/mherren/voxbot/internal/domain"
)

var (
	ErrGeneratorExists   = errors.New("generator already exists")
	ErrGeneratorNotFound = errors.New("generator not found")
)

type GeneratorRepository interface {
	Create(ctx context.Context, cfg domain.GeneratorConfig) error
	Delete(ctx context.Context, triggerChannelID string) error
	List(ctx context.Context) ([]domain.GeneratorConfig, error)
}

// FilterRepository persists per-guild room name filter patterns in their
// insertion order.
type FilterRepository interface {
	Save(ctx context.Context, guildID string, patterns []string) error
	Load(ctx context.Context) (map[string][]string, error)
}
