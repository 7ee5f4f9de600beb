package repository

import (
	"context"
	"errors"

	"github.com/mherren/voxbot/internal/domain"
	"github.com/mherren/voxbot/internal/repository/model"
	"gorm.io/gorm"
)

type PostgresGeneratorRepository struct {
	db *gorm.DB
}

func NewPostgresGeneratorRepository(db *gorm.DB) *PostgresGeneratorRepository {
	return &PostgresGeneratorRepository{db: db}
}

func (r *PostgresGeneratorRepository) Create(ctx context.Context, cfg domain.GeneratorConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := r.db.WithContext(ctx).Create(toModelGenerator(cfg)).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrGeneratorExists
		}
		return err
	}
	return nil
}

func (r *PostgresGeneratorRepository) Delete(ctx context.Context, triggerChannelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	res := r.db.WithContext(ctx).Delete(&model.Generator{}, "trigger_channel_id = ?", triggerChannelID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrGeneratorNotFound
	}
	return nil
}

func (r *PostgresGeneratorRepository) List(ctx context.Context) ([]domain.GeneratorConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var generators []model.Generator
	if err := r.db.WithContext(ctx).Find(&generators).Error; err != nil {
		return nil, err
	}

	result := make([]domain.GeneratorConfig, 0, len(generators))
	for i := range generators {
		result = append(result, toDomainGenerator(&generators[i]))
	}
	return result, nil
}

type PostgresFilterRepository struct {
	db *gorm.DB
}

func NewPostgresFilterRepository(db *gorm.DB) *PostgresFilterRepository {
	return &PostgresFilterRepository{db: db}
}

func (r *PostgresFilterRepository) Save(ctx context.Context, guildID string, patterns []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("guild_id = ?", guildID).Delete(&model.NameFilter{}).Error; err != nil {
			return err
		}

		if len(patterns) == 0 {
			return nil
		}

		rows := make([]model.NameFilter, 0, len(patterns))
		for i, pattern := range patterns {
			rows = append(rows, model.NameFilter{
				GuildID:  guildID,
				Position: i,
				Pattern:  pattern,
			})
		}
		return tx.Create(&rows).Error
	})
}

func (r *PostgresFilterRepository) Load(ctx context.Context) (map[string][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []model.NameFilter
	if err := r.db.WithContext(ctx).Order("guild_id, position").Find(&rows).Error; err != nil {
		return nil, err
	}

	result := make(map[string][]string)
	for _, row := range rows {
		result[row.GuildID] = append(result[row.GuildID], row.Pattern)
	}
	return result, nil
}

func toModelGenerator(cfg domain.GeneratorConfig) *model.Generator {
	return &model.Generator{
		TriggerChannelID: cfg.TriggerChannelID,
		GuildID:          cfg.GuildID,
		VoiceCategoryID:  cfg.VoiceCategoryID,
		TextCategoryID:   cfg.TextCategoryID,
		DefaultSize:      cfg.DefaultSize,
		DefaultBitrate:   cfg.DefaultBitrate,
		NameTemplate:     cfg.NameTemplate,
		CreatedAt:        cfg.CreatedAt.UTC(),
	}
}

func toDomainGenerator(gen *model.Generator) domain.GeneratorConfig {
	return domain.GeneratorConfig{
		GuildID:          gen.GuildID,
		TriggerChannelID: gen.TriggerChannelID,
		VoiceCategoryID:  gen.VoiceCategoryID,
		TextCategoryID:   gen.TextCategoryID,
		DefaultSize:      gen.DefaultSize,
		DefaultBitrate:   gen.DefaultBitrate,
		NameTemplate:     gen.NameTemplate,
		CreatedAt:        gen.CreatedAt.UTC(),
	}
}
