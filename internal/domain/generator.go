package domain

import (
	"strings"
	"time"
)

const DefaultNameTemplate = "{user}'s room"

// GeneratorConfig describes a trigger voice channel that spawns a new room
// for every member who joins it. At most one config exists per trigger
// channel id.
type GeneratorConfig struct {
	GuildID          string
	TriggerChannelID string
	VoiceCategoryID  string
	TextCategoryID   string
	DefaultSize      int
	DefaultBitrate   int
	NameTemplate     string
	CreatedAt        time.Time
}

func NewGeneratorConfig(guildID, triggerChannelID string) GeneratorConfig {
	return GeneratorConfig{
		GuildID:          guildID,
		TriggerChannelID: triggerChannelID,
		NameTemplate:     DefaultNameTemplate,
		CreatedAt:        time.Now().UTC(),
	}
}

// RoomName substitutes the joining member's display name into the template.
func (g GeneratorConfig) RoomName(displayName string) string {
	template := g.NameTemplate
	if template == "" {
		template = DefaultNameTemplate
	}
	return strings.ReplaceAll(template, "{user}", displayName)
}
