package converter

import (
	"time"

	"github.com/mherren/voxbot/internal/domain"
)

type RoomResponse struct {
	VoiceChannelID string    `json:"voice_channel_id"`
	TextChannelID  string    `json:"text_channel_id"`
	GuildID        string    `json:"guild_id"`
	GeneratorID    string    `json:"generator_id"`
	OwnerID        string    `json:"owner_id"`
	Name           string    `json:"name"`
	Visibility     string    `json:"visibility"`
	JoinMuteSec    int       `json:"join_mute_seconds"`
	AllowList      []string  `json:"allow_list"`
	Size           int       `json:"size"`
	Bitrate        int       `json:"bitrate"`
	CreatedAt      time.Time `json:"created_at"`
}

type GeneratorResponse struct {
	GuildID          string    `json:"guild_id"`
	TriggerChannelID string    `json:"trigger_channel_id"`
	DefaultSize      int       `json:"default_size"`
	DefaultBitrate   int       `json:"default_bitrate"`
	NameTemplate     string    `json:"name_template"`
	CreatedAt        time.Time `json:"created_at"`
}

func RoomToApi(room domain.Room) RoomResponse {
	return RoomResponse{
		VoiceChannelID: room.VoiceChannelID,
		TextChannelID:  room.TextChannelID,
		GuildID:        room.GuildID,
		GeneratorID:    room.GeneratorID,
		OwnerID:        room.OwnerID,
		Name:           room.Name,
		Visibility:     string(room.Visibility),
		JoinMuteSec:    int(room.JoinMute.Seconds()),
		AllowList:      room.AllowedIDs(),
		Size:           room.Size,
		Bitrate:        room.Bitrate,
		CreatedAt:      room.CreatedAt,
	}
}

func GeneratorToApi(gen domain.GeneratorConfig) GeneratorResponse {
	return GeneratorResponse{
		GuildID:          gen.GuildID,
		TriggerChannelID: gen.TriggerChannelID,
		DefaultSize:      gen.DefaultSize,
		DefaultBitrate:   gen.DefaultBitrate,
		NameTemplate:     gen.NameTemplate,
		CreatedAt:        gen.CreatedAt,
	}
}
