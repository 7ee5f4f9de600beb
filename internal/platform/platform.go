package platform

import (
	"context"
	"errors"
	"fmt"
)

// ChannelPair is a voice channel and its companion text channel. The two are
// provisioned and destroyed together.
type ChannelPair struct {
	VoiceID string
	TextID  string
}

type CreateRoomRequest struct {
	GuildID         string
	Name            string
	VoiceCategoryID string
	TextCategoryID  string
	Size            int
	Bitrate         int
}

// Client is the capability surface the bot needs from the chat platform.
// Implementations must be safe for concurrent use.
type Client interface {
	CreateVoiceTextPair(ctx context.Context, req CreateRoomRequest) (ChannelPair, error)
	DeleteChannelPair(ctx context.Context, pair ChannelPair) error

	// SetPermission grants (allow=true) or denies (allow=false) a member or
	// role access to a channel; ClearPermission removes the overwrite
	// entirely, falling back to guild defaults.
	SetPermission(ctx context.Context, channelID, targetID string, allow bool) error
	ClearPermission(ctx context.Context, channelID, targetID string) error

	SetMute(ctx context.Context, guildID, memberID string, muted bool) error
	MoveMember(ctx context.Context, guildID, memberID, channelID string) error
	DisconnectMember(ctx context.Context, guildID, memberID string) error

	RenameChannel(ctx context.Context, channelID, name string) error
	EditVoiceChannel(ctx context.Context, channelID string, size, bitrate int) error

	SendMessage(ctx context.Context, channelID, content string) error

	// ChannelMembers returns a live snapshot of the member ids currently
	// connected to a voice channel.
	ChannelMembers(guildID, channelID string) []string
	MemberDisplayName(guildID, memberID string) string
	IsAdmin(guildID, memberID string) bool
}

// APIError wraps a platform call failure. Transient failures (rate limits,
// timeouts) are retried; permanent ones are not.
type APIError struct {
	Op        string
	Transient bool
	Err       error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform: %s: %v", e.Op, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient
	}
	return false
}
