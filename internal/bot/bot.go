package bot

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/mherren/voxbot/internal/platform"
	"github.com/mherren/voxbot/internal/service"
)

// Bot glues the discord gateway to the room lifecycle: voice state changes
// and prefixed text commands come in, service calls go out.
type Bot struct {
	session   *discordgo.Session
	client    platform.Client
	lifecycle *service.Lifecycle
	registry  *service.Registry
	filters   *service.NameFilterManager
	store     *service.RoomStore
	prefix    string
	log       *slog.Logger
}

func New(
	session *discordgo.Session,
	client platform.Client,
	lifecycle *service.Lifecycle,
	registry *service.Registry,
	filters *service.NameFilterManager,
	store *service.RoomStore,
	prefix string,
	log *slog.Logger,
) *Bot {
	if log == nil {
		log = slog.Default()
	}
	return &Bot{
		session:   session,
		client:    client,
		lifecycle: lifecycle,
		registry:  registry,
		filters:   filters,
		store:     store,
		prefix:    prefix,
		log:       log,
	}
}

func (b *Bot) Start() error {
	b.session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onVoiceStateUpdate)
	b.session.AddHandler(b.onChannelDelete)

	return b.session.Open()
}

func (b *Bot) Stop() error {
	return b.session.Close()
}

func (b *Bot) onVoiceStateUpdate(
	_ *discordgo.Session,
	ev *discordgo.VoiceStateUpdate,
) {
	var prev string
	if ev.BeforeUpdate != nil {
		prev = ev.BeforeUpdate.ChannelID
	}

	// Same channel means a state flag flipped, not a move; the only flag we
	// track is the server mute, so moderator mutes are never overridden.
	if prev == ev.ChannelID {
		if ev.BeforeUpdate == nil {
			return
		}
		switch {
		case !ev.BeforeUpdate.Mute && ev.Mute:
			b.lifecycle.RegisterManualMute(ev.GuildID, ev.UserID)
		case ev.BeforeUpdate.Mute && !ev.Mute:
			b.lifecycle.RegisterManualUnmute(ev.GuildID, ev.UserID)
		}
		return
	}

	b.lifecycle.HandleVoiceState(context.Background(), service.VoiceStateEvent{
		GuildID:       ev.GuildID,
		MemberID:      ev.UserID,
		ChannelID:     ev.ChannelID,
		PrevChannelID: prev,
	})
}

func (b *Bot) onChannelDelete(_ *discordgo.Session, ev *discordgo.ChannelDelete) {
	b.lifecycle.HandleChannelDelete(context.Background(), ev.Channel.ID)
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	b.HandleCommand(context.Background(), Invocation{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		AuthorID:  m.Author.ID,
		Content:   m.Content,
	})
}
