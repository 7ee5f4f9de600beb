package platform

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// DiscordClient adapts a discordgo session to the Client capability surface.
type DiscordClient struct {
	session *discordgo.Session
}

func NewDiscordClient(session *discordgo.Session) *DiscordClient {
	return &DiscordClient{session: session}
}

func (c *DiscordClient) CreateVoiceTextPair(ctx context.Context, req CreateRoomRequest) (ChannelPair, error) {
	if err := ctx.Err(); err != nil {
		return ChannelPair{}, err
	}

	voice, err := c.session.GuildChannelCreateComplex(req.GuildID, discordgo.GuildChannelCreateData{
		Name:      req.Name,
		Type:      discordgo.ChannelTypeGuildVoice,
		UserLimit: req.Size,
		Bitrate:   req.Bitrate * 1000,
		ParentID:  req.VoiceCategoryID,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return ChannelPair{}, wrap("create voice channel", err)
	}

	text, err := c.session.GuildChannelCreateComplex(req.GuildID, discordgo.GuildChannelCreateData{
		Name:     req.Name,
		Type:     discordgo.ChannelTypeGuildText,
		ParentID: req.TextCategoryID,
	}, discordgo.WithContext(ctx))
	if err != nil {
		// Never leave a half-created pair behind.
		_, _ = c.session.ChannelDelete(voice.ID, discordgo.WithContext(ctx))
		return ChannelPair{}, wrap("create text channel", err)
	}

	return ChannelPair{VoiceID: voice.ID, TextID: text.ID}, nil
}

func (c *DiscordClient) DeleteChannelPair(ctx context.Context, pair ChannelPair) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// The channels are deleted separately so that one of them having been
	// removed out-of-band does not strand the other.
	var firstErr error
	for _, id := range []string{pair.TextID, pair.VoiceID} {
		if id == "" {
			continue
		}
		if _, err := c.session.ChannelDelete(id, discordgo.WithContext(ctx)); err != nil && !isNotFound(err) {
			if firstErr == nil {
				firstErr = wrap("delete channel", err)
			}
		}
	}
	return firstErr
}

func (c *DiscordClient) SetPermission(ctx context.Context, channelID, targetID string, allow bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	perms := int64(discordgo.PermissionVoiceConnect | discordgo.PermissionViewChannel | discordgo.PermissionSendMessages)
	var allowBits, denyBits int64
	if allow {
		allowBits = perms
	} else {
		denyBits = perms
	}

	err := c.session.ChannelPermissionSet(
		channelID, targetID, overwriteType(targetID, channelID, c.session), allowBits, denyBits,
		discordgo.WithContext(ctx),
	)
	if err != nil {
		return wrap("set permission", err)
	}
	return nil
}

func (c *DiscordClient) ClearPermission(ctx context.Context, channelID, targetID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.session.ChannelPermissionDelete(channelID, targetID, discordgo.WithContext(ctx)); err != nil && !isNotFound(err) {
		return wrap("clear permission", err)
	}
	return nil
}

func (c *DiscordClient) SetMute(ctx context.Context, guildID, memberID string, muted bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.session.GuildMemberMute(guildID, memberID, muted, discordgo.WithContext(ctx)); err != nil {
		return wrap("set mute", err)
	}
	return nil
}

func (c *DiscordClient) MoveMember(ctx context.Context, guildID, memberID, channelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.session.GuildMemberMove(guildID, memberID, &channelID, discordgo.WithContext(ctx)); err != nil {
		return wrap("move member", err)
	}
	return nil
}

func (c *DiscordClient) DisconnectMember(ctx context.Context, guildID, memberID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := c.session.GuildMemberMove(guildID, memberID, nil, discordgo.WithContext(ctx)); err != nil {
		return wrap("disconnect member", err)
	}
	return nil
}

func (c *DiscordClient) RenameChannel(ctx context.Context, channelID, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := c.session.ChannelEdit(channelID, &discordgo.ChannelEdit{Name: name}, discordgo.WithContext(ctx)); err != nil {
		return wrap("rename channel", err)
	}
	return nil
}

func (c *DiscordClient) EditVoiceChannel(ctx context.Context, channelID string, size, bitrate int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	edit := &discordgo.ChannelEdit{}
	if size > 0 {
		edit.UserLimit = size
	}
	if bitrate > 0 {
		edit.Bitrate = bitrate * 1000
	}

	if _, err := c.session.ChannelEdit(channelID, edit, discordgo.WithContext(ctx)); err != nil {
		return wrap("edit voice channel", err)
	}
	return nil
}

func (c *DiscordClient) SendMessage(ctx context.Context, channelID, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := c.session.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx)); err != nil {
		return wrap("send message", err)
	}
	return nil
}

func (c *DiscordClient) ChannelMembers(guildID, channelID string) []string {
	guild, err := c.session.State.Guild(guildID)
	if err != nil {
		return nil
	}

	var members []string
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID == channelID {
			members = append(members, vs.UserID)
		}
	}
	return members
}

func (c *DiscordClient) MemberDisplayName(guildID, memberID string) string {
	member, err := c.session.State.Member(guildID, memberID)
	if err != nil {
		member, err = c.session.GuildMember(guildID, memberID)
		if err != nil {
			return memberID
		}
	}

	if member.Nick != "" {
		return member.Nick
	}
	if member.User != nil {
		if member.User.GlobalName != "" {
			return member.User.GlobalName
		}
		return member.User.Username
	}
	return memberID
}

func (c *DiscordClient) IsAdmin(guildID, memberID string) bool {
	guild, err := c.session.State.Guild(guildID)
	if err != nil {
		return false
	}
	if guild.OwnerID == memberID {
		return true
	}

	member, err := c.session.State.Member(guildID, memberID)
	if err != nil {
		member, err = c.session.GuildMember(guildID, memberID)
		if err != nil {
			return false
		}
	}

	for _, roleID := range member.Roles {
		for _, role := range guild.Roles {
			if role.ID == roleID && role.Permissions&discordgo.PermissionAdministrator != 0 {
				return true
			}
		}
	}
	return false
}

// Discord permission overwrites for roles and members go through the same
// endpoint; the @everyone role shares its id with the guild.
func overwriteType(targetID, channelID string, session *discordgo.Session) discordgo.PermissionOverwriteType {
	if channel, err := session.State.Channel(channelID); err == nil {
		if targetID == channel.GuildID {
			return discordgo.PermissionOverwriteTypeRole
		}
		if guild, err := session.State.Guild(channel.GuildID); err == nil {
			for _, role := range guild.Roles {
				if role.ID == targetID {
					return discordgo.PermissionOverwriteTypeRole
				}
			}
		}
	}
	return discordgo.PermissionOverwriteTypeMember
}

func wrap(op string, err error) error {
	return &APIError{Op: op, Transient: isTransient(err), Err: err}
}

func isTransient(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		code := restErr.Response.StatusCode
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	var rateErr *discordgo.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// Anything that didn't even reach the REST layer is likely network flake.
	return !errors.As(err, &restErr)
}

func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil &&
		restErr.Response.StatusCode == http.StatusNotFound
}
