package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/mherren/voxbot/internal/domain"
	"github.com/mherren/voxbot/internal/service"
	"github.com/mherren/voxbot/lib/logger/sl"
)

// Invocation is one incoming text command, already stripped of transport
// details.
type Invocation struct {
	GuildID   string
	ChannelID string
	AuthorID  string
	Content   string
}

const usage = "subcommands: list | public | private | joinmute <s> | end | " +
	"add <target> | remove <target> | mute <target> | unmute <target> | " +
	"name <text> | size <n> | bitrate <n> | transfer <target> | " +
	"setup <trigger-id> [size] [bitrate] [template] | listall | " +
	"admindel <trigger-id> | filter <add|remove|list> [pattern]"

// HandleCommand parses and dispatches one `&vc ...` invocation. Rejected
// commands (unknown subcommand, missing authorization, bad arguments) are
// reported back and cause no side effects.
func (b *Bot) HandleCommand(ctx context.Context, inv Invocation) {
	content := strings.TrimSpace(inv.Content)
	if !strings.HasPrefix(content, b.prefix) {
		return
	}
	rest := strings.TrimPrefix(content, b.prefix)
	if rest != "" && !strings.HasPrefix(rest, " ") {
		return
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		b.reply(ctx, inv.ChannelID, usage)
		return
	}
	sub := strings.ToLower(fields[0])
	args := fields[1:]

	var err error
	switch sub {
	case "list":
		b.cmdList(ctx, inv)
	case "public":
		err = b.withOwnedRoom(inv, func(voiceID string) error {
			return b.lifecycle.SetVisibility(ctx, voiceID, domain.VisibilityPublic, 0)
		})
	case "private":
		err = b.withOwnedRoom(inv, func(voiceID string) error {
			return b.lifecycle.SetVisibility(ctx, voiceID, domain.VisibilityPrivate, 0)
		})
	case "joinmute":
		err = b.cmdJoinMute(ctx, inv, args)
	case "end":
		err = b.withOwnedRoom(inv, func(voiceID string) error {
			return b.lifecycle.EndRoom(ctx, voiceID)
		})
	case "add":
		err = b.cmdTarget(ctx, inv, args, b.lifecycle.AllowTarget)
	case "remove":
		err = b.cmdTarget(ctx, inv, args, b.lifecycle.DenyTarget)
	case "mute":
		err = b.cmdTarget(ctx, inv, args, b.lifecycle.MuteMember)
	case "unmute":
		err = b.cmdTarget(ctx, inv, args, b.lifecycle.UnmuteMember)
	case "name":
		err = b.cmdName(ctx, inv, args)
	case "size":
		err = b.cmdSize(ctx, inv, args)
	case "bitrate":
		err = b.cmdBitrate(ctx, inv, args)
	case "transfer":
		err = b.cmdTransfer(ctx, inv, args)
	case "setup":
		err = b.cmdSetup(ctx, inv, args)
	case "listall":
		err = b.cmdListAll(ctx, inv)
	case "admindel":
		err = b.cmdAdminDelete(ctx, inv, args)
	case "filter":
		err = b.cmdFilter(ctx, inv, args)
	default:
		b.reply(ctx, inv.ChannelID, "unknown subcommand. "+usage)
		return
	}

	if err != nil {
		b.reply(ctx, inv.ChannelID, describeError(err))
		b.log.Info("command rejected",
			slog.String("sub", sub),
			slog.String("author_id", inv.AuthorID),
			sl.Err(err),
		)
		return
	}
	if sub != "list" {
		b.reply(ctx, inv.ChannelID, "done.")
	}
}

var errNoRoom = errors.New("you do not own a voice room")
var errNotAdmin = errors.New("this command needs the administrator permission")
var errBadArgs = errors.New("bad arguments")

func (b *Bot) withOwnedRoom(inv Invocation, fn func(voiceID string) error) error {
	room, ok := b.store.GetByOwner(inv.AuthorID)
	if !ok || room.GuildID != inv.GuildID {
		return errNoRoom
	}
	return fn(room.VoiceChannelID)
}

func (b *Bot) requireAdmin(inv Invocation) error {
	if !b.client.IsAdmin(inv.GuildID, inv.AuthorID) {
		return errNotAdmin
	}
	return nil
}

func (b *Bot) cmdList(ctx context.Context, inv Invocation) {
	rooms := b.store.List(inv.GuildID)
	if len(rooms) == 0 {
		b.reply(ctx, inv.ChannelID, "no active rooms.")
		return
	}

	var sb strings.Builder
	sb.WriteString("active rooms:\n")
	for _, room := range rooms {
		fmt.Fprintf(&sb, "- %s (%s, owner <@%s>)\n", room.Name, room.Visibility, room.OwnerID)
	}
	b.reply(ctx, inv.ChannelID, sb.String())
}

func (b *Bot) cmdJoinMute(ctx context.Context, inv Invocation, args []string) error {
	var muteFor time.Duration
	if len(args) > 0 {
		seconds, err := strconv.Atoi(args[0])
		if err != nil || seconds <= 0 {
			return errBadArgs
		}
		muteFor = time.Duration(seconds) * time.Second
	}
	return b.withOwnedRoom(inv, func(voiceID string) error {
		return b.lifecycle.SetVisibility(ctx, voiceID, domain.VisibilityJoinMute, muteFor)
	})
}

func (b *Bot) cmdTarget(
	ctx context.Context,
	inv Invocation,
	args []string,
	fn func(ctx context.Context, voiceID, targetID string) error,
) error {
	if len(args) != 1 {
		return errBadArgs
	}
	targetID := parseTarget(args[0])
	if targetID == "" {
		return errBadArgs
	}
	return b.withOwnedRoom(inv, func(voiceID string) error {
		return fn(ctx, voiceID, targetID)
	})
}

func (b *Bot) cmdName(ctx context.Context, inv Invocation, args []string) error {
	if len(args) == 0 {
		return errBadArgs
	}
	newName := strings.Join(args, " ")
	return b.withOwnedRoom(inv, func(voiceID string) error {
		return b.lifecycle.Rename(ctx, voiceID, newName)
	})
}

func (b *Bot) cmdSize(ctx context.Context, inv Invocation, args []string) error {
	if len(args) != 1 {
		return errBadArgs
	}
	size, err := strconv.Atoi(args[0])
	if err != nil {
		return errBadArgs
	}
	return b.withOwnedRoom(inv, func(voiceID string) error {
		return b.lifecycle.Resize(ctx, voiceID, size)
	})
}

func (b *Bot) cmdBitrate(ctx context.Context, inv Invocation, args []string) error {
	if len(args) != 1 {
		return errBadArgs
	}
	kbps, err := strconv.Atoi(args[0])
	if err != nil {
		return errBadArgs
	}
	return b.withOwnedRoom(inv, func(voiceID string) error {
		return b.lifecycle.SetBitrate(ctx, voiceID, kbps)
	})
}

func (b *Bot) cmdTransfer(ctx context.Context, inv Invocation, args []string) error {
	if len(args) != 1 {
		return errBadArgs
	}
	targetID := parseTarget(args[0])
	if targetID == "" {
		return errBadArgs
	}
	return b.withOwnedRoom(inv, func(voiceID string) error {
		return b.lifecycle.TransferOwnership(ctx, voiceID, inv.AuthorID, targetID)
	})
}

func (b *Bot) cmdSetup(ctx context.Context, inv Invocation, args []string) error {
	if err := b.requireAdmin(inv); err != nil {
		return err
	}
	if len(args) == 0 {
		return errBadArgs
	}

	cfg := domain.NewGeneratorConfig(inv.GuildID, parseChannelID(args[0]))
	if cfg.TriggerChannelID == "" {
		return errBadArgs
	}

	if len(args) > 1 {
		size, err := strconv.Atoi(args[1])
		if err != nil || size < 0 {
			return errBadArgs
		}
		cfg.DefaultSize = size
	}
	if len(args) > 2 {
		kbps, err := strconv.Atoi(args[2])
		if err != nil || kbps < 0 {
			return errBadArgs
		}
		cfg.DefaultBitrate = kbps
	}
	if len(args) > 3 {
		cfg.NameTemplate = strings.Join(args[3:], " ")
	}

	// New rooms land in the same category as the trigger channel.
	if b.session != nil {
		if channel, err := b.session.State.Channel(cfg.TriggerChannelID); err == nil {
			cfg.VoiceCategoryID = channel.ParentID
			cfg.TextCategoryID = channel.ParentID
		}
	}

	return b.registry.Register(ctx, cfg)
}

func (b *Bot) cmdListAll(ctx context.Context, inv Invocation) error {
	if err := b.requireAdmin(inv); err != nil {
		return err
	}

	generators := b.registry.List(inv.GuildID)
	if len(generators) == 0 {
		b.reply(ctx, inv.ChannelID, "no generators configured.")
		return nil
	}

	var sb strings.Builder
	sb.WriteString("generators:\n")
	for _, gen := range generators {
		fmt.Fprintf(&sb, "- trigger %s, size %d, bitrate %d, template %q\n",
			gen.TriggerChannelID, gen.DefaultSize, gen.DefaultBitrate, gen.NameTemplate)
	}
	b.reply(ctx, inv.ChannelID, sb.String())
	return nil
}

func (b *Bot) cmdAdminDelete(ctx context.Context, inv Invocation, args []string) error {
	if err := b.requireAdmin(inv); err != nil {
		return err
	}
	if len(args) != 1 {
		return errBadArgs
	}
	triggerID := parseChannelID(args[0])
	if triggerID == "" {
		return errBadArgs
	}
	return b.registry.Unregister(ctx, triggerID)
}

func (b *Bot) cmdFilter(ctx context.Context, inv Invocation, args []string) error {
	if err := b.requireAdmin(inv); err != nil {
		return err
	}
	if len(args) == 0 {
		return errBadArgs
	}

	switch strings.ToLower(args[0]) {
	case "list":
		patterns := b.filters.ListFilters(inv.GuildID)
		if len(patterns) == 0 {
			b.reply(ctx, inv.ChannelID, "no name filters configured.")
			return nil
		}
		b.reply(ctx, inv.ChannelID, "name filters:\n`"+strings.Join(patterns, "`\n`")+"`")
		return nil
	case "add", "remove":
		if len(args) < 2 {
			return errBadArgs
		}
		pattern := strings.Join(args[1:], " ")
		added, err := b.filters.AddFilter(ctx, inv.GuildID, pattern)
		if err != nil {
			return err
		}
		if added {
			b.reply(ctx, inv.ChannelID, "filter added: `"+pattern+"`")
		} else {
			b.reply(ctx, inv.ChannelID, "filter removed: `"+pattern+"`")
		}
		return nil
	default:
		return errBadArgs
	}
}

func (b *Bot) reply(ctx context.Context, channelID, content string) {
	if err := b.client.SendMessage(ctx, channelID, content); err != nil {
		b.log.Warn("failed to send reply", slog.String("channel_id", channelID), sl.Err(err))
	}
}

// parseTarget extracts an id from a raw snowflake or a <@id>/<@!id>/<@&id>
// mention.
func parseTarget(raw string) string {
	id := strings.TrimSuffix(raw, ">")
	id = strings.TrimPrefix(id, "<@&")
	id = strings.TrimPrefix(id, "<@!")
	id = strings.TrimPrefix(id, "<@")
	if id == "" || strings.ContainsFunc(id, func(r rune) bool { return r < '0' || r > '9' }) {
		return ""
	}
	return id
}

func parseChannelID(raw string) string {
	id := strings.TrimSuffix(raw, ">")
	id = strings.TrimPrefix(id, "<#")
	if id == "" || strings.ContainsFunc(id, func(r rune) bool { return r < '0' || r > '9' }) {
		return ""
	}
	return id
}

func describeError(err error) string {
	var rejected *service.NameRejectedError
	switch {
	case errors.As(err, &rejected):
		return "that name is not allowed (matched filter `" + rejected.Pattern + "`)."
	case errors.Is(err, errNoRoom),
		errors.Is(err, errNotAdmin):
		return err.Error() + "."
	case errors.Is(err, errBadArgs):
		return "bad arguments. " + usage
	case errors.Is(err, service.ErrDuplicateTrigger):
		return "that channel already has a generator."
	case errors.Is(err, service.ErrGeneratorNotFound):
		return "no generator is configured for that channel."
	case errors.Is(err, service.ErrMuteTooLong):
		return "join mute duration is too long."
	case errors.Is(err, service.ErrInvalidSize):
		return "room size is out of range."
	case errors.Is(err, service.ErrInvalidBitrate):
		return "bitrate is out of range."
	case errors.Is(err, service.ErrRenameRateLimited):
		return "the room was renamed too recently, try again later."
	case errors.Is(err, service.ErrTargetNotInRoom):
		return "that member is not in your room."
	case errors.Is(err, service.ErrCannotTargetOwner):
		return "you cannot do that to the room owner."
	case errors.Is(err, service.ErrCannotTargetSelf):
		return "you cannot do that to yourself."
	case errors.Is(err, service.ErrTransferToOccupied):
		return "that member already owns a room."
	default:
		return "something went wrong, try again later."
	}
}
