package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mherren/voxbot/internal/config"
	"github.com/mherren/voxbot/internal/domain"
	"github.com/mherren/voxbot/internal/platform"
	"github.com/mherren/voxbot/lib/logger/sl"
)

var (
	ErrMuteTooLong        = errors.New("join mute duration exceeds the maximum")
	ErrInvalidSize        = errors.New("room size out of range")
	ErrInvalidBitrate     = errors.New("bitrate out of range")
	ErrRenameRateLimited  = errors.New("room was renamed too recently")
	ErrTargetNotInRoom    = errors.New("target is not in the room")
	ErrCannotTargetOwner  = errors.New("cannot target the room owner")
	ErrCannotTargetSelf   = errors.New("cannot target yourself")
	ErrTransferToOccupied = errors.New("target already owns a room")
)

// Channel renames are rate limited hard by the platform, so they are also
// limited locally before a request is ever issued.
const (
	renameLimitCount  = 2
	renameLimitWindow = 10 * time.Minute
)

// VoiceStateEvent is a member moving between voice channels. ChannelID is the
// channel joined ("" on a pure leave), PrevChannelID the channel left ("" on
// a pure join).
type VoiceStateEvent struct {
	GuildID       string
	MemberID      string
	ChannelID     string
	PrevChannelID string
}

const (
	RoomEventCreated     = "created"
	RoomEventVisibility  = "visibility"
	RoomEventTransferred = "transferred"
	RoomEventDeleted     = "deleted"
)

type RoomEvent struct {
	Type           string    `json:"type"`
	GuildID        string    `json:"guild_id"`
	VoiceChannelID string    `json:"voice_channel_id"`
	TextChannelID  string    `json:"text_channel_id"`
	OwnerID        string    `json:"owner_id"`
	Name           string    `json:"name"`
	At             time.Time `json:"at"`
}

// EventSink receives room lifecycle events. Publish must not block.
type EventSink interface {
	Publish(event RoomEvent)
}

// Timer is a cancellable scheduled callback. Stopping a timer that has
// already fired is a no-op.
type Timer interface {
	Stop() bool
}

type stdTimer struct{ *time.Timer }

type pendingDeletion struct {
	token string
	timer Timer
}

// Lifecycle reacts to platform voice events: it creates a room pair when a
// member joins a generator trigger, drives the per-room visibility state
// machine, and tears empty rooms down after a grace period.
type Lifecycle struct {
	platform platform.Client
	store    *RoomStore
	registry *Registry
	filters  *NameFilterManager
	cfg      config.LifecycleConfig
	log      *slog.Logger
	sink     EventSink

	now       func() time.Time
	afterFunc func(d time.Duration, fn func()) Timer

	pendMu  sync.Mutex
	pending map[string]*pendingDeletion

	// Mute ledger: members muted by us, members muted by a moderator (never
	// overridden), and members who left before we could unmute them.
	muteMu      sync.Mutex
	botMuted    map[string]struct{}
	manualMuted map[string]struct{}
	unmuteQueue map[string]struct{}

	renameMu sync.Mutex
	renames  map[string][]time.Time
}

type LifecycleOption func(*Lifecycle)

func WithClock(now func() time.Time) LifecycleOption {
	return func(l *Lifecycle) { l.now = now }
}

func WithTimerFunc(afterFunc func(d time.Duration, fn func()) Timer) LifecycleOption {
	return func(l *Lifecycle) { l.afterFunc = afterFunc }
}

func WithEventSink(sink EventSink) LifecycleOption {
	return func(l *Lifecycle) { l.sink = sink }
}

func NewLifecycle(
	client platform.Client,
	store *RoomStore,
	registry *Registry,
	filters *NameFilterManager,
	cfg config.LifecycleConfig,
	log *slog.Logger,
	opts ...LifecycleOption,
) *Lifecycle {
	if log == nil {
		log = slog.Default()
	}

	l := &Lifecycle{
		platform: client,
		store:    store,
		registry: registry,
		filters:  filters,
		cfg:      cfg,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		afterFunc: func(d time.Duration, fn func()) Timer {
			return stdTimer{time.AfterFunc(d, fn)}
		},
		pending:     make(map[string]*pendingDeletion),
		botMuted:    make(map[string]struct{}),
		manualMuted: make(map[string]struct{}),
		unmuteQueue: make(map[string]struct{}),
		renames:     make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Lifecycle) retryPolicy() platform.RetryPolicy {
	return platform.RetryPolicy{
		Attempts: l.cfg.RetryAttempts,
		Backoff:  l.cfg.RetryBackoff,
		Timeout:  l.cfg.APITimeout,
	}
}

// HandleVoiceState is the entry point for platform voice-state-change events.
func (l *Lifecycle) HandleVoiceState(ctx context.Context, ev VoiceStateEvent) {
	if ev.ChannelID == ev.PrevChannelID {
		return
	}

	if ev.ChannelID != "" {
		l.handleJoin(ctx, ev)
	}
	if ev.PrevChannelID != "" {
		l.handleLeave(ctx, ev)
	}
}

func (l *Lifecycle) handleJoin(ctx context.Context, ev VoiceStateEvent) {
	// Members who left a room mid-mute get unmuted first, even if another
	// joinmute room is about to mute them again.
	l.flushQueuedUnmute(ctx, ev.GuildID, ev.MemberID)

	if gen, ok := l.registry.Lookup(ev.ChannelID); ok {
		if err := l.handleGeneratorJoin(ctx, ev, gen); err != nil {
			l.log.Error("generator join failed",
				slog.String("trigger_id", ev.ChannelID),
				slog.String("member_id", ev.MemberID),
				sl.Err(err),
			)
		}
		return
	}

	if room, ok := l.store.Get(ev.ChannelID); ok {
		l.handleRoomJoin(ctx, ev, room)
	}
}

// handleGeneratorJoin creates a room pair for the joining member. The owner
// slot in the store is claimed before any platform call, so two rapid joins
// by the same member resolve to a single room; the loser of the race is
// moved into the room that won.
func (l *Lifecycle) handleGeneratorJoin(ctx context.Context, ev VoiceStateEvent, gen domain.GeneratorConfig) error {
	const op = "service.lifecycle.generatorJoin"
	log := l.log.With(
		slog.String("op", op),
		slog.String("guild_id", ev.GuildID),
		slog.String("member_id", ev.MemberID),
	)

	if existing, ok := l.store.GetByOwner(ev.MemberID); ok && existing.VoiceChannelID != "" {
		return l.moveMember(ctx, ev.GuildID, ev.MemberID, existing.VoiceChannelID)
	}

	claimID, err := l.store.Claim(ev.GuildID, gen.TriggerChannelID, ev.MemberID)
	if err != nil {
		if errors.Is(err, ErrOwnerHasRoom) {
			// Lost the race against a concurrent join; route to the winner.
			if existing, ok := l.store.GetByOwner(ev.MemberID); ok && existing.VoiceChannelID != "" {
				return l.moveMember(ctx, ev.GuildID, ev.MemberID, existing.VoiceChannelID)
			}
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	name := gen.RoomName(l.platform.MemberDisplayName(ev.GuildID, ev.MemberID))
	if err := l.filters.Validate(ev.GuildID, name); err != nil {
		// Naming must never block creation; the member is already mid-join.
		name = "room-" + ev.MemberID
	}

	var pair platform.ChannelPair
	err = platform.Retry(ctx, l.retryPolicy(), func(ctx context.Context) error {
		var createErr error
		pair, createErr = l.platform.CreateVoiceTextPair(ctx, platform.CreateRoomRequest{
			GuildID:         ev.GuildID,
			Name:            name,
			VoiceCategoryID: gen.VoiceCategoryID,
			TextCategoryID:  gen.TextCategoryID,
			Size:            gen.DefaultSize,
			Bitrate:         gen.DefaultBitrate,
		})
		return createErr
	})
	if err != nil {
		l.store.Release(claimID)
		return fmt.Errorf("%s: %w", op, err)
	}

	room := domain.NewRoom(ev.GuildID, gen.TriggerChannelID, ev.MemberID, name, gen.DefaultSize, gen.DefaultBitrate)
	room.VoiceChannelID = pair.VoiceID
	room.TextChannelID = pair.TextID
	room.CreatedAt = l.now()

	if err := l.store.Promote(claimID, room); err != nil {
		_ = l.deletePair(ctx, pair)
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := l.setPermission(ctx, pair.TextID, ev.MemberID, true); err != nil {
		log.Warn("failed to grant owner text permissions", sl.Err(err))
	}

	if err := l.moveMember(ctx, ev.GuildID, ev.MemberID, pair.VoiceID); err != nil {
		// The member dropped out of voice while the pair was being created.
		log.Info("owner left during creation, tearing room down", sl.Err(err))
		return l.destroyRoom(ctx, pair.VoiceID)
	}

	if len(l.platform.ChannelMembers(ev.GuildID, pair.VoiceID)) == 0 {
		return l.destroyRoom(ctx, pair.VoiceID)
	}

	l.sendMessage(ctx, pair.TextID, fmt.Sprintf("<@%s> this room is yours. Use %s for the command list.", ev.MemberID, "`&vc`"))
	log.Info("room created",
		slog.String("voice_channel_id", pair.VoiceID),
		slog.String("text_channel_id", pair.TextID),
		slog.String("name", name),
	)
	l.publish(RoomEventCreated, *room)
	return nil
}

func (l *Lifecycle) handleRoomJoin(ctx context.Context, ev VoiceStateEvent, room domain.Room) {
	// The room is occupied again; any scheduled deletion is off.
	l.cancelPendingDeletion(room.VoiceChannelID)

	if ev.MemberID == room.OwnerID {
		return
	}

	if err := l.setPermission(ctx, room.TextChannelID, ev.MemberID, true); err != nil {
		l.log.Warn("failed to grant text permissions",
			slog.String("text_channel_id", room.TextChannelID),
			slog.String("member_id", ev.MemberID),
			sl.Err(err),
		)
	}

	if room.Visibility == domain.VisibilityJoinMute && room.JoinMute > 0 {
		l.applyJoinMute(ctx, room, ev.MemberID)
	}
}

func (l *Lifecycle) handleLeave(ctx context.Context, ev VoiceStateEvent) {
	room, ok := l.store.Get(ev.PrevChannelID)
	if !ok {
		return
	}

	if ev.MemberID != room.OwnerID {
		if err := l.clearPermission(ctx, room.TextChannelID, ev.MemberID); err != nil {
			l.log.Warn("failed to clear text permissions",
				slog.String("member_id", ev.MemberID),
				sl.Err(err),
			)
		}
	}

	// A member who leaves while bot-muted carries the mute with them; queue
	// the unmute for their next voice join.
	l.queueUnmuteIfBotMuted(ev.GuildID, ev.MemberID)

	if len(l.platform.ChannelMembers(ev.GuildID, room.VoiceChannelID)) == 0 {
		l.schedulePendingDeletion(room)
	}
}

// schedulePendingDeletion starts the grace-period timer for an empty room.
// Rescheduling an already-pending room is a no-op.
func (l *Lifecycle) schedulePendingDeletion(room domain.Room) {
	l.pendMu.Lock()
	defer l.pendMu.Unlock()

	if _, ok := l.pending[room.VoiceChannelID]; ok {
		return
	}

	token := uuid.NewString()
	voiceID := room.VoiceChannelID
	guildID := room.GuildID
	l.pending[voiceID] = &pendingDeletion{
		token: token,
		timer: l.afterFunc(l.cfg.GracePeriod, func() {
			l.firePendingDeletion(guildID, voiceID, token)
		}),
	}
}

func (l *Lifecycle) firePendingDeletion(guildID, voiceID, token string) {
	l.pendMu.Lock()
	entry, ok := l.pending[voiceID]
	if !ok || entry.token != token {
		// Cancelled (or superseded) while the callback was in flight.
		l.pendMu.Unlock()
		return
	}
	delete(l.pending, voiceID)
	l.pendMu.Unlock()

	// Only a confirmed zero-member snapshot deletes the room.
	if len(l.platform.ChannelMembers(guildID, voiceID)) > 0 {
		return
	}

	if err := l.destroyRoom(context.Background(), voiceID); err != nil {
		l.log.Error("grace-period deletion failed",
			slog.String("voice_channel_id", voiceID),
			sl.Err(err),
		)
	}
}

func (l *Lifecycle) cancelPendingDeletion(voiceID string) {
	l.pendMu.Lock()
	defer l.pendMu.Unlock()

	if entry, ok := l.pending[voiceID]; ok {
		entry.timer.Stop()
		delete(l.pending, voiceID)
	}
}

// destroyRoom removes the room from the store first and only then deletes the
// platform channels; if the platform deletion fails the room is reinserted
// and the deletion retried after another grace period.
func (l *Lifecycle) destroyRoom(ctx context.Context, voiceID string) error {
	const op = "service.lifecycle.destroyRoom"

	l.cancelPendingDeletion(voiceID)

	room, ok := l.store.Remove(voiceID)
	if !ok {
		return nil
	}

	pair := platform.ChannelPair{VoiceID: room.VoiceChannelID, TextID: room.TextChannelID}
	if err := l.deletePair(ctx, pair); err != nil {
		l.store.Reinsert(room)
		l.schedulePendingDeletion(room)
		return fmt.Errorf("%s: %w", op, err)
	}

	l.forgetRenames(voiceID)
	l.log.Info("room destroyed",
		slog.String("voice_channel_id", room.VoiceChannelID),
		slog.String("owner_id", room.OwnerID),
	)
	l.publish(RoomEventDeleted, room)
	return nil
}

// EndRoom handles `&vc end` and admin-forced teardown.
func (l *Lifecycle) EndRoom(ctx context.Context, voiceID string) error {
	return l.destroyRoom(ctx, voiceID)
}

// HandleChannelDelete sweeps state when a tracked channel is removed
// out-of-band: the surviving twin is destroyed, or the generator unregistered.
func (l *Lifecycle) HandleChannelDelete(ctx context.Context, channelID string) {
	if _, ok := l.store.Get(channelID); ok {
		_ = l.destroyRoom(ctx, channelID)
		return
	}
	if room, ok := l.store.GetByText(channelID); ok {
		_ = l.destroyRoom(ctx, room.VoiceChannelID)
		return
	}
	if _, ok := l.registry.Lookup(channelID); ok {
		if err := l.registry.Unregister(ctx, channelID); err != nil {
			l.log.Warn("failed to unregister deleted generator",
				slog.String("trigger_id", channelID),
				sl.Err(err),
			)
		}
	}
}

// SetVisibility drives the Public/Private/JoinMute state machine, adjusting
// platform permission overwrites to match.
func (l *Lifecycle) SetVisibility(ctx context.Context, voiceID string, vis domain.Visibility, muteFor time.Duration) error {
	const op = "service.lifecycle.setVisibility"

	room, ok := l.store.Get(voiceID)
	if !ok {
		return ErrRoomNotFound
	}

	switch vis {
	case domain.VisibilityPublic:
		// Clearing the overwrite falls back to guild defaults, which lets
		// the server keep controlling access through role permissions.
		if err := l.clearPermission(ctx, voiceID, room.GuildID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		l.unmuteAll(ctx, room)

	case domain.VisibilityJoinMute:
		if muteFor <= 0 {
			muteFor = l.cfg.JoinMuteDefault
		}
		if muteFor > l.cfg.JoinMuteMax {
			return ErrMuteTooLong
		}
		if err := l.clearPermission(ctx, voiceID, room.GuildID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

	case domain.VisibilityPrivate:
		if err := l.setPermission(ctx, voiceID, room.GuildID, false); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		// Current occupants keep their access.
		for _, memberID := range l.platform.ChannelMembers(room.GuildID, voiceID) {
			if memberID == room.OwnerID {
				continue
			}
			if err := l.setPermission(ctx, voiceID, memberID, true); err != nil {
				l.log.Warn("failed to whitelist occupant",
					slog.String("member_id", memberID),
					sl.Err(err),
				)
				continue
			}
			memberID := memberID
			_ = l.store.Mutate(voiceID, func(r *domain.Room) { r.Allow(memberID) })
		}
		l.unmuteAll(ctx, room)
	}

	if err := l.store.Mutate(voiceID, func(r *domain.Room) {
		r.Visibility = vis
		if vis == domain.VisibilityJoinMute {
			r.JoinMute = muteFor
		} else {
			r.JoinMute = 0
		}
	}); err != nil {
		return err
	}

	room, _ = l.store.Get(voiceID)
	l.publish(RoomEventVisibility, room)
	return nil
}

// AllowTarget grants a member or role access to the room.
func (l *Lifecycle) AllowTarget(ctx context.Context, voiceID, targetID string) error {
	if _, ok := l.store.Get(voiceID); !ok {
		return ErrRoomNotFound
	}

	if err := l.setPermission(ctx, voiceID, targetID, true); err != nil {
		return err
	}
	return l.store.Mutate(voiceID, func(r *domain.Room) { r.Allow(targetID) })
}

// DenyTarget revokes access and disconnects the target if they are in the
// room right now.
func (l *Lifecycle) DenyTarget(ctx context.Context, voiceID, targetID string) error {
	room, ok := l.store.Get(voiceID)
	if !ok {
		return ErrRoomNotFound
	}
	if targetID == room.OwnerID {
		return ErrCannotTargetOwner
	}

	if err := l.clearPermission(ctx, voiceID, targetID); err != nil {
		return err
	}
	if err := l.store.Mutate(voiceID, func(r *domain.Room) { r.Deny(targetID) }); err != nil {
		return err
	}

	for _, memberID := range l.platform.ChannelMembers(room.GuildID, voiceID) {
		if memberID == targetID {
			return platform.Retry(ctx, l.retryPolicy(), func(ctx context.Context) error {
				return l.platform.DisconnectMember(ctx, room.GuildID, targetID)
			})
		}
	}
	return nil
}

// MuteMember is the owner's explicit mute; it is independent of joinmute
// timers and marks the member so a later timer expiry does not unmute them.
func (l *Lifecycle) MuteMember(ctx context.Context, voiceID, targetID string) error {
	room, ok := l.store.Get(voiceID)
	if !ok {
		return ErrRoomNotFound
	}
	if !l.memberInRoom(room, targetID) {
		return ErrTargetNotInRoom
	}

	l.muteMu.Lock()
	l.manualMuted[muteKey(room.GuildID, targetID)] = struct{}{}
	delete(l.botMuted, muteKey(room.GuildID, targetID))
	l.muteMu.Unlock()

	return platform.Retry(ctx, l.retryPolicy(), func(ctx context.Context) error {
		return l.platform.SetMute(ctx, room.GuildID, targetID, true)
	})
}

func (l *Lifecycle) UnmuteMember(ctx context.Context, voiceID, targetID string) error {
	room, ok := l.store.Get(voiceID)
	if !ok {
		return ErrRoomNotFound
	}
	if !l.memberInRoom(room, targetID) {
		return ErrTargetNotInRoom
	}

	key := muteKey(room.GuildID, targetID)
	l.muteMu.Lock()
	delete(l.manualMuted, key)
	delete(l.botMuted, key)
	delete(l.unmuteQueue, key)
	l.muteMu.Unlock()

	return platform.Retry(ctx, l.retryPolicy(), func(ctx context.Context) error {
		return l.platform.SetMute(ctx, room.GuildID, targetID, false)
	})
}

// Rename validates against the name filter and a local rename budget before
// touching the platform.
func (l *Lifecycle) Rename(ctx context.Context, voiceID, newName string) error {
	room, ok := l.store.Get(voiceID)
	if !ok {
		return ErrRoomNotFound
	}

	if err := l.filters.Validate(room.GuildID, newName); err != nil {
		return err
	}
	if !l.recordRename(voiceID) {
		return ErrRenameRateLimited
	}

	err := platform.Retry(ctx, l.retryPolicy(), func(ctx context.Context) error {
		if err := l.platform.RenameChannel(ctx, room.VoiceChannelID, newName); err != nil {
			return err
		}
		return l.platform.RenameChannel(ctx, room.TextChannelID, newName)
	})
	if err != nil {
		return err
	}

	return l.store.Mutate(voiceID, func(r *domain.Room) { r.Name = newName })
}

func (l *Lifecycle) Resize(ctx context.Context, voiceID string, size int) error {
	if size < 0 || size > l.cfg.MaxRoomSize {
		return ErrInvalidSize
	}

	if _, ok := l.store.Get(voiceID); !ok {
		return ErrRoomNotFound
	}

	err := platform.Retry(ctx, l.retryPolicy(), func(ctx context.Context) error {
		return l.platform.EditVoiceChannel(ctx, voiceID, size, 0)
	})
	if err != nil {
		return err
	}
	return l.store.Mutate(voiceID, func(r *domain.Room) { r.Size = size })
}

func (l *Lifecycle) SetBitrate(ctx context.Context, voiceID string, kbps int) error {
	if kbps < 8 || kbps > l.cfg.MaxBitrateKbps {
		return ErrInvalidBitrate
	}

	if _, ok := l.store.Get(voiceID); !ok {
		return ErrRoomNotFound
	}

	err := platform.Retry(ctx, l.retryPolicy(), func(ctx context.Context) error {
		return l.platform.EditVoiceChannel(ctx, voiceID, -1, kbps)
	})
	if err != nil {
		return err
	}
	return l.store.Mutate(voiceID, func(r *domain.Room) { r.Bitrate = kbps })
}

// TransferOwnership validates the target is a current occupant, then swaps
// the owner index atomically.
func (l *Lifecycle) TransferOwnership(ctx context.Context, voiceID, oldOwnerID, newOwnerID string) error {
	room, ok := l.store.Get(voiceID)
	if !ok {
		return ErrRoomNotFound
	}
	if newOwnerID == oldOwnerID {
		return ErrCannotTargetSelf
	}
	if !l.memberInRoom(room, newOwnerID) {
		return ErrTargetNotInRoom
	}

	if err := l.store.Transfer(voiceID, oldOwnerID, newOwnerID); err != nil {
		if errors.Is(err, ErrOwnerHasRoom) {
			return ErrTransferToOccupied
		}
		return err
	}

	if err := l.setPermission(ctx, room.TextChannelID, newOwnerID, true); err != nil {
		l.log.Warn("failed to grant new owner text permissions", sl.Err(err))
	}

	room, _ = l.store.Get(voiceID)
	l.publish(RoomEventTransferred, room)
	return nil
}

// RegisterManualMute records a moderator mute observed from a voice-state
// change so the bot never undoes it.
func (l *Lifecycle) RegisterManualMute(guildID, memberID string) {
	key := muteKey(guildID, memberID)
	l.muteMu.Lock()
	defer l.muteMu.Unlock()

	if _, byBot := l.botMuted[key]; !byBot {
		l.manualMuted[key] = struct{}{}
	}
}

// RegisterManualUnmute clears every mute claim on the member.
func (l *Lifecycle) RegisterManualUnmute(guildID, memberID string) {
	key := muteKey(guildID, memberID)
	l.muteMu.Lock()
	defer l.muteMu.Unlock()

	delete(l.manualMuted, key)
	delete(l.botMuted, key)
	delete(l.unmuteQueue, key)
}

func (l *Lifecycle) applyJoinMute(ctx context.Context, room domain.Room, memberID string) {
	key := muteKey(room.GuildID, memberID)

	l.muteMu.Lock()
	if _, manual := l.manualMuted[key]; manual {
		l.muteMu.Unlock()
		return
	}
	l.botMuted[key] = struct{}{}
	l.muteMu.Unlock()

	err := platform.Retry(ctx, l.retryPolicy(), func(ctx context.Context) error {
		return l.platform.SetMute(ctx, room.GuildID, memberID, true)
	})
	if err != nil {
		l.muteMu.Lock()
		delete(l.botMuted, key)
		l.muteMu.Unlock()
		l.log.Warn("joinmute failed", slog.String("member_id", memberID), sl.Err(err))
		return
	}

	l.sendMessage(ctx, room.TextChannelID,
		fmt.Sprintf("<@%s> welcome to %s, you are muted for the first %d seconds.",
			memberID, room.Name, int(room.JoinMute.Seconds())))

	guildID := room.GuildID
	l.afterFunc(room.JoinMute, func() {
		l.expireJoinMute(guildID, memberID)
	})
}

func (l *Lifecycle) expireJoinMute(guildID, memberID string) {
	key := muteKey(guildID, memberID)

	l.muteMu.Lock()
	if _, ok := l.botMuted[key]; !ok {
		// Manually muted or already unmuted; the timer defers either way.
		l.muteMu.Unlock()
		return
	}
	delete(l.botMuted, key)
	l.muteMu.Unlock()

	err := platform.Retry(context.Background(), l.retryPolicy(), func(ctx context.Context) error {
		return l.platform.SetMute(ctx, guildID, memberID, false)
	})
	if err != nil {
		l.muteMu.Lock()
		l.unmuteQueue[key] = struct{}{}
		l.muteMu.Unlock()
	}
}

func (l *Lifecycle) flushQueuedUnmute(ctx context.Context, guildID, memberID string) {
	key := muteKey(guildID, memberID)

	l.muteMu.Lock()
	_, queued := l.unmuteQueue[key]
	if queued {
		delete(l.unmuteQueue, key)
	}
	l.muteMu.Unlock()
	if !queued {
		return
	}

	err := platform.Retry(ctx, l.retryPolicy(), func(ctx context.Context) error {
		return l.platform.SetMute(ctx, guildID, memberID, false)
	})
	if err != nil {
		l.muteMu.Lock()
		l.unmuteQueue[key] = struct{}{}
		l.muteMu.Unlock()
	}
}

func (l *Lifecycle) queueUnmuteIfBotMuted(guildID, memberID string) {
	key := muteKey(guildID, memberID)

	l.muteMu.Lock()
	defer l.muteMu.Unlock()

	if _, ok := l.botMuted[key]; ok {
		delete(l.botMuted, key)
		l.unmuteQueue[key] = struct{}{}
	}
}

func (l *Lifecycle) unmuteAll(ctx context.Context, room domain.Room) {
	for _, memberID := range l.platform.ChannelMembers(room.GuildID, room.VoiceChannelID) {
		key := muteKey(room.GuildID, memberID)

		l.muteMu.Lock()
		_, byBot := l.botMuted[key]
		if byBot {
			delete(l.botMuted, key)
		}
		l.muteMu.Unlock()
		if !byBot {
			continue
		}

		err := platform.Retry(ctx, l.retryPolicy(), func(ctx context.Context) error {
			return l.platform.SetMute(ctx, room.GuildID, memberID, false)
		})
		if err != nil {
			l.muteMu.Lock()
			l.unmuteQueue[key] = struct{}{}
			l.muteMu.Unlock()
		}
	}
}

func (l *Lifecycle) recordRename(voiceID string) bool {
	l.renameMu.Lock()
	defer l.renameMu.Unlock()

	now := l.now()
	recent := l.renames[voiceID][:0]
	for _, t := range l.renames[voiceID] {
		if now.Sub(t) < renameLimitWindow {
			recent = append(recent, t)
		}
	}
	if len(recent) >= renameLimitCount {
		l.renames[voiceID] = recent
		return false
	}
	l.renames[voiceID] = append(recent, now)
	return true
}

func (l *Lifecycle) forgetRenames(voiceID string) {
	l.renameMu.Lock()
	delete(l.renames, voiceID)
	l.renameMu.Unlock()
}

func (l *Lifecycle) memberInRoom(room domain.Room, memberID string) bool {
	for _, id := range l.platform.ChannelMembers(room.GuildID, room.VoiceChannelID) {
		if id == memberID {
			return true
		}
	}
	return false
}

func (l *Lifecycle) moveMember(ctx context.Context, guildID, memberID, channelID string) error {
	return platform.Retry(ctx, l.retryPolicy(), func(ctx context.Context) error {
		return l.platform.MoveMember(ctx, guildID, memberID, channelID)
	})
}

func (l *Lifecycle) setPermission(ctx context.Context, channelID, targetID string, allow bool) error {
	return platform.Retry(ctx, l.retryPolicy(), func(ctx context.Context) error {
		return l.platform.SetPermission(ctx, channelID, targetID, allow)
	})
}

func (l *Lifecycle) clearPermission(ctx context.Context, channelID, targetID string) error {
	return platform.Retry(ctx, l.retryPolicy(), func(ctx context.Context) error {
		return l.platform.ClearPermission(ctx, channelID, targetID)
	})
}

func (l *Lifecycle) deletePair(ctx context.Context, pair platform.ChannelPair) error {
	return platform.Retry(ctx, l.retryPolicy(), func(ctx context.Context) error {
		return l.platform.DeleteChannelPair(ctx, pair)
	})
}

func (l *Lifecycle) sendMessage(ctx context.Context, channelID, content string) {
	err := platform.Retry(ctx, l.retryPolicy(), func(ctx context.Context) error {
		return l.platform.SendMessage(ctx, channelID, content)
	})
	if err != nil {
		l.log.Debug("dropping message", slog.String("channel_id", channelID), sl.Err(err))
	}
}

func (l *Lifecycle) publish(eventType string, room domain.Room) {
	if l.sink == nil {
		return
	}
	l.sink.Publish(RoomEvent{
		Type:           eventType,
		GuildID:        room.GuildID,
		VoiceChannelID: room.VoiceChannelID,
		TextChannelID:  room.TextChannelID,
		OwnerID:        room.OwnerID,
		Name:           room.Name,
		At:             l.now(),
	})
}

func muteKey(guildID, memberID string) string {
	return guildID + ":" + memberID
}
