package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mherren/voxbot/internal/config"
	"github.com/mherren/voxbot/internal/domain"
	"github.com/mherren/voxbot/internal/platform"
	"github.com/mherren/voxbot/internal/repository"
	"github.com/mherren/voxbot/internal/service"
	"github.com/stretchr/testify/require"
)

// stubClient answers the handful of platform calls command handling needs and
// records outgoing replies.
type stubClient struct {
	mu       sync.Mutex
	replies  map[string][]string
	admins   map[string]struct{}
	occupied map[string][]string
}

func newStubClient() *stubClient {
	return &stubClient{
		replies:  make(map[string][]string),
		admins:   make(map[string]struct{}),
		occupied: make(map[string][]string),
	}
}

func (c *stubClient) CreateVoiceTextPair(ctx context.Context, req platform.CreateRoomRequest) (platform.ChannelPair, error) {
	return platform.ChannelPair{VoiceID: "voice-x", TextID: "text-x"}, nil
}

func (c *stubClient) DeleteChannelPair(ctx context.Context, pair platform.ChannelPair) error {
	return nil
}

func (c *stubClient) SetPermission(ctx context.Context, channelID, targetID string, allow bool) error {
	return nil
}

func (c *stubClient) ClearPermission(ctx context.Context, channelID, targetID string) error {
	return nil
}

func (c *stubClient) SetMute(ctx context.Context, guildID, memberID string, muted bool) error {
	return nil
}

func (c *stubClient) MoveMember(ctx context.Context, guildID, memberID, channelID string) error {
	return nil
}

func (c *stubClient) DisconnectMember(ctx context.Context, guildID, memberID string) error {
	return nil
}

func (c *stubClient) RenameChannel(ctx context.Context, channelID, name string) error {
	return nil
}

func (c *stubClient) EditVoiceChannel(ctx context.Context, channelID string, size, bitrate int) error {
	return nil
}

func (c *stubClient) SendMessage(ctx context.Context, channelID, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.replies[channelID] = append(c.replies[channelID], content)
	return nil
}

func (c *stubClient) ChannelMembers(guildID, channelID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.occupied[channelID]...)
}

func (c *stubClient) MemberDisplayName(guildID, memberID string) string {
	return memberID
}

func (c *stubClient) IsAdmin(guildID, memberID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.admins[memberID]
	return ok
}

var _ platform.Client = (*stubClient)(nil)

type botFixture struct {
	bot      *Bot
	client   *stubClient
	store    *service.RoomStore
	registry *service.Registry
	filters  *service.NameFilterManager
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()

	client := newStubClient()
	store := service.NewRoomStore(nil)
	registry := service.NewRegistry(repository.NewInMemoryGeneratorRepository(), nil)
	filters := service.NewNameFilterManager(repository.NewInMemoryFilterRepository(), nil)

	cfg := config.LifecycleConfig{
		GracePeriod:     30 * time.Second,
		JoinMuteDefault: 30 * time.Second,
		JoinMuteMax:     10 * time.Minute,
		RetryAttempts:   1,
		APITimeout:      time.Second,
		MaxRoomSize:     99,
		MaxBitrateKbps:  384,
	}
	lifecycle := service.NewLifecycle(client, store, registry, filters, cfg, nil)

	return &botFixture{
		bot:      New(nil, client, lifecycle, registry, filters, store, "&vc", nil),
		client:   client,
		store:    store,
		registry: registry,
		filters:  filters,
	}
}

func (f *botFixture) seedRoom(t *testing.T, ownerID, voiceID, textID string) {
	t.Helper()

	claimID, err := f.store.Claim("guild-1", "trigger-1", ownerID)
	require.NoError(t, err)

	room := domain.NewRoom("guild-1", "trigger-1", ownerID, "seed room", 10, 64)
	room.VoiceChannelID = voiceID
	room.TextChannelID = textID
	require.NoError(t, f.store.Promote(claimID, room))
}

func (f *botFixture) run(content string) {
	f.bot.HandleCommand(context.Background(), Invocation{
		GuildID:   "guild-1",
		ChannelID: "cmd-channel",
		AuthorID:  "author-1",
		Content:   content,
	})
}

func (f *botFixture) lastReply(t *testing.T) string {
	t.Helper()
	f.client.mu.Lock()
	defer f.client.mu.Unlock()

	replies := f.client.replies["cmd-channel"]
	require.NotEmpty(t, replies, "expected a reply")
	return replies[len(replies)-1]
}

func (f *botFixture) replyCount() int {
	f.client.mu.Lock()
	defer f.client.mu.Unlock()

	return len(f.client.replies["cmd-channel"])
}

func TestHandleCommandIgnoresOtherMessages(t *testing.T) {
	f := newBotFixture(t)

	f.run("hello everyone")
	f.run("&vcpublic")
	f.run("vc public")

	require.Zero(t, f.replyCount())
}

func TestHandleCommandBarePrefixShowsUsage(t *testing.T) {
	f := newBotFixture(t)

	f.run("&vc")

	require.Contains(t, f.lastReply(t), "subcommands:")
}

func TestHandleCommandUnknownSubcommand(t *testing.T) {
	f := newBotFixture(t)

	f.run("&vc explode")

	require.Contains(t, f.lastReply(t), "unknown subcommand")
}

func TestOwnerCommandWithoutRoom(t *testing.T) {
	f := newBotFixture(t)

	f.run("&vc public")

	require.Contains(t, f.lastReply(t), "do not own a voice room")
}

func TestOwnerCommandRoomInOtherGuild(t *testing.T) {
	f := newBotFixture(t)
	claimID, err := f.store.Claim("guild-2", "trigger-9", "author-1")
	require.NoError(t, err)
	room := domain.NewRoom("guild-2", "trigger-9", "author-1", "elsewhere", 10, 64)
	room.VoiceChannelID = "voice-9"
	room.TextChannelID = "text-9"
	require.NoError(t, f.store.Promote(claimID, room))

	f.run("&vc public")

	require.Contains(t, f.lastReply(t), "do not own a voice room")
}

func TestVisibilityCommands(t *testing.T) {
	f := newBotFixture(t)
	f.seedRoom(t, "author-1", "voice-1", "text-1")

	f.run("&vc private")
	require.Equal(t, "done.", f.lastReply(t))
	room, _ := f.store.Get("voice-1")
	require.Equal(t, domain.VisibilityPrivate, room.Visibility)

	f.run("&vc joinmute 45")
	require.Equal(t, "done.", f.lastReply(t))
	room, _ = f.store.Get("voice-1")
	require.Equal(t, domain.VisibilityJoinMute, room.Visibility)
	require.Equal(t, 45*time.Second, room.JoinMute)

	f.run("&vc joinmute soon")
	require.Contains(t, f.lastReply(t), "bad arguments")

	f.run("&vc public")
	require.Equal(t, "done.", f.lastReply(t))
	room, _ = f.store.Get("voice-1")
	require.Equal(t, domain.VisibilityPublic, room.Visibility)
}

func TestAddCommandParsesMentions(t *testing.T) {
	f := newBotFixture(t)
	f.seedRoom(t, "author-1", "voice-1", "text-1")

	f.run("&vc add <@!42>")
	require.Equal(t, "done.", f.lastReply(t))

	room, _ := f.store.Get("voice-1")
	require.True(t, room.Allowed("42"))

	f.run("&vc add not-an-id")
	require.Contains(t, f.lastReply(t), "bad arguments")
	room, _ = f.store.Get("voice-1")
	require.False(t, room.Allowed("not-an-id"))
}

func TestNameCommandJoinsArguments(t *testing.T) {
	f := newBotFixture(t)
	f.seedRoom(t, "author-1", "voice-1", "text-1")

	f.run("&vc name late night lounge")

	require.Equal(t, "done.", f.lastReply(t))
	room, _ := f.store.Get("voice-1")
	require.Equal(t, "late night lounge", room.Name)
}

func TestNameCommandReportsFilterMatch(t *testing.T) {
	f := newBotFixture(t)
	f.seedRoom(t, "author-1", "voice-1", "text-1")
	_, err := f.filters.AddFilter(context.Background(), "guild-1", "lounge")
	require.NoError(t, err)

	f.run("&vc name the lounge")

	require.Contains(t, f.lastReply(t), "matched filter")
	room, _ := f.store.Get("voice-1")
	require.Equal(t, "seed room", room.Name)
}

func TestSizeCommandOutOfRange(t *testing.T) {
	f := newBotFixture(t)
	f.seedRoom(t, "author-1", "voice-1", "text-1")

	f.run("&vc size 500")

	require.Contains(t, f.lastReply(t), "out of range")
}

func TestEndCommandDestroysRoom(t *testing.T) {
	f := newBotFixture(t)
	f.seedRoom(t, "author-1", "voice-1", "text-1")

	f.run("&vc end")

	require.Equal(t, "done.", f.lastReply(t))
	_, ok := f.store.Get("voice-1")
	require.False(t, ok)
}

func TestSetupRequiresAdmin(t *testing.T) {
	f := newBotFixture(t)

	f.run("&vc setup <#555>")

	require.Contains(t, f.lastReply(t), "administrator permission")
	_, ok := f.registry.Lookup("555")
	require.False(t, ok)
}

func TestSetupRegistersGenerator(t *testing.T) {
	f := newBotFixture(t)
	f.client.admins["author-1"] = struct{}{}

	f.run("&vc setup <#555> 5 96 The {user} den")

	require.Equal(t, "done.", f.lastReply(t))
	gen, ok := f.registry.Lookup("555")
	require.True(t, ok)
	require.Equal(t, 5, gen.DefaultSize)
	require.Equal(t, 96, gen.DefaultBitrate)
	require.Equal(t, "The {user} den", gen.NameTemplate)
	require.Equal(t, "The author-x den", gen.RoomName("author-x"))

	f.run("&vc setup <#555>")
	require.Contains(t, f.lastReply(t), "already has a generator")
}

func TestAdminDeleteCommand(t *testing.T) {
	f := newBotFixture(t)
	f.client.admins["author-1"] = struct{}{}
	require.NoError(t, f.registry.Register(context.Background(), domain.NewGeneratorConfig("guild-1", "555")))

	f.run("&vc admindel <#555>")

	require.Equal(t, "done.", f.lastReply(t))
	_, ok := f.registry.Lookup("555")
	require.False(t, ok)

	f.run("&vc admindel <#555>")
	require.Contains(t, f.lastReply(t), "no generator")
}

func TestFilterCommands(t *testing.T) {
	f := newBotFixture(t)
	f.client.admins["author-1"] = struct{}{}

	f.run("&vc filter list")
	require.Contains(t, f.lastReply(t), "no name filters")

	f.run("&vc filter add bad word")
	require.Contains(t, f.lastReply(t), "filter added")
	require.Equal(t, []string{"bad word"}, f.filters.ListFilters("guild-1"))

	f.run("&vc filter list")
	require.Contains(t, f.lastReply(t), "bad word")

	f.run("&vc filter remove bad word")
	require.Contains(t, f.lastReply(t), "filter removed")
	require.Empty(t, f.filters.ListFilters("guild-1"))
}

func TestFilterCommandsRequireAdmin(t *testing.T) {
	f := newBotFixture(t)

	f.run("&vc filter add anything")

	require.Contains(t, f.lastReply(t), "administrator permission")
	require.Empty(t, f.filters.ListFilters("guild-1"))
}

func TestListCommand(t *testing.T) {
	f := newBotFixture(t)

	f.run("&vc list")
	require.Contains(t, f.lastReply(t), "no active rooms")

	f.seedRoom(t, "author-1", "voice-1", "text-1")
	f.run("&vc list")
	require.Contains(t, f.lastReply(t), "seed room")
	require.Contains(t, f.lastReply(t), "<@author-1>")
}

func TestTransferCommand(t *testing.T) {
	f := newBotFixture(t)
	f.seedRoom(t, "author-1", "voice-1", "text-1")
	f.client.occupied["voice-1"] = []string{"author-1", "member-2"}

	f.run("&vc transfer <@member-2>")
	require.Contains(t, f.lastReply(t), "bad arguments")

	f.run("&vc transfer <@2222>")
	require.Contains(t, f.lastReply(t), "not in your room")

	f.client.occupied["voice-1"] = []string{"author-1", "2222"}
	f.run("&vc transfer <@2222>")
	require.Equal(t, "done.", f.lastReply(t))

	room, ok := f.store.GetByOwner("2222")
	require.True(t, ok)
	require.Equal(t, "voice-1", room.VoiceChannelID)
}

func TestParseTarget(t *testing.T) {
	cases := map[string]string{
		"123":      "123",
		"<@123>":   "123",
		"<@!123>":  "123",
		"<@&456>":  "456",
		"<@abc>":   "",
		"abc":      "",
		"<#123>":   "",
		"":         "",
	}
	for raw, want := range cases {
		require.Equal(t, want, parseTarget(raw), "parseTarget(%q)", raw)
	}
}

func TestParseChannelID(t *testing.T) {
	require.Equal(t, "555", parseChannelID("<#555>"))
	require.Equal(t, "555", parseChannelID("555"))
	require.Equal(t, "", parseChannelID("<@555>"))
	require.Equal(t, "", parseChannelID("chan"))
}
