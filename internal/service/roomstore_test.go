package service

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mherren/voxbot/internal/domain"
	"github.com/stretchr/testify/require"
)

func newRoom(voiceID, textID, ownerID string) *domain.Room {
	room := domain.NewRoom("guild-1", "trigger-1", ownerID, "test room", 10, 64)
	room.VoiceChannelID = voiceID
	room.TextChannelID = textID
	return room
}

func TestRoomStoreClaimAndPromote(t *testing.T) {
	store := NewRoomStore(nil)

	claimID, err := store.Claim("guild-1", "trigger-1", "owner-1")
	require.NoError(t, err)

	// The claim reserves the owner slot but is not yet a visible room.
	_, ok := store.GetByOwner("owner-1")
	require.False(t, ok)
	require.Empty(t, store.List("guild-1"))

	_, err = store.Claim("guild-1", "trigger-1", "owner-1")
	require.ErrorIs(t, err, ErrOwnerHasRoom)

	require.NoError(t, store.Promote(claimID, newRoom("voice-1", "text-1", "owner-1")))

	room, ok := store.GetByOwner("owner-1")
	require.True(t, ok)
	require.Equal(t, "voice-1", room.VoiceChannelID)

	room, ok = store.GetByText("text-1")
	require.True(t, ok)
	require.Equal(t, "voice-1", room.VoiceChannelID)

	require.Len(t, store.List("guild-1"), 1)
}

func TestRoomStoreReleaseFreesOwner(t *testing.T) {
	store := NewRoomStore(nil)

	claimID, err := store.Claim("guild-1", "trigger-1", "owner-1")
	require.NoError(t, err)

	store.Release(claimID)

	_, err = store.Claim("guild-1", "trigger-1", "owner-1")
	require.NoError(t, err)
}

func TestRoomStoreConcurrentClaimsOneWinner(t *testing.T) {
	store := NewRoomStore(nil)

	const racers = 16
	var wg sync.WaitGroup
	wins := make(chan string, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if claimID, err := store.Claim("guild-1", "trigger-1", "owner-1"); err == nil {
				wins <- claimID
			}
		}()
	}
	wg.Wait()
	close(wins)

	var claims []string
	for claimID := range wins {
		claims = append(claims, claimID)
	}
	require.Len(t, claims, 1)
}

func TestRoomStorePromoteUnknownClaim(t *testing.T) {
	store := NewRoomStore(nil)
	err := store.Promote("claim:nope", newRoom("voice-1", "text-1", "owner-1"))
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRoomStoreReadsReturnSnapshots(t *testing.T) {
	store := NewRoomStore(nil)
	claimID, _ := store.Claim("guild-1", "trigger-1", "owner-1")
	require.NoError(t, store.Promote(claimID, newRoom("voice-1", "text-1", "owner-1")))

	room, _ := store.Get("voice-1")
	room.Allow("intruder")
	room.Name = "hijacked"

	fresh, _ := store.Get("voice-1")
	require.False(t, fresh.Allowed("intruder"))
	require.Equal(t, "test room", fresh.Name)
}

func TestRoomStoreMutate(t *testing.T) {
	store := NewRoomStore(nil)
	claimID, _ := store.Claim("guild-1", "trigger-1", "owner-1")
	require.NoError(t, store.Promote(claimID, newRoom("voice-1", "text-1", "owner-1")))

	err := store.Mutate("voice-1", func(r *domain.Room) {
		r.Visibility = domain.VisibilityPrivate
		r.Allow("friend-1")
	})
	require.NoError(t, err)

	room, _ := store.Get("voice-1")
	require.Equal(t, domain.VisibilityPrivate, room.Visibility)
	require.True(t, room.Allowed("friend-1"))

	err = store.Mutate("voice-9", func(r *domain.Room) {})
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRoomStoreRemoveClearsIndexes(t *testing.T) {
	store := NewRoomStore(nil)
	claimID, _ := store.Claim("guild-1", "trigger-1", "owner-1")
	require.NoError(t, store.Promote(claimID, newRoom("voice-1", "text-1", "owner-1")))

	removed, ok := store.Remove("voice-1")
	require.True(t, ok)
	require.Equal(t, "voice-1", removed.VoiceChannelID)

	_, ok = store.Get("voice-1")
	require.False(t, ok)
	_, ok = store.GetByOwner("owner-1")
	require.False(t, ok)
	_, ok = store.GetByText("text-1")
	require.False(t, ok)

	// Owner is free to claim again.
	_, err := store.Claim("guild-1", "trigger-1", "owner-1")
	require.NoError(t, err)
}

func TestRoomStoreReinsertRestoresRoom(t *testing.T) {
	store := NewRoomStore(nil)
	claimID, _ := store.Claim("guild-1", "trigger-1", "owner-1")
	require.NoError(t, store.Promote(claimID, newRoom("voice-1", "text-1", "owner-1")))

	removed, _ := store.Remove("voice-1")
	store.Reinsert(removed)

	room, ok := store.GetByOwner("owner-1")
	require.True(t, ok)
	require.Equal(t, "voice-1", room.VoiceChannelID)
}

func TestRoomStoreReinsertKeepsNewerRoomForOwner(t *testing.T) {
	store := NewRoomStore(nil)
	claimID, _ := store.Claim("guild-1", "trigger-1", "owner-1")
	old := newRoom("voice-1", "text-1", "owner-1")
	old.CreatedAt = time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.Promote(claimID, old))

	removed, _ := store.Remove("voice-1")

	claimID, err := store.Claim("guild-1", "trigger-1", "owner-1")
	require.NoError(t, err)
	require.NoError(t, store.Promote(claimID, newRoom("voice-2", "text-2", "owner-1")))

	store.Reinsert(removed)

	// Both rooms are tracked by channel, but the owner index points at the
	// newer one.
	_, ok := store.Get("voice-1")
	require.True(t, ok)
	room, ok := store.GetByOwner("owner-1")
	require.True(t, ok)
	require.Equal(t, "voice-2", room.VoiceChannelID)
}

func TestRoomStoreTransfer(t *testing.T) {
	store := NewRoomStore(nil)
	claimID, _ := store.Claim("guild-1", "trigger-1", "owner-1")
	require.NoError(t, store.Promote(claimID, newRoom("voice-1", "text-1", "owner-1")))

	require.NoError(t, store.Transfer("voice-1", "owner-1", "owner-2"))

	room, ok := store.GetByOwner("owner-2")
	require.True(t, ok)
	require.Equal(t, "owner-2", room.OwnerID)
	_, ok = store.GetByOwner("owner-1")
	require.False(t, ok)

	// The old owner can open a new room now.
	_, err := store.Claim("guild-1", "trigger-1", "owner-1")
	require.NoError(t, err)
}

func TestRoomStoreTransferToOwnerWithRoom(t *testing.T) {
	store := NewRoomStore(nil)
	claimID, _ := store.Claim("guild-1", "trigger-1", "owner-1")
	require.NoError(t, store.Promote(claimID, newRoom("voice-1", "text-1", "owner-1")))
	claimID, _ = store.Claim("guild-1", "trigger-1", "owner-2")
	require.NoError(t, store.Promote(claimID, newRoom("voice-2", "text-2", "owner-2")))

	err := store.Transfer("voice-1", "owner-1", "owner-2")
	require.ErrorIs(t, err, ErrOwnerHasRoom)
}

func TestRoomStoreTransferWrongOwner(t *testing.T) {
	store := NewRoomStore(nil)
	claimID, _ := store.Claim("guild-1", "trigger-1", "owner-1")
	require.NoError(t, store.Promote(claimID, newRoom("voice-1", "text-1", "owner-1")))

	err := store.Transfer("voice-1", "owner-9", "owner-2")
	require.True(t, errors.Is(err, ErrRoomNotFound))
}

func TestRoomStoreListFiltersByGuild(t *testing.T) {
	store := NewRoomStore(nil)
	claimID, _ := store.Claim("guild-1", "trigger-1", "owner-1")
	require.NoError(t, store.Promote(claimID, newRoom("voice-1", "text-1", "owner-1")))

	claimID, _ = store.Claim("guild-2", "trigger-2", "owner-2")
	other := newRoom("voice-2", "text-2", "owner-2")
	other.GuildID = "guild-2"
	require.NoError(t, store.Promote(claimID, other))

	require.Len(t, store.List("guild-1"), 1)
	require.Len(t, store.List("guild-2"), 1)
	require.Len(t, store.List(""), 2)
}
