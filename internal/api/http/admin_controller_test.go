package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mherren/voxbot/internal/domain"
	"github.com/mherren/voxbot/internal/repository"
	"github.com/mherren/voxbot/internal/service"
	"github.com/stretchr/testify/require"
)

func newAdminRouter(t *testing.T) (*gin.Engine, *service.RoomStore, *service.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := service.NewRoomStore(nil)
	registry := service.NewRegistry(repository.NewInMemoryGeneratorRepository(), nil)
	router := SetupRouter(NewAdminController(store, registry, nil), nil)
	return router, store, registry
}

func seedStoreRoom(t *testing.T, store *service.RoomStore, guildID, ownerID, voiceID string) {
	t.Helper()

	claimID, err := store.Claim(guildID, "trigger-1", ownerID)
	require.NoError(t, err)

	room := domain.NewRoom(guildID, "trigger-1", ownerID, "room "+voiceID, 10, 64)
	room.VoiceChannelID = voiceID
	room.TextChannelID = "text-" + voiceID
	require.NoError(t, store.Promote(claimID, room))
}

func TestListRoomsFiltersByGuild(t *testing.T) {
	router, store, _ := newAdminRouter(t)
	seedStoreRoom(t, store, "guild-1", "owner-1", "voice-1")
	seedStoreRoom(t, store, "guild-2", "owner-2", "voice-2")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/rooms?guild_id=guild-1", nil))

	require.Equal(t, 200, rec.Code)

	var body struct {
		Rooms []struct {
			VoiceChannelID string `json:"voice_channel_id"`
			OwnerID        string `json:"owner_id"`
			Visibility     string `json:"visibility"`
		} `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rooms, 1)
	require.Equal(t, "voice-1", body.Rooms[0].VoiceChannelID)
	require.Equal(t, "public", body.Rooms[0].Visibility)
}

func TestListGenerators(t *testing.T) {
	router, _, registry := newAdminRouter(t)
	require.NoError(t, registry.Register(context.Background(), domain.NewGeneratorConfig("guild-1", "trigger-1")))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/generators", nil))

	require.Equal(t, 200, rec.Code)

	var body struct {
		Generators []struct {
			TriggerChannelID string `json:"trigger_channel_id"`
			NameTemplate     string `json:"name_template"`
		} `json:"generators"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Generators, 1)
	require.Equal(t, "trigger-1", body.Generators[0].TriggerChannelID)
	require.Equal(t, domain.DefaultNameTemplate, body.Generators[0].NameTemplate)
}

func TestHealthz(t *testing.T) {
	router, _, _ := newAdminRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	require.Equal(t, 200, rec.Code)
}
