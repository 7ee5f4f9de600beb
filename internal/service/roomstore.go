package service

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/mherren/voxbot/internal/domain"
)

var (
	ErrOwnerHasRoom = errors.New("owner already has a room")
	ErrRoomNotFound = errors.New("room not found")
)

// RoomStore is the authoritative in-memory map of live rooms, keyed by voice
// channel id, with a secondary owner index. An owner holds at most one room
// at a time; the claim is taken before any platform channel is created, which
// is what makes concurrent joins to the same trigger resolve to one room.
//
// All mutations go through Create/Claim/Mutate/Remove/Transfer, which
// serialize operations on a room. Reads return snapshots, never shared
// pointers.
type RoomStore struct {
	log *slog.Logger

	mu     sync.RWMutex
	rooms  map[string]*domain.Room
	owners map[string]string // ownerID -> room key
	texts  map[string]string // textChannelID -> voice channel id
}

func NewRoomStore(log *slog.Logger) *RoomStore {
	if log == nil {
		log = slog.Default()
	}
	return &RoomStore{
		log:    log,
		rooms:  make(map[string]*domain.Room),
		owners: make(map[string]string),
		texts:  make(map[string]string),
	}
}

// Claim atomically reserves the owner slot before any platform call is made.
// The returned claim id is a provisional store key; Promote swaps it for the
// real room once the channel pair exists, Release rolls it back.
func (s *RoomStore) Claim(guildID, generatorID, ownerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.owners[ownerID]; ok {
		if _, live := s.rooms[key]; live {
			return "", ErrOwnerHasRoom
		}
		// Stale index entry; the room it pointed at is gone.
		s.log.Error("owner index pointed at a missing room",
			slog.String("owner_id", ownerID),
			slog.String("key", key),
		)
		delete(s.owners, ownerID)
	}

	claimID := "claim:" + uuid.NewString()
	s.rooms[claimID] = &domain.Room{
		GuildID:     guildID,
		GeneratorID: generatorID,
		OwnerID:     ownerID,
	}
	s.owners[ownerID] = claimID
	return claimID, nil
}

func (s *RoomStore) Promote(claimID string, room *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	claim, ok := s.rooms[claimID]
	if !ok {
		return ErrRoomNotFound
	}
	if claim.OwnerID != room.OwnerID {
		return errors.New("claim owner mismatch")
	}

	delete(s.rooms, claimID)
	s.rooms[room.VoiceChannelID] = room
	s.owners[room.OwnerID] = room.VoiceChannelID
	s.texts[room.TextChannelID] = room.VoiceChannelID
	return nil
}

func (s *RoomStore) Release(claimID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	claim, ok := s.rooms[claimID]
	if !ok {
		return
	}
	delete(s.rooms, claimID)
	if s.owners[claim.OwnerID] == claimID {
		delete(s.owners, claim.OwnerID)
	}
}

func (s *RoomStore) Get(voiceChannelID string) (domain.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[voiceChannelID]
	if !ok {
		return domain.Room{}, false
	}
	return snapshotRoom(room), true
}

func (s *RoomStore) GetByOwner(ownerID string) (domain.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.owners[ownerID]
	if !ok {
		return domain.Room{}, false
	}
	room, ok := s.rooms[key]
	if !ok || room.VoiceChannelID == "" {
		return domain.Room{}, false
	}
	return snapshotRoom(room), true
}

func (s *RoomStore) GetByText(textChannelID string) (domain.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	voiceID, ok := s.texts[textChannelID]
	if !ok {
		return domain.Room{}, false
	}
	room, ok := s.rooms[voiceID]
	if !ok {
		return domain.Room{}, false
	}
	return snapshotRoom(room), true
}

// Mutate applies an atomic read-modify-write to a single room.
func (s *RoomStore) Mutate(voiceChannelID string, fn func(*domain.Room)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[voiceChannelID]
	if !ok {
		return ErrRoomNotFound
	}
	fn(room)
	return nil
}

// Remove is the only way a room ceases to exist. The caller deletes the
// platform channels after Remove succeeds, never before; if that platform
// deletion fails the caller must Reinsert the room and retry later.
func (s *RoomStore) Remove(voiceChannelID string) (domain.Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[voiceChannelID]
	if !ok {
		return domain.Room{}, false
	}

	delete(s.rooms, voiceChannelID)
	delete(s.texts, room.TextChannelID)
	if s.owners[room.OwnerID] == voiceChannelID {
		delete(s.owners, room.OwnerID)
	}
	return snapshotRoom(room), true
}

// Reinsert restores a removed room after a failed platform deletion. If the
// owner acquired another room in the meantime the newer room wins and the
// reinserted one keeps only its channel-keyed entries.
func (s *RoomStore) Reinsert(room domain.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := snapshotRoom(&room)
	s.rooms[room.VoiceChannelID] = &restored
	s.texts[room.TextChannelID] = room.VoiceChannelID

	if key, ok := s.owners[room.OwnerID]; ok && key != room.VoiceChannelID {
		if other, live := s.rooms[key]; live {
			s.log.Error("owner holds two rooms, keeping the newer one",
				slog.String("owner_id", room.OwnerID),
				slog.String("kept", key),
				slog.String("discarded_index_for", room.VoiceChannelID),
			)
			if !other.CreatedAt.After(restored.CreatedAt) {
				s.owners[room.OwnerID] = room.VoiceChannelID
			}
			return
		}
	}
	s.owners[room.OwnerID] = room.VoiceChannelID
}

// Transfer reassigns ownership atomically: afterwards exactly one owner-index
// entry points at the room, and the old owner has none.
func (s *RoomStore) Transfer(voiceChannelID, oldOwnerID, newOwnerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[voiceChannelID]
	if !ok {
		return ErrRoomNotFound
	}
	if room.OwnerID != oldOwnerID {
		return ErrRoomNotFound
	}
	if key, ok := s.owners[newOwnerID]; ok {
		if _, live := s.rooms[key]; live {
			return ErrOwnerHasRoom
		}
		delete(s.owners, newOwnerID)
	}

	room.OwnerID = newOwnerID
	if s.owners[oldOwnerID] == voiceChannelID {
		delete(s.owners, oldOwnerID)
	}
	s.owners[newOwnerID] = voiceChannelID
	return nil
}

func (s *RoomStore) List(guildID string) []domain.Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		if room.VoiceChannelID == "" {
			continue // unpromoted claim
		}
		if guildID == "" || room.GuildID == guildID {
			result = append(result, snapshotRoom(room))
		}
	}
	return result
}

func snapshotRoom(room *domain.Room) domain.Room {
	copied := *room
	copied.AllowList = make(map[string]struct{}, len(room.AllowList))
	for id := range room.AllowList {
		copied.AllowList[id] = struct{}{}
	}
	return copied
}
