package domain

import "time"

type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityPrivate  Visibility = "private"
	VisibilityJoinMute Visibility = "joinmute"
)

// Room represents one live voice+text channel pair spawned by a generator.
// The two channels are created together and destroyed together; the room
// record exists exactly as long as its voice channel exists on the platform.
type Room struct {
	VoiceChannelID string
	TextChannelID  string
	GuildID        string
	GeneratorID    string
	OwnerID        string
	Name           string
	Visibility     Visibility
	JoinMute       time.Duration
	AllowList      map[string]struct{}
	Size           int
	Bitrate        int
	CreatedAt      time.Time
}

func NewRoom(guildID, generatorID, ownerID, name string, size, bitrate int) *Room {
	return &Room{
		GuildID:     guildID,
		GeneratorID: generatorID,
		OwnerID:     ownerID,
		Name:        name,
		Visibility:  VisibilityPublic,
		AllowList:   make(map[string]struct{}),
		Size:        size,
		Bitrate:     bitrate,
		CreatedAt:   time.Now().UTC(),
	}
}

func (r *Room) Allow(targetID string) {
	if r.AllowList == nil {
		r.AllowList = make(map[string]struct{})
	}
	r.AllowList[targetID] = struct{}{}
}

func (r *Room) Deny(targetID string) {
	delete(r.AllowList, targetID)
}

func (r *Room) Allowed(targetID string) bool {
	if targetID == r.OwnerID {
		return true
	}
	_, ok := r.AllowList[targetID]
	return ok
}

// AllowedIDs returns the allow-list in a stable-to-copy slice form.
func (r *Room) AllowedIDs() []string {
	ids := make([]string, 0, len(r.AllowList))
	for id := range r.AllowList {
		ids = append(ids, id)
	}
	return ids
}
