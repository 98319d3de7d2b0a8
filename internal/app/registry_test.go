package app

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/domain"
)

func user(name string) domain.User {
	return domain.User{ID: domain.UserID("u-" + name), Username: name}
}

func sorted(ids []core.ConnectionID) []core.ConnectionID {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	r.Register("", user("alice"))
	r.Register("s1", domain.User{ID: "u-1"})
	require.Equal(t, 0, r.Len())

	r.Register("s1", user("alice"))
	_, err := r.SetRoom("s1", "lounge")
	require.NoError(t, err)
	_, err = r.UpdateVoiceState("s1", domain.VoiceStatePatch{Muted: ptr(true)})
	require.NoError(t, err)

	// re-register keeps room and voice state
	r.Register("s1", user("alicia"))
	c, ok := r.Get("s1")
	require.True(t, ok)
	require.Equal(t, "alicia", c.User.Username)
	require.Equal(t, domain.RoomID("lounge"), c.Room)
	require.True(t, c.Voice.Muted)
	require.Equal(t, 1, r.Len())
	require.Equal(t, []core.ConnectionID{"s1"}, r.MembersOf("lounge"))
}

func TestRegistry_SetRoom(t *testing.T) {
	r := NewRegistry()

	_, err := r.SetRoom("ghost", "lounge")
	require.ErrorIs(t, err, core.ErrUnknownConnection)
	require.Empty(t, r.MembersOf("lounge"))

	r.Register("s1", user("alice"))
	prev, err := r.SetRoom("s1", "lounge")
	require.NoError(t, err)
	require.Equal(t, domain.RoomID(""), prev)

	prev, err = r.SetRoom("s1", "gaming")
	require.NoError(t, err)
	require.Equal(t, domain.RoomID("lounge"), prev)
	require.Empty(t, r.MembersOf("lounge"))
	require.Equal(t, []core.ConnectionID{"s1"}, r.MembersOf("gaming"))

	prev, err = r.SetRoom("s1", "")
	require.NoError(t, err)
	require.Equal(t, domain.RoomID("gaming"), prev)
	require.Equal(t, 0, r.CountOf("gaming"))
}

func TestRegistry_UpdateVoiceState(t *testing.T) {
	r := NewRegistry()
	_, err := r.UpdateVoiceState("ghost", domain.VoiceStatePatch{Speaking: ptr(true)})
	require.ErrorIs(t, err, core.ErrUnknownConnection)

	r.Register("s1", user("alice"))
	c, err := r.UpdateVoiceState("s1", domain.VoiceStatePatch{Speaking: ptr(true), Level: ptr(150.0)})
	require.NoError(t, err)
	require.True(t, c.Voice.Speaking)
	require.Equal(t, 100.0, c.Voice.Level)

	c, err = r.UpdateVoiceState("s1", domain.VoiceStatePatch{Muted: ptr(true)})
	require.NoError(t, err)
	require.True(t, c.Voice.Speaking)
	require.True(t, c.Voice.Muted)
	require.Equal(t, 100.0, c.Voice.Level)
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	r.Register("s1", user("alice"))
	r.Register("s2", user("bob"))
	_, _ = r.SetRoom("s1", "lounge")
	_, _ = r.SetRoom("s2", "lounge")

	c, ok := r.Remove("s1")
	require.True(t, ok)
	require.Equal(t, domain.RoomID("lounge"), c.Room)
	require.Equal(t, "alice", c.User.Username)

	_, ok = r.Remove("s1")
	require.False(t, ok)

	require.Equal(t, []core.ConnectionID{"s2"}, r.MembersOf("lounge"))
	_, ok = r.Get("s1")
	require.False(t, ok)
}

func TestRegistry_Roster(t *testing.T) {
	r := NewRegistry()
	r.Register("s1", user("alice"))
	_, _ = r.SetRoom("s1", "lounge")
	_, _ = r.UpdateVoiceState("s1", domain.VoiceStatePatch{VolumeMuted: ptr(true), Level: ptr(30.0)})

	roster := r.Roster("lounge")
	require.Equal(t, []core.MemberDTO{{
		ID:            "s1",
		UserID:        "u-alice",
		Username:      "alice",
		IsVolumeMuted: true,
		VoiceLevel:    30,
	}}, roster)
	require.Empty(t, r.Roster("gaming"))
}

func TestRegistry_MembersOfIsCopy(t *testing.T) {
	r := NewRegistry()
	r.Register("s1", user("alice"))
	_, _ = r.SetRoom("s1", "lounge")

	ids := r.MembersOf("lounge")
	ids[0] = "tampered"
	require.Equal(t, []core.ConnectionID{"s1"}, r.MembersOf("lounge"))
}

// TestRegistry_IndexConsistency drives random operations and checks that
// the room index always equals the set derived from the records.
func TestRegistry_IndexConsistency(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	r := NewRegistry()
	rooms := []domain.RoomID{"", "lounge", "gaming", "music"}

	for step := 0; step < 2000; step++ {
		id := core.ConnectionID(fmt.Sprintf("s%d", rnd.Intn(12)))
		switch rnd.Intn(4) {
		case 0:
			r.Register(id, user(string(id)))
		case 1:
			_, _ = r.SetRoom(id, rooms[rnd.Intn(len(rooms))])
		case 2:
			r.Remove(id)
		case 3:
			_, _ = r.UpdateVoiceState(id, domain.VoiceStatePatch{Speaking: ptr(rnd.Intn(2) == 0)})
		}

		want := make(map[domain.RoomID][]core.ConnectionID)
		for cid, c := range r.conns {
			if c.Room != "" {
				want[c.Room] = append(want[c.Room], cid)
			}
		}
		for _, room := range rooms[1:] {
			require.Equal(t, sorted(want[room]), sorted(r.MembersOf(room)), "step %d room %s", step, room)
			require.Equal(t, len(want[room]), r.CountOf(room))
		}
		for room, members := range r.byRoom {
			require.NotEmpty(t, members, "empty index entry for %s", room)
		}
	}
}
