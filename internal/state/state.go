package state

import (
	"errors"
	"sort"

	"github.com/npezzotti/go-chatserver/internal/types"
)

// MaxRoomMessages caps each room's log; the oldest entry is evicted
// once the cap is exceeded.
const MaxRoomMessages = 50

const defaultTag = "#0000"

var (
	ErrUnknownUser = errors.New("unknown user")
	ErrInvalidRole = errors.New("invalid role")
	ErrOwnerExists = errors.New("owner already exists")
)

// State owns the user directory and the per-room message logs. It is
// confined to the chat server's dispatcher goroutine and therefore
// needs no locking; everything else reaches it through the dispatcher.
type State struct {
	users    map[string]types.User
	messages map[string][]types.Message
}

func New() *State {
	return &State{
		users:    make(map[string]types.User),
		messages: make(map[string][]types.Message),
	}
}

// EnsureUser returns the directory record for username, creating it if
// absent. The first user ever created on an empty directory becomes the
// owner; everyone after that starts as a member. The returned bool
// reports whether a record was created.
func (s *State) EnsureUser(username, avatar, tag string) (types.User, bool) {
	if u, ok := s.users[username]; ok {
		return u, false
	}

	if tag == "" {
		tag = defaultTag
	}

	role := types.RoleMember
	if len(s.users) == 0 {
		role = types.RoleOwner
	}

	u := types.User{
		Username: username,
		Avatar:   avatar,
		Tag:      tag,
		Role:     role,
		Muted:    false,
	}
	s.users[username] = u

	return u, true
}

func (s *State) User(username string) (types.User, bool) {
	u, ok := s.users[username]
	return u, ok
}

// ToggleMute flips the target's muted flag.
func (s *State) ToggleMute(username string) (types.User, error) {
	u, ok := s.users[username]
	if !ok {
		return types.User{}, ErrUnknownUser
	}

	u.Muted = !u.Muted
	s.users[username] = u
	return u, nil
}

// AssignRole sets the target's role. The role must be one of the known
// ranks, and at most one owner may exist at a time: promoting a second
// account to owner fails with ErrOwnerExists.
func (s *State) AssignRole(username string, role types.Role) (types.User, error) {
	if !role.Valid() {
		return types.User{}, ErrInvalidRole
	}

	u, ok := s.users[username]
	if !ok {
		return types.User{}, ErrUnknownUser
	}

	if role == types.RoleOwner && u.Role != types.RoleOwner {
		for _, other := range s.users {
			if other.Role == types.RoleOwner {
				return types.User{}, ErrOwnerExists
			}
		}
	}

	u.Role = role
	s.users[username] = u
	return u, nil
}

// Append adds a message to its room's log, evicting the oldest entry
// once the room exceeds MaxRoomMessages.
func (s *State) Append(msg types.Message) {
	log := append(s.messages[msg.RoomId], msg)
	if len(log) > MaxRoomMessages {
		log = log[len(log)-MaxRoomMessages:]
	}
	s.messages[msg.RoomId] = log
}

// History returns the room's log in arrival order.
func (s *State) History(roomId string) []types.Message {
	log := s.messages[roomId]
	out := make([]types.Message, len(log))
	copy(out, log)
	return out
}

// Members returns every directory record with its derived online flag,
// sorted by username.
func (s *State) Members(online func(username string) bool) []types.Member {
	members := make([]types.Member, 0, len(s.users))
	for _, u := range s.users {
		members = append(members, types.Member{
			User:   u,
			Online: online != nil && online(u.Username),
		})
	}

	sort.Slice(members, func(i, j int) bool {
		return members[i].Username < members[j].Username
	})

	return members
}

// Snapshot returns a deep copy of the full directory and logs.
func (s *State) Snapshot() types.Snapshot {
	return types.Snapshot{Users: s.users, Messages: s.messages}.Clone()
}

// Condensed returns the full directory with only the last k messages of
// each room, bounding the remote backup payload.
func (s *State) Condensed(k int) types.Snapshot {
	snap := s.Snapshot()
	for room, msgs := range snap.Messages {
		if len(msgs) > k {
			snap.Messages[room] = msgs[len(msgs)-k:]
		}
	}
	return snap
}

// Restore replaces the directory and logs with the snapshot's contents,
// re-applying the log cap in case the source exceeded it.
func (s *State) Restore(snap types.Snapshot) {
	cp := snap.Clone()

	s.users = cp.Users
	if s.users == nil {
		s.users = make(map[string]types.User)
	}

	s.messages = make(map[string][]types.Message, len(cp.Messages))
	for room, msgs := range cp.Messages {
		if len(msgs) > MaxRoomMessages {
			msgs = msgs[len(msgs)-MaxRoomMessages:]
		}
		s.messages[room] = msgs
	}
}
