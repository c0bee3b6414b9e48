package types

// Role is the moderation rank of a user. The set is closed: anything
// outside owner/mod/member is rejected at the point of assignment.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMod    Role = "mod"
	RoleMember Role = "member"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleMod, RoleMember:
		return true
	}
	return false
}

// User is a directory record keyed by username. Usernames are
// self-asserted at join time; avatar and tag are untrusted display hints.
type User struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Tag      string `json:"tag"`
	Role     Role   `json:"role"`
	Muted    bool   `json:"isMuted"`
}

// Member is a directory record plus the derived online flag sent in
// update-member-list broadcasts.
type Member struct {
	User
	Online bool `json:"isOnline"`
}

// Message is a chat line with the author snapshot stamped by the server
// from the directory at send time. Time is a producer-supplied display
// string, not a sortable timestamp; ordering is by arrival.
type Message struct {
	Text     string `json:"text"`
	Time     string `json:"time"`
	RoomId   string `json:"roomId"`
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Role     Role   `json:"role"`
}

// Snapshot is the serializable projection of the directory and the
// per-room message logs. It is the unit written to both the local store
// and the remote backup channel.
type Snapshot struct {
	Users    map[string]User      `json:"users"`
	Messages map[string][]Message `json:"messages"`
}

// Clone returns a deep copy so persistence can serialize the snapshot
// outside the dispatcher without racing later mutations.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Users:    make(map[string]User, len(s.Users)),
		Messages: make(map[string][]Message, len(s.Messages)),
	}
	for name, u := range s.Users {
		out.Users[name] = u
	}
	for room, msgs := range s.Messages {
		cp := make([]Message, len(msgs))
		copy(cp, msgs)
		out.Messages[room] = cp
	}
	return out
}
