package server

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/npezzotti/go-chatserver/internal/state"
	"github.com/npezzotti/go-chatserver/internal/stats"
	"github.com/npezzotti/go-chatserver/internal/types"
)

// condensedMessages is how many messages per room are carried in the
// remote backup payload.
const condensedMessages = 10

// Persister is the slice of the persistence subsystem the dispatcher
// needs: a dual-store write after every mutation and best-effort
// activity lines.
type Persister interface {
	Persist(full, condensed types.Snapshot)
	Announce(text string)
}

// session is the dispatcher's bookkeeping for one live connection.
// A session is anonymous until its first join binds a username.
type session struct {
	username string
	roomId   string
}

type shutdownReq struct {
	done chan struct{}
}

// ChatServer is the authoritative state machine. A single dispatcher
// goroutine consumes every event, so the state service and the session
// registry are mutated without locks.
type ChatServer struct {
	log            *log.Logger
	state          *state.State
	persister      Persister
	stats          stats.StatsProvider
	RegisterChan   chan *Client
	DeRegisterChan chan *Client
	eventChan      chan *ClientMessage
	stop           chan shutdownReq
	sessions       map[*Client]*session
}

func NewChatServer(logger *log.Logger, st *state.State, p Persister, su stats.StatsProvider) (*ChatServer, error) {
	if st == nil {
		return nil, fmt.Errorf("state cannot be nil")
	}
	if p == nil {
		return nil, fmt.Errorf("persister cannot be nil")
	}

	su.RegisterMetric(stats.NumActiveSessions)
	su.RegisterMetric(stats.NumMessages)

	return &ChatServer{
		log:            logger,
		state:          st,
		persister:      p,
		stats:          su,
		RegisterChan:   make(chan *Client),
		DeRegisterChan: make(chan *Client),
		eventChan:      make(chan *ClientMessage, 256),
		stop:           make(chan shutdownReq),
		sessions:       make(map[*Client]*session),
	}, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case c := <-cs.RegisterChan:
			cs.addSession(c)
		case c := <-cs.DeRegisterChan:
			cs.removeSession(c)
		case msg := <-cs.eventChan:
			cs.dispatch(msg)
		case req := <-cs.stop:
			cs.log.Println("stopping all sessions")
			for c := range cs.sessions {
				c.stopClient()
			}
			close(req.done)
			return
		}
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	req := shutdownReq{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cs *ChatServer) dispatch(msg *ClientMessage) {
	switch {
	case msg.Join != nil:
		cs.handleJoin(msg)
	case msg.Send != nil:
		cs.handleSend(msg)
	case msg.Mute != nil:
		cs.handleMute(msg)
	case msg.AssignRole != nil:
		cs.handleAssignRole(msg)
	case msg.Kick != nil:
		cs.handleKick(msg)
	default:
		msg.client.queueMessage(ErrInvalidInput("unknown event"))
	}
}

func (cs *ChatServer) addSession(c *Client) {
	cs.sessions[c] = &session{}
	cs.stats.Incr(stats.NumActiveSessions)
	cs.log.Printf("registered session %s", c.sessionId)
}

func (cs *ChatServer) removeSession(c *Client) {
	if _, ok := cs.sessions[c]; !ok {
		return
	}

	delete(cs.sessions, c)
	cs.stats.Decr(stats.NumActiveSessions)
	cs.log.Printf("removed session %s", c.sessionId)
	cs.broadcastMembers()
}

func (cs *ChatServer) handleJoin(msg *ClientMessage) {
	sess, ok := cs.sessions[msg.client]
	if !ok {
		return
	}

	username := strings.TrimSpace(msg.Join.Identity.Username)
	if username == "" {
		msg.client.queueMessage(ErrInvalidInput("username cannot be empty"))
		return
	}

	sess.username = username
	sess.roomId = msg.Join.RoomId

	u, created := cs.state.EnsureUser(username, msg.Join.Identity.Avatar, msg.Join.Identity.Tag)
	if created {
		cs.log.Printf("created user %q with role %q", u.Username, u.Role)
		cs.persist()
		cs.persister.Announce(fmt.Sprintf("new user: %s (%s)", u.Username, u.Tag))
	}

	msg.client.queueMessage(&ServerMessage{
		History: &ChatHistory{
			RoomId:   msg.Join.RoomId,
			Messages: cs.state.History(msg.Join.RoomId),
		},
	})

	cs.broadcastMembers()
}

func (cs *ChatServer) handleSend(msg *ClientMessage) {
	user, ok := cs.resolve(msg.client)
	if !ok {
		msg.client.queueMessage(ErrNotJoined())
		return
	}

	if user.Muted {
		msg.client.queueMessage(ErrMuted())
		return
	}

	full := types.Message{
		Text:     msg.Send.Message.Text,
		Time:     msg.Send.Message.Time,
		RoomId:   msg.Send.RoomId,
		Username: user.Username,
		Avatar:   user.Avatar,
		Role:     user.Role,
	}

	cs.state.Append(full)
	cs.stats.Incr(stats.NumMessages)

	cs.broadcastToRoom(full.RoomId, &ServerMessage{Message: &full})
	cs.persist()
}

func (cs *ChatServer) handleMute(msg *ClientMessage) {
	actor, ok := cs.requireOwner(msg.client)
	if !ok {
		return
	}

	target, err := cs.state.ToggleMute(msg.Mute.Username)
	if err != nil {
		msg.client.queueMessage(ErrInvalidInput("unknown user"))
		return
	}

	cs.log.Printf("%q set muted=%t on %q", actor.Username, target.Muted, target.Username)
	cs.persist()
	cs.persister.Announce(fmt.Sprintf("%s set muted=%t on %s", actor.Username, target.Muted, target.Username))
	cs.broadcastMembers()
}

func (cs *ChatServer) handleAssignRole(msg *ClientMessage) {
	actor, ok := cs.requireOwner(msg.client)
	if !ok {
		return
	}

	target, err := cs.state.AssignRole(msg.AssignRole.Username, msg.AssignRole.Role)
	if err != nil {
		switch err {
		case state.ErrInvalidRole:
			msg.client.queueMessage(ErrInvalidInput("invalid role"))
		case state.ErrOwnerExists:
			msg.client.queueMessage(ErrInvalidInput("an owner already exists"))
		default:
			msg.client.queueMessage(ErrInvalidInput("unknown user"))
		}
		return
	}

	cs.log.Printf("%q assigned role %q to %q", actor.Username, target.Role, target.Username)
	cs.persist()
	cs.persister.Announce(fmt.Sprintf("%s assigned role %s to %s", actor.Username, target.Role, target.Username))
	cs.broadcastMembers()
}

func (cs *ChatServer) handleKick(msg *ClientMessage) {
	actor, ok := cs.requireOwner(msg.client)
	if !ok {
		return
	}

	var kicked bool
	for c, sess := range cs.sessions {
		if sess.username != msg.Kick.Username {
			continue
		}

		kicked = true
		c.queueMessage(KickedNotice())
		c.stopClient()
		delete(cs.sessions, c)
		cs.stats.Decr(stats.NumActiveSessions)
	}

	// kicking a user with no live session is a no-op; the directory
	// record is never deleted either way
	if !kicked {
		return
	}

	cs.log.Printf("%q kicked %q", actor.Username, msg.Kick.Username)
	cs.persister.Announce(fmt.Sprintf("%s kicked %s", actor.Username, msg.Kick.Username))
	cs.broadcastMembers()
}

// resolve maps a live connection to its directory record. It fails for
// sessions that never joined and for usernames missing from the
// directory.
func (cs *ChatServer) resolve(c *Client) (types.User, bool) {
	sess, ok := cs.sessions[c]
	if !ok || sess.username == "" {
		return types.User{}, false
	}

	return cs.state.User(sess.username)
}

// requireOwner gates moderation actions. Non-owners get an explicit
// forbidden error rather than a silent no-op.
func (cs *ChatServer) requireOwner(c *Client) (types.User, bool) {
	user, ok := cs.resolve(c)
	if !ok || user.Role != types.RoleOwner {
		c.queueMessage(ErrForbidden())
		return types.User{}, false
	}

	return user, true
}

func (cs *ChatServer) online(username string) bool {
	for _, sess := range cs.sessions {
		if sess.username == username {
			return true
		}
	}
	return false
}

// broadcastMembers pushes the full roster with derived online flags to
// every session.
func (cs *ChatServer) broadcastMembers() {
	members := cs.state.Members(cs.online)
	if len(members) == 0 {
		return
	}

	for c := range cs.sessions {
		c.queueMessage(&ServerMessage{Members: members})
	}
}

// broadcastToRoom delivers a message to every session joined to the
// room, in append order: the dispatcher is the only writer, so queueing
// order equals log order.
func (cs *ChatServer) broadcastToRoom(roomId string, msg *ServerMessage) {
	for c, sess := range cs.sessions {
		if sess.roomId != roomId {
			continue
		}
		c.queueMessage(msg)
	}
}

func (cs *ChatServer) persist() {
	cs.persister.Persist(cs.state.Snapshot(), cs.state.Condensed(condensedMessages))
}
