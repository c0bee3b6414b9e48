package server

import (
	"github.com/npezzotti/go-chatserver/internal/types"
)

// ClientMessage is the envelope for client events. Exactly one of the
// event fields is set; the JSON keys are the wire event names.
type ClientMessage struct {
	Join       *Join       `json:"join-room,omitempty"`
	Send       *Send       `json:"send-message,omitempty"`
	Mute       *Mute       `json:"mute-user,omitempty"`
	AssignRole *AssignRole `json:"assign-role,omitempty"`
	Kick       *Kick       `json:"kick-user,omitempty"`
	client     *Client
}

// Identity is the self-asserted identity supplied at join time. Only
// the username is used as a key; avatar and tag are display hints.
type Identity struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	Tag      string `json:"tag"`
}

type Join struct {
	RoomId   string   `json:"roomId"`
	Identity Identity `json:"userData"`
}

type Send struct {
	RoomId  string         `json:"roomId"`
	Message MessagePayload `json:"messageData"`
}

// MessagePayload carries only the client-controlled message fields; the
// author snapshot is stamped by the server.
type MessagePayload struct {
	Text string `json:"text"`
	Time string `json:"time"`
}

type Mute struct {
	Username string `json:"targetName"`
}

type AssignRole struct {
	Username string     `json:"targetName"`
	Role     types.Role `json:"role"`
}

type Kick struct {
	Username string `json:"targetName"`
}

// ServerMessage is the envelope for server events, optional-field style:
// only the set event is serialized.
type ServerMessage struct {
	History *ChatHistory    `json:"load-chat-history,omitempty"`
	Members []types.Member  `json:"update-member-list,omitempty"`
	Message *types.Message  `json:"new-message,omitempty"`
	Error   string          `json:"error-msg,omitempty"`
	Kicked  bool            `json:"kicked,omitempty"`
}

type ChatHistory struct {
	RoomId   string          `json:"roomId"`
	Messages []types.Message `json:"messages"`
}

func ErrMuted() *ServerMessage {
	return &ServerMessage{Error: "you are currently muted"}
}

func ErrNotJoined() *ServerMessage {
	return &ServerMessage{Error: "join a room before sending messages"}
}

func ErrForbidden() *ServerMessage {
	return &ServerMessage{Error: "only the owner can do that"}
}

func ErrInvalidInput(reason string) *ServerMessage {
	return &ServerMessage{Error: reason}
}

func ErrServiceUnavailable() *ServerMessage {
	return &ServerMessage{Error: "service unavailable, try again"}
}

func KickedNotice() *ServerMessage {
	return &ServerMessage{Kicked: true}
}
