package api

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatserver/internal/backup"
	"github.com/npezzotti/go-chatserver/internal/config"
	"github.com/npezzotti/go-chatserver/internal/server"
	"github.com/npezzotti/go-chatserver/internal/state"
	"github.com/npezzotti/go-chatserver/internal/stats"
	"github.com/npezzotti/go-chatserver/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestApp(t *testing.T) *httptest.Server {
	logger := testutil.TestLogger(t)

	store, err := backup.NewFileStore(filepath.Join(t.TempDir(), "snapshot.json"))
	if err != nil {
		t.Fatalf("failed to create snapshot store: %v", err)
	}

	p := backup.NewPersister(store, nil, nil, logger)

	st := state.New()
	st.Restore(p.Recover())

	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Maybe()
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	cs, err := server.NewChatServer(logger, st, p, su)
	if err != nil {
		t.Fatalf("failed to create chat server: %v", err)
	}
	go cs.Run()

	cfg, err := config.NewConfig("localhost:0", "unused", "", "", nil)
	if err != nil {
		t.Fatalf("failed to create config: %v", err)
	}

	mux := http.NewServeMux()
	NewServer(mux, logger, cs, cfg)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func dialWs(t *testing.T, srv *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) *server.ServerMessage {
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg server.ServerMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read server message: %v", err)
	}
	return &msg
}

func sendJoin(t *testing.T, conn *websocket.Conn, roomId, username string) {
	err := conn.WriteJSON(&server.ClientMessage{
		Join: &server.Join{
			RoomId:   roomId,
			Identity: server.Identity{Username: username, Avatar: "http://avatars/" + username, Tag: "#1234"},
		},
	})
	assert.NoError(t, err)
}

func TestHealthz(t *testing.T) {
	srv := newTestApp(t)

	resp, err := http.Get(srv.URL + "/healthz")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestServeWs_joinAndChat(t *testing.T) {
	srv := newTestApp(t)

	alice := dialWs(t, srv)
	sendJoin(t, alice, "general", "alice")

	msg := readMessage(t, alice)
	assert.NotNil(t, msg.History, "expected chat history on join")
	assert.Equal(t, "general", msg.History.RoomId)
	assert.Empty(t, msg.History.Messages)

	msg = readMessage(t, alice)
	assert.Len(t, msg.Members, 1, "expected member list with alice")
	assert.Equal(t, "alice", msg.Members[0].Username)
	assert.True(t, msg.Members[0].Online)

	bob := dialWs(t, srv)
	sendJoin(t, bob, "general", "bob")

	msg = readMessage(t, bob)
	assert.NotNil(t, msg.History)

	msg = readMessage(t, bob)
	assert.Len(t, msg.Members, 2)

	// alice sees the roster update too
	msg = readMessage(t, alice)
	assert.Len(t, msg.Members, 2)

	err := bob.WriteJSON(&server.ClientMessage{
		Send: &server.Send{RoomId: "general", Message: server.MessagePayload{Text: "hello", Time: "10:00"}},
	})
	assert.NoError(t, err)

	for _, conn := range []*websocket.Conn{alice, bob} {
		msg = readMessage(t, conn)
		assert.NotNil(t, msg.Message, "expected new-message broadcast")
		assert.Equal(t, "hello", msg.Message.Text)
		assert.Equal(t, "bob", msg.Message.Username, "expected server-stamped author")
	}
}

func TestServeWs_identityIsNotClientTrusted(t *testing.T) {
	srv := newTestApp(t)

	conn := dialWs(t, srv)
	sendJoin(t, conn, "general", "alice")
	readMessage(t, conn) // history
	readMessage(t, conn) // members

	// the send payload has no author fields at all; the server stamps
	// them from the directory
	err := conn.WriteJSON(map[string]any{
		"send-message": map[string]any{
			"roomId":      "general",
			"messageData": map[string]any{"text": "hi", "time": "10:00", "username": "someone-else"},
		},
	})
	assert.NoError(t, err)

	msg := readMessage(t, conn)
	assert.NotNil(t, msg.Message)
	assert.Equal(t, "alice", msg.Message.Username, "expected spoofed username to be ignored")
}
