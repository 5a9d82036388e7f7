package chat

// NOTE: Tests cannot use t.Parallel() due to shared package state.

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codr1/courtbook/internal/api/auth"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/store"
	"github.com/codr1/courtbook/internal/testutil"
)

type liveReply struct {
	Type      string          `json:"type"`
	Success   bool            `json:"success"`
	Message   json.RawMessage `json:"message"`
	MessageID int64           `json:"messageId"`
}

func (r liveReply) text() string {
	var s string
	_ = json.Unmarshal(r.Message, &s)
	return s
}

func setupLiveTest(t *testing.T) (store.Store, testutil.Fixture, *auth.TokenIssuer, *httptest.Server) {
	t.Helper()
	s, fixture := setupChatTest(t)

	tokens, err := auth.NewTokenIssuer("live-chat-secret", time.Hour)
	if err != nil {
		t.Fatalf("new token issuer: %v", err)
	}

	liveTokens = nil
	liveTokensOnce = sync.Once{}
	resetLiveHub()
	InitLive(tokens)

	server := httptest.NewServer(http.HandlerFunc(HandleLive))
	t.Cleanup(func() {
		server.Close()
		liveTokens = nil
		liveTokensOnce = sync.Once{}
		resetLiveHub()
	})
	return s, fixture, tokens, server
}

// resetLiveHub clears registrations in place; handler goroutines from an
// earlier test may still hold the hub.
func resetLiveHub() {
	liveHub.mu.Lock()
	liveHub.conns = make(map[int64]*liveConn)
	liveHub.mu.Unlock()
}

func dialLive(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) liveReply {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply liveReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return reply
}

func authenticate(t *testing.T, conn *websocket.Conn, tokens *auth.TokenIssuer, user models.User) {
	t.Helper()
	token, err := tokens.Issue(user.ID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	writeFrame(t, conn, map[string]any{"type": "auth", "token": token})
	if reply := readFrame(t, conn); reply.Type != "auth" || !reply.Success {
		t.Fatalf("auth as %s: %+v", user.Username, reply)
	}
}

func waitOffline(t *testing.T, userID int64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for liveHub.online(userID) {
		if time.Now().After(deadline) {
			t.Fatalf("user %d still registered after disconnect", userID)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLiveChatDeliversToOnlineReceiver(t *testing.T) {
	s, fixture, tokens, server := setupLiveTest(t)

	player := dialLive(t, server)
	owner := dialLive(t, server)
	authenticate(t, player, tokens, fixture.Player)
	authenticate(t, owner, tokens, fixture.Owner)

	writeFrame(t, player, map[string]any{
		"type":       "message",
		"receiverId": fixture.Owner.ID,
		"content":    "Is court 1 free at 19:00?",
	})

	ack := readFrame(t, player)
	if ack.Type != "messageSent" || ack.MessageID == 0 {
		t.Fatalf("expected messageSent ack, got %+v", ack)
	}

	pushed := readFrame(t, owner)
	if pushed.Type != "message" {
		t.Fatalf("expected pushed message, got %+v", pushed)
	}
	var body liveMessage
	if err := json.Unmarshal(pushed.Message, &body); err != nil {
		t.Fatalf("decode pushed message: %v", err)
	}
	if body.ID != ack.MessageID || body.SenderID != fixture.Player.ID || body.Content != "Is court 1 free at 19:00?" {
		t.Fatalf("unexpected pushed message: %+v", body)
	}

	stored, err := s.Chats().ListConversation(context.Background(), fixture.Player.ID, fixture.Owner.ID)
	if err != nil {
		t.Fatalf("list conversation: %v", err)
	}
	if len(stored) != 1 || stored[0].ID != ack.MessageID || stored[0].Read {
		t.Fatalf("unexpected stored conversation: %+v", stored)
	}
}

func TestLiveChatStoresForOfflineReceiver(t *testing.T) {
	s, fixture, tokens, server := setupLiveTest(t)

	owner := dialLive(t, server)
	authenticate(t, owner, tokens, fixture.Owner)
	owner.Close()
	waitOffline(t, fixture.Owner.ID)

	player := dialLive(t, server)
	authenticate(t, player, tokens, fixture.Player)
	writeFrame(t, player, map[string]any{
		"type":       "message",
		"receiverId": fixture.Owner.ID,
		"content":    "Leaving this for later",
	})
	if ack := readFrame(t, player); ack.Type != "messageSent" {
		t.Fatalf("expected messageSent ack, got %+v", ack)
	}

	stored, err := s.Chats().ListConversation(context.Background(), fixture.Player.ID, fixture.Owner.ID)
	if err != nil {
		t.Fatalf("list conversation: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected one stored message, got %d", len(stored))
	}
}

func TestLiveChatRejects(t *testing.T) {
	s, fixture, tokens, server := setupLiveTest(t)

	conn := dialLive(t, server)

	writeFrame(t, conn, map[string]any{"type": "message", "receiverId": fixture.Owner.ID, "content": "hi"})
	if reply := readFrame(t, conn); reply.Type != "error" || reply.text() != "Authentication required" {
		t.Fatalf("unauthenticated send: %+v", reply)
	}

	writeFrame(t, conn, map[string]any{"type": "auth", "token": "not-a-token"})
	if reply := readFrame(t, conn); reply.Type != "auth" || reply.Success || reply.text() != "Invalid token" {
		t.Fatalf("bad token: %+v", reply)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write raw frame: %v", err)
	}
	if reply := readFrame(t, conn); reply.Type != "error" || reply.text() != "Invalid message format" {
		t.Fatalf("malformed frame: %+v", reply)
	}

	authenticate(t, conn, tokens, fixture.Player)

	cases := []struct {
		name  string
		frame map[string]any
		want  string
	}{
		{name: "missing content", frame: map[string]any{"type": "message", "receiverId": fixture.Owner.ID}, want: "Missing receiverId or content"},
		{name: "missing receiver", frame: map[string]any{"type": "message", "content": "hi"}, want: "Missing receiverId or content"},
		{name: "self", frame: map[string]any{"type": "message", "receiverId": fixture.Player.ID, "content": "hi"}, want: "You cannot message yourself"},
		{name: "unknown receiver", frame: map[string]any{"type": "message", "receiverId": 999, "content": "hi"}, want: "User not found"},
		{name: "unknown type", frame: map[string]any{"type": "typing"}, want: "Invalid message format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			writeFrame(t, conn, tc.frame)
			if reply := readFrame(t, conn); reply.Type != "error" || reply.text() != tc.want {
				t.Fatalf("got %+v want error %q", reply, tc.want)
			}
		})
	}

	stored, err := s.Chats().ListConversation(context.Background(), fixture.Player.ID, fixture.Owner.ID)
	if err != nil {
		t.Fatalf("list conversation: %v", err)
	}
	if len(stored) != 0 {
		t.Fatalf("rejected frames were stored: %+v", stored)
	}
}

func TestHandleSendPushesToLiveReceiver(t *testing.T) {
	_, fixture, tokens, server := setupLiveTest(t)

	owner := dialLive(t, server)
	authenticate(t, owner, tokens, fixture.Owner)

	if code := send(t, fixture.Player, fixture.Owner.ID, "Booked 18:00, see you"); code != http.StatusCreated {
		t.Fatalf("send: %d", code)
	}

	pushed := readFrame(t, owner)
	var body liveMessage
	if err := json.Unmarshal(pushed.Message, &body); err != nil {
		t.Fatalf("decode pushed message: %v", err)
	}
	if pushed.Type != "message" || body.Content != "Booked 18:00, see you" {
		t.Fatalf("unexpected push: %+v %+v", pushed, body)
	}
}
