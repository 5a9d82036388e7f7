// internal/api/chat/live.go
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/store"
)

// TokenParser resolves a bearer token to a user id.
type TokenParser interface {
	Parse(raw string) (int64, error)
}

var (
	liveTokens     TokenParser
	liveTokensOnce sync.Once
	liveHub        = newHub()
)

const (
	liveWriteWait   = 10 * time.Second
	livePongWait    = 60 * time.Second
	livePingPeriod  = livePongWait * 9 / 10
	liveMaxFrame    = 8 << 10
	liveMaxMessage  = 2000
	frameAuth       = "auth"
	frameMessage    = "message"
	frameSent       = "messageSent"
	frameError      = "error"
	errInvalidFrame = "Invalid message format"
)

var upgrader = websocket.Upgrader{
	HandshakeTimeout: liveWriteWait,
	ReadBufferSize:   1024,
	WriteBufferSize:  1024,
}

// InitLive enables GET /ws. It must run alongside InitHandlers at startup.
func InitLive(tokens TokenParser) {
	if tokens == nil {
		return
	}
	liveTokensOnce.Do(func() {
		liveTokens = tokens
	})
}

type inboundFrame struct {
	Type       string `json:"type"`
	Token      string `json:"token,omitempty"`
	ReceiverID int64  `json:"receiverId,omitempty"`
	Content    string `json:"content,omitempty"`
}

type authFrame struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type sentFrame struct {
	Type      string `json:"type"`
	MessageID int64  `json:"messageId"`
}

type liveMessage struct {
	ID       int64     `json:"id"`
	SenderID int64     `json:"senderId"`
	Content  string    `json:"content"`
	SentAt   time.Time `json:"sentAt"`
}

type messageFrame struct {
	Type    string      `json:"type"`
	Message liveMessage `json:"message"`
}

func newMessageFrame(m models.ChatMessage) messageFrame {
	return messageFrame{
		Type: frameMessage,
		Message: liveMessage{
			ID:       m.ID,
			SenderID: m.SenderID,
			Content:  m.Message,
			SentAt:   m.SentAt,
		},
	}
}

// liveConn serialises writes; gorilla allows one concurrent writer.
type liveConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *liveConn) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(liveWriteWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}

func (c *liveConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait))
}

// hub tracks one live connection per user. A newer connection replaces an
// older one for pushes.
type hub struct {
	mu    sync.Mutex
	conns map[int64]*liveConn
}

func newHub() *hub {
	return &hub{conns: make(map[int64]*liveConn)}
}

func (h *hub) register(userID int64, c *liveConn) {
	h.mu.Lock()
	h.conns[userID] = c
	h.mu.Unlock()
}

func (h *hub) unregister(userID int64, c *liveConn) {
	h.mu.Lock()
	if h.conns[userID] == c {
		delete(h.conns, userID)
	}
	h.mu.Unlock()
}

func (h *hub) online(userID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.conns[userID]
	return ok
}

// push delivers a stored message to its receiver if they are connected.
func (h *hub) push(logger *zerolog.Logger, m models.ChatMessage) bool {
	h.mu.Lock()
	c, ok := h.conns[m.ReceiverID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	if err := c.send(newMessageFrame(m)); err != nil {
		logger.Debug().Err(err).Int64("receiver_id", m.ReceiverID).Msg("Live chat push failed")
		return false
	}
	return true
}

// GET /ws
//
// Live chat. The first frame must be {"type":"auth","token":...}; after that
// {"type":"message","receiverId":N,"content":...} stores the message, pushes
// it to the receiver when connected and acks the sender with messageSent.
func HandleLive(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore()
	tokens := liveTokens
	if s == nil || tokens == nil {
		logger.Error().Msg("Live chat not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logger.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer ws.Close()

	conn := &liveConn{ws: ws}
	var userID int64
	defer func() {
		if userID != 0 {
			liveHub.unregister(userID, conn)
			logger.Debug().Int64("user_id", userID).Msg("Live chat disconnected")
		}
	}()

	ws.SetReadLimit(liveMaxFrame)
	_ = ws.SetReadDeadline(time.Now().Add(livePongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(livePongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(livePingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug().Err(err).Int64("user_id", userID).Msg("Live chat read failed")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(livePongWait))

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			if conn.send(errorFrame{Type: frameError, Message: errInvalidFrame}) != nil {
				return
			}
			continue
		}

		var reply any
		switch frame.Type {
		case frameAuth:
			id, err := tokens.Parse(frame.Token)
			if err != nil {
				reply = authFrame{Type: frameAuth, Message: "Invalid token"}
				break
			}
			if userID != 0 && userID != id {
				liveHub.unregister(userID, conn)
			}
			userID = id
			liveHub.register(userID, conn)
			logger.Debug().Int64("user_id", userID).Msg("Live chat connected")
			reply = authFrame{Type: frameAuth, Success: true}
		case frameMessage:
			if userID == 0 {
				reply = errorFrame{Type: frameError, Message: "Authentication required"}
				break
			}
			reply = sendLive(r.Context(), s, userID, frame)
		default:
			reply = errorFrame{Type: frameError, Message: errInvalidFrame}
		}
		if err := conn.send(reply); err != nil {
			return
		}
	}
}

// sendLive stores one message and returns the frame to answer the sender with.
func sendLive(ctx context.Context, s store.Store, senderID int64, frame inboundFrame) any {
	logger := log.Ctx(ctx)

	text := strings.TrimSpace(frame.Content)
	if frame.ReceiverID <= 0 || text == "" {
		return errorFrame{Type: frameError, Message: "Missing receiverId or content"}
	}
	if len(text) > liveMaxMessage {
		return errorFrame{Type: frameError, Message: "message is too long"}
	}
	if frame.ReceiverID == senderID {
		return errorFrame{Type: frameError, Message: "You cannot message yourself"}
	}

	ctx, cancel := context.WithTimeout(ctx, chatQueryTimeout)
	defer cancel()

	if _, err := s.Users().GetByID(ctx, frame.ReceiverID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errorFrame{Type: frameError, Message: "User not found"}
		}
		logger.Error().Err(err).Int64("receiver_id", frame.ReceiverID).Msg("Failed to load chat receiver")
		return errorFrame{Type: frameError, Message: "Failed to send message"}
	}

	sent, err := s.Chats().Create(ctx, models.ChatMessage{
		SenderID:   senderID,
		ReceiverID: frame.ReceiverID,
		Message:    text,
	})
	if err != nil {
		logger.Error().Err(err).Int64("user_id", senderID).Int64("receiver_id", frame.ReceiverID).Msg("Failed to send message")
		return errorFrame{Type: frameError, Message: "Failed to send message"}
	}

	pushed := liveHub.push(logger, sent)
	logger.Info().Int64("message_id", sent.ID).Int64("user_id", senderID).Int64("receiver_id", sent.ReceiverID).Bool("pushed", pushed).Msg("Chat message sent")
	return sentFrame{Type: frameSent, MessageID: sent.ID}
}
