// internal/api/chat/handlers.go
package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/apiutil"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/store"
)

var (
	chatStore     store.Store
	chatStoreOnce sync.Once
)

const chatQueryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(s store.Store) {
	if s == nil {
		return
	}
	chatStoreOnce.Do(func() {
		chatStore = s
	})
}

func loadStore() store.Store {
	return chatStore
}

type sendMessageRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
}

// GET /api/chat/{receiverId}
//
// Returns the conversation between the caller and receiverId, oldest first,
// and marks the messages the caller received in it as read.
func HandleConversation(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore()
	if s == nil {
		logger.Error().Msg("Chat store not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	otherID, err := apiutil.PathID(r, "receiverId")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), chatQueryTimeout)
	defer cancel()

	messages, err := s.Chats().ListConversation(ctx, user.ID, otherID)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Int64("receiver_id", otherID).Msg("Failed to load conversation")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}
	if messages == nil {
		messages = []models.ChatMessage{}
	}

	// Listed before marking, so this response still shows them unread.
	marked, err := s.Chats().MarkRead(ctx, otherID, user.ID)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Int64("receiver_id", otherID).Msg("Failed to mark messages read")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}
	if marked > 0 {
		logger.Debug().Int64("user_id", user.ID).Int64("sender_id", otherID).Int64("marked", marked).Msg("Chat messages marked read")
	}

	apiutil.WriteOK(w, r, http.StatusOK, messages)
}

// POST /api/chat/{receiverId}
//
// Stores the message and pushes it to the receiver if they hold a live
// connection on /ws.
func HandleSend(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore()
	if s == nil {
		logger.Error().Msg("Chat store not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	receiverID, err := apiutil.PathID(r, "receiverId")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if receiverID == user.ID {
		apiutil.WriteError(w, http.StatusBadRequest, "You cannot message yourself")
		return
	}

	var req sendMessageRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	text := strings.TrimSpace(req.Message)
	if text == "" {
		apiutil.WriteError(w, http.StatusBadRequest, "message is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), chatQueryTimeout)
	defer cancel()

	if _, err := s.Users().GetByID(ctx, receiverID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			apiutil.WriteError(w, http.StatusNotFound, "User not found")
			return
		}
		logger.Error().Err(err).Int64("receiver_id", receiverID).Msg("Failed to load chat receiver")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to send message")
		return
	}

	sent, err := s.Chats().Create(ctx, models.ChatMessage{
		SenderID:   user.ID,
		ReceiverID: receiverID,
		Message:    text,
	})
	if err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Int64("receiver_id", receiverID).Msg("Failed to send message")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to send message")
		return
	}

	pushed := liveHub.push(logger, sent)
	logger.Info().Int64("message_id", sent.ID).Int64("user_id", user.ID).Int64("receiver_id", receiverID).Bool("pushed", pushed).Msg("Chat message sent")
	apiutil.WriteOK(w, r, http.StatusCreated, sent)
}
