package sqlq

import (
	"context"
)

const chatColumns = `id, sender_id, receiver_id, message, sent_at, is_read`

func scanChat(row interface{ Scan(...interface{}) error }) (Chat, error) {
	var i Chat
	err := row.Scan(
		&i.ID,
		&i.SenderID,
		&i.ReceiverID,
		&i.Message,
		&i.SentAt,
		&i.IsRead,
	)
	return i, err
}

const createChat = `INSERT INTO chats (sender_id, receiver_id, message, sent_at, is_read)
VALUES (?, ?, ?, ?, 0)
RETURNING ` + chatColumns

type CreateChatParams struct {
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	Message    string `json:"message"`
	SentAt     int64  `json:"sent_at"`
}

func (q *Queries) CreateChat(ctx context.Context, arg CreateChatParams) (Chat, error) {
	row := q.db.QueryRowContext(ctx, createChat,
		arg.SenderID,
		arg.ReceiverID,
		arg.Message,
		arg.SentAt,
	)
	return scanChat(row)
}

const listConversation = `SELECT ` + chatColumns + ` FROM chats
WHERE (sender_id = ?1 AND receiver_id = ?2) OR (sender_id = ?2 AND receiver_id = ?1)
ORDER BY sent_at ASC, id ASC`

type ListConversationParams struct {
	UserA int64 `json:"user_a"`
	UserB int64 `json:"user_b"`
}

func (q *Queries) ListConversation(ctx context.Context, arg ListConversationParams) ([]Chat, error) {
	rows, err := q.db.QueryContext(ctx, listConversation, arg.UserA, arg.UserB)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Chat
	for rows.Next() {
		i, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markChatsRead = `UPDATE chats SET is_read = 1
WHERE sender_id = ? AND receiver_id = ? AND is_read = 0`

type MarkChatsReadParams struct {
	SenderID   int64 `json:"sender_id"`
	ReceiverID int64 `json:"receiver_id"`
}

func (q *Queries) MarkChatsRead(ctx context.Context, arg MarkChatsReadParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, markChatsRead, arg.SenderID, arg.ReceiverID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
