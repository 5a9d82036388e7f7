package sqlq

import (
	"context"
)

const playerRequestColumns = `id, user_id, location, request_date, time_range, message, status`

func scanPlayerRequest(row interface{ Scan(...interface{}) error }) (PlayerRequest, error) {
	var i PlayerRequest
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.Location,
		&i.RequestDate,
		&i.TimeRange,
		&i.Message,
		&i.Status,
	)
	return i, err
}

func (q *Queries) listPlayerRequests(ctx context.Context, query string, args ...interface{}) ([]PlayerRequest, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PlayerRequest
	for rows.Next() {
		i, err := scanPlayerRequest(rows)
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

const createPlayerRequest = `INSERT INTO player_requests (user_id, location, request_date, time_range, message, status)
VALUES (?, ?, ?, ?, ?, ?)
RETURNING ` + playerRequestColumns

type CreatePlayerRequestParams struct {
	UserID      int64  `json:"user_id"`
	Location    string `json:"location"`
	RequestDate string `json:"request_date"`
	TimeRange   string `json:"time_range"`
	Message     string `json:"message"`
	Status      string `json:"status"`
}

func (q *Queries) CreatePlayerRequest(ctx context.Context, arg CreatePlayerRequestParams) (PlayerRequest, error) {
	row := q.db.QueryRowContext(ctx, createPlayerRequest,
		arg.UserID,
		arg.Location,
		arg.RequestDate,
		arg.TimeRange,
		arg.Message,
		arg.Status,
	)
	return scanPlayerRequest(row)
}

const getPlayerRequestByID = `SELECT ` + playerRequestColumns + ` FROM player_requests WHERE id = ?`

func (q *Queries) GetPlayerRequestByID(ctx context.Context, id int64) (PlayerRequest, error) {
	return scanPlayerRequest(q.db.QueryRowContext(ctx, getPlayerRequestByID, id))
}

const listActivePlayerRequests = `SELECT ` + playerRequestColumns + ` FROM player_requests
WHERE status = 'active'
ORDER BY request_date ASC, id ASC`

func (q *Queries) ListActivePlayerRequests(ctx context.Context) ([]PlayerRequest, error) {
	return q.listPlayerRequests(ctx, listActivePlayerRequests)
}

const listPlayerRequestsByUser = `SELECT ` + playerRequestColumns + ` FROM player_requests WHERE user_id = ? ORDER BY id DESC`

func (q *Queries) ListPlayerRequestsByUser(ctx context.Context, userID int64) ([]PlayerRequest, error) {
	return q.listPlayerRequests(ctx, listPlayerRequestsByUser, userID)
}

const updatePlayerRequestStatus = `UPDATE player_requests SET status = ? WHERE id = ?
RETURNING ` + playerRequestColumns

type UpdatePlayerRequestStatusParams struct {
	Status string `json:"status"`
	ID     int64  `json:"id"`
}

func (q *Queries) UpdatePlayerRequestStatus(ctx context.Context, arg UpdatePlayerRequestStatusParams) (PlayerRequest, error) {
	return scanPlayerRequest(q.db.QueryRowContext(ctx, updatePlayerRequestStatus, arg.Status, arg.ID))
}

const expirePlayerRequestsBefore = `UPDATE player_requests SET status = 'expired'
WHERE status = 'active' AND request_date < ?`

func (q *Queries) ExpirePlayerRequestsBefore(ctx context.Context, requestDate string) (int64, error) {
	result, err := q.db.ExecContext(ctx, expirePlayerRequestsBefore, requestDate)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
