package sqlq

import (
	"context"
)

const reviewColumns = `id, court_id, user_id, rating, comment, created_at`

func scanReview(row interface{ Scan(...interface{}) error }) (Review, error) {
	var i Review
	err := row.Scan(
		&i.ID,
		&i.CourtID,
		&i.UserID,
		&i.Rating,
		&i.Comment,
		&i.CreatedAt,
	)
	return i, err
}

const createReview = `INSERT INTO reviews (court_id, user_id, rating, comment, created_at)
VALUES (?, ?, ?, ?, ?)
RETURNING ` + reviewColumns

type CreateReviewParams struct {
	CourtID   int64  `json:"court_id"`
	UserID    int64  `json:"user_id"`
	Rating    int64  `json:"rating"`
	Comment   string `json:"comment"`
	CreatedAt int64  `json:"created_at"`
}

func (q *Queries) CreateReview(ctx context.Context, arg CreateReviewParams) (Review, error) {
	row := q.db.QueryRowContext(ctx, createReview,
		arg.CourtID,
		arg.UserID,
		arg.Rating,
		arg.Comment,
		arg.CreatedAt,
	)
	return scanReview(row)
}

const getReviewByUserAndCourt = `SELECT ` + reviewColumns + ` FROM reviews WHERE user_id = ? AND court_id = ?`

type GetReviewByUserAndCourtParams struct {
	UserID  int64 `json:"user_id"`
	CourtID int64 `json:"court_id"`
}

func (q *Queries) GetReviewByUserAndCourt(ctx context.Context, arg GetReviewByUserAndCourtParams) (Review, error) {
	return scanReview(q.db.QueryRowContext(ctx, getReviewByUserAndCourt, arg.UserID, arg.CourtID))
}

const listReviewsByCourt = `SELECT ` + reviewColumns + ` FROM reviews WHERE court_id = ? ORDER BY created_at DESC, id DESC`

func (q *Queries) ListReviewsByCourt(ctx context.Context, courtID int64) ([]Review, error) {
	rows, err := q.db.QueryContext(ctx, listReviewsByCourt, courtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Review
	for rows.Next() {
		i, err := scanReview(rows)
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
