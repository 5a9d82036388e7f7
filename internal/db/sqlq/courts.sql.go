package sqlq

import (
	"context"
)

const courtColumns = `id, name, description, location, image_url, price_per_hour, owner_id, amenities, rating_sum, rating_count`

func scanCourt(row interface{ Scan(...interface{}) error }) (Court, error) {
	var i Court
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Description,
		&i.Location,
		&i.ImageUrl,
		&i.PricePerHour,
		&i.OwnerID,
		&i.Amenities,
		&i.RatingSum,
		&i.RatingCount,
	)
	return i, err
}

func (q *Queries) listCourts(ctx context.Context, query string, args ...interface{}) ([]Court, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Court
	for rows.Next() {
		i, err := scanCourt(rows)
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

const createCourt = `INSERT INTO courts (name, description, location, image_url, price_per_hour, owner_id, amenities)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING ` + courtColumns

type CreateCourtParams struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Location     string `json:"location"`
	ImageUrl     string `json:"image_url"`
	PricePerHour int64  `json:"price_per_hour"`
	OwnerID      int64  `json:"owner_id"`
	Amenities    string `json:"amenities"`
}

func (q *Queries) CreateCourt(ctx context.Context, arg CreateCourtParams) (Court, error) {
	row := q.db.QueryRowContext(ctx, createCourt,
		arg.Name,
		arg.Description,
		arg.Location,
		arg.ImageUrl,
		arg.PricePerHour,
		arg.OwnerID,
		arg.Amenities,
	)
	return scanCourt(row)
}

const getCourtByID = `SELECT ` + courtColumns + ` FROM courts WHERE id = ?`

func (q *Queries) GetCourtByID(ctx context.Context, id int64) (Court, error) {
	return scanCourt(q.db.QueryRowContext(ctx, getCourtByID, id))
}

const listCourts = `SELECT ` + courtColumns + ` FROM courts ORDER BY id`

func (q *Queries) ListCourts(ctx context.Context) ([]Court, error) {
	return q.listCourts(ctx, listCourts)
}

const searchCourtsByLocation = `SELECT ` + courtColumns + ` FROM courts
WHERE instr(lower(location), lower(?)) > 0
ORDER BY id`

func (q *Queries) SearchCourtsByLocation(ctx context.Context, location string) ([]Court, error) {
	return q.listCourts(ctx, searchCourtsByLocation, location)
}

const listCourtsByOwner = `SELECT ` + courtColumns + ` FROM courts WHERE owner_id = ? ORDER BY id`

func (q *Queries) ListCourtsByOwner(ctx context.Context, ownerID int64) ([]Court, error) {
	return q.listCourts(ctx, listCourtsByOwner, ownerID)
}

const updateCourt = `UPDATE courts
SET name = ?, description = ?, location = ?, image_url = ?, price_per_hour = ?, amenities = ?
WHERE id = ?
RETURNING ` + courtColumns

type UpdateCourtParams struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Location     string `json:"location"`
	ImageUrl     string `json:"image_url"`
	PricePerHour int64  `json:"price_per_hour"`
	Amenities    string `json:"amenities"`
	ID           int64  `json:"id"`
}

func (q *Queries) UpdateCourt(ctx context.Context, arg UpdateCourtParams) (Court, error) {
	row := q.db.QueryRowContext(ctx, updateCourt,
		arg.Name,
		arg.Description,
		arg.Location,
		arg.ImageUrl,
		arg.PricePerHour,
		arg.Amenities,
		arg.ID,
	)
	return scanCourt(row)
}

const deleteCourt = `DELETE FROM courts WHERE id = ?`

func (q *Queries) DeleteCourt(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteCourt, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const addCourtRating = `UPDATE courts
SET rating_sum = rating_sum + ?, rating_count = rating_count + 1
WHERE id = ?`

type AddCourtRatingParams struct {
	Rating int64 `json:"rating"`
	ID     int64 `json:"id"`
}

func (q *Queries) AddCourtRating(ctx context.Context, arg AddCourtRatingParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, addCourtRating, arg.Rating, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
