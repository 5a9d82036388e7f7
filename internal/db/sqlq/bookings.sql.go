package sqlq

import (
	"context"
)

const bookingColumns = `id, court_id, user_id, booking_date, start_time, end_time, status, total_price`

func scanBooking(row interface{ Scan(...interface{}) error }) (Booking, error) {
	var i Booking
	err := row.Scan(
		&i.ID,
		&i.CourtID,
		&i.UserID,
		&i.BookingDate,
		&i.StartTime,
		&i.EndTime,
		&i.Status,
		&i.TotalPrice,
	)
	return i, err
}

func (q *Queries) listBookings(ctx context.Context, query string, args ...interface{}) ([]Booking, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Booking
	for rows.Next() {
		i, err := scanBooking(rows)
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

const createBooking = `INSERT INTO bookings (court_id, user_id, booking_date, start_time, end_time, status, total_price)
VALUES (?, ?, ?, ?, ?, ?, ?)
RETURNING ` + bookingColumns

type CreateBookingParams struct {
	CourtID     int64  `json:"court_id"`
	UserID      int64  `json:"user_id"`
	BookingDate string `json:"booking_date"`
	StartTime   int64  `json:"start_time"`
	EndTime     int64  `json:"end_time"`
	Status      string `json:"status"`
	TotalPrice  int64  `json:"total_price"`
}

func (q *Queries) CreateBooking(ctx context.Context, arg CreateBookingParams) (Booking, error) {
	row := q.db.QueryRowContext(ctx, createBooking,
		arg.CourtID,
		arg.UserID,
		arg.BookingDate,
		arg.StartTime,
		arg.EndTime,
		arg.Status,
		arg.TotalPrice,
	)
	return scanBooking(row)
}

const getBookingByID = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`

func (q *Queries) GetBookingByID(ctx context.Context, id int64) (Booking, error) {
	return scanBooking(q.db.QueryRowContext(ctx, getBookingByID, id))
}

const listBookingsByUser = `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ? ORDER BY start_time DESC, id DESC`

func (q *Queries) ListBookingsByUser(ctx context.Context, userID int64) ([]Booking, error) {
	return q.listBookings(ctx, listBookingsByUser, userID)
}

const listBookingsByCourt = `SELECT ` + bookingColumns + ` FROM bookings WHERE court_id = ? ORDER BY start_time ASC, id ASC`

func (q *Queries) ListBookingsByCourt(ctx context.Context, courtID int64) ([]Booking, error) {
	return q.listBookings(ctx, listBookingsByCourt, courtID)
}

const listBookingsEndedByStatus = `SELECT ` + bookingColumns + ` FROM bookings
WHERE status = ? AND end_time <= ?
ORDER BY end_time ASC, id ASC`

type ListBookingsEndedByStatusParams struct {
	Status  string `json:"status"`
	EndTime int64  `json:"end_time"`
}

func (q *Queries) ListBookingsEndedByStatus(ctx context.Context, arg ListBookingsEndedByStatusParams) ([]Booking, error) {
	return q.listBookings(ctx, listBookingsEndedByStatus, arg.Status, arg.EndTime)
}

const updateBookingStatus = `UPDATE bookings SET status = ? WHERE id = ?
RETURNING ` + bookingColumns

type UpdateBookingStatusParams struct {
	Status string `json:"status"`
	ID     int64  `json:"id"`
}

func (q *Queries) UpdateBookingStatus(ctx context.Context, arg UpdateBookingStatusParams) (Booking, error) {
	return scanBooking(q.db.QueryRowContext(ctx, updateBookingStatus, arg.Status, arg.ID))
}
