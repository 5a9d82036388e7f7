package sqlq

import (
	"context"
)

const timeSlotColumns = `id, court_id, slot_date, start_time, end_time, is_booked`

func scanTimeSlot(row interface{ Scan(...interface{}) error }) (TimeSlot, error) {
	var i TimeSlot
	err := row.Scan(
		&i.ID,
		&i.CourtID,
		&i.SlotDate,
		&i.StartTime,
		&i.EndTime,
		&i.IsBooked,
	)
	return i, err
}

const createTimeSlot = `INSERT INTO time_slots (court_id, slot_date, start_time, end_time, is_booked)
VALUES (?, ?, ?, ?, ?)
RETURNING ` + timeSlotColumns

type CreateTimeSlotParams struct {
	CourtID   int64  `json:"court_id"`
	SlotDate  string `json:"slot_date"`
	StartTime int64  `json:"start_time"`
	EndTime   int64  `json:"end_time"`
	IsBooked  bool   `json:"is_booked"`
}

func (q *Queries) CreateTimeSlot(ctx context.Context, arg CreateTimeSlotParams) (TimeSlot, error) {
	row := q.db.QueryRowContext(ctx, createTimeSlot,
		arg.CourtID,
		arg.SlotDate,
		arg.StartTime,
		arg.EndTime,
		arg.IsBooked,
	)
	return scanTimeSlot(row)
}

const listTimeSlotsByCourtAndDate = `SELECT ` + timeSlotColumns + ` FROM time_slots
WHERE court_id = ? AND slot_date = ?
ORDER BY start_time ASC, id ASC`

type ListTimeSlotsByCourtAndDateParams struct {
	CourtID  int64  `json:"court_id"`
	SlotDate string `json:"slot_date"`
}

func (q *Queries) ListTimeSlotsByCourtAndDate(ctx context.Context, arg ListTimeSlotsByCourtAndDateParams) ([]TimeSlot, error) {
	rows, err := q.db.QueryContext(ctx, listTimeSlotsByCourtAndDate, arg.CourtID, arg.SlotDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TimeSlot
	for rows.Next() {
		i, err := scanTimeSlot(rows)
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

const setTimeSlotBooked = `UPDATE time_slots SET is_booked = ? WHERE id = ?
RETURNING ` + timeSlotColumns

type SetTimeSlotBookedParams struct {
	IsBooked bool  `json:"is_booked"`
	ID       int64 `json:"id"`
}

func (q *Queries) SetTimeSlotBooked(ctx context.Context, arg SetTimeSlotBookedParams) (TimeSlot, error) {
	return scanTimeSlot(q.db.QueryRowContext(ctx, setTimeSlotBooked, arg.IsBooked, arg.ID))
}

const claimTimeSlot = `UPDATE time_slots SET is_booked = 1 WHERE id = ? AND is_booked = 0`

func (q *Queries) ClaimTimeSlot(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, claimTimeSlot, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
