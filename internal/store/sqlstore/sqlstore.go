// Package sqlstore backs the store interfaces with SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	appdb "github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/db/sqlq"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/store"
)

type Store struct {
	db   *appdb.DB
	q    *sqlq.Queries
	inTx bool
}

var _ store.Store = (*Store)(nil)

func New(database *appdb.DB) *Store {
	return &Store{db: database, q: database.Queries}
}

func (s *Store) Users() store.Users                   { return users{s.q} }
func (s *Store) Courts() store.Courts                 { return courts{s.q} }
func (s *Store) TimeSlots() store.TimeSlots           { return timeSlots{s.q} }
func (s *Store) Bookings() store.Bookings             { return bookings{s.q} }
func (s *Store) Reviews() store.Reviews               { return reviews{s.q} }
func (s *Store) Chats() store.Chats                   { return chats{s.q} }
func (s *Store) PlayerRequests() store.PlayerRequests { return playerRequests{s.q} }

func (s *Store) RunInTx(ctx context.Context, fn func(store.Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.RunInTx(ctx, func(txdb *appdb.DB) error {
		return fn(&Store{db: txdb, q: txdb.Queries, inTx: true})
	})
}

// translateErr maps driver errors onto the store sentinels.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%w: %v", store.ErrConflict, err)
		}
	}
	return err
}

func toMillis(t time.Time) int64 {
	return models.NormalizeTime(t).UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

type users struct{ q *sqlq.Queries }

func userFromRow(row sqlq.User) models.User {
	return models.User{
		ID:           row.ID,
		Username:     row.Username,
		PasswordHash: row.PasswordHash,
		Email:        row.Email,
		Name:         row.Name,
		Bio:          row.Bio,
		Location:     row.Location,
		SkillLevel:   row.SkillLevel,
		IsCourtOwner: row.IsCourtOwner,
		AvatarURL:    row.AvatarUrl,
		Phone:        row.Phone,
	}
}

func (r users) Create(ctx context.Context, user models.User) (models.User, error) {
	row, err := r.q.CreateUser(ctx, sqlq.CreateUserParams{
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		Email:        user.Email,
		Name:         user.Name,
		Bio:          user.Bio,
		Location:     user.Location,
		SkillLevel:   user.SkillLevel,
		IsCourtOwner: user.IsCourtOwner,
		AvatarUrl:    user.AvatarURL,
		Phone:        user.Phone,
	})
	if err != nil {
		return models.User{}, translateErr(err)
	}
	return userFromRow(row), nil
}

func (r users) GetByID(ctx context.Context, id int64) (models.User, error) {
	row, err := r.q.GetUserByID(ctx, id)
	if err != nil {
		return models.User{}, translateErr(err)
	}
	return userFromRow(row), nil
}

func (r users) GetByUsername(ctx context.Context, username string) (models.User, error) {
	row, err := r.q.GetUserByUsername(ctx, username)
	if err != nil {
		return models.User{}, translateErr(err)
	}
	return userFromRow(row), nil
}

func (r users) GetByEmail(ctx context.Context, email string) (models.User, error) {
	row, err := r.q.GetUserByEmail(ctx, email)
	if err != nil {
		return models.User{}, translateErr(err)
	}
	return userFromRow(row), nil
}

type courts struct{ q *sqlq.Queries }

func courtFromRow(row sqlq.Court) (models.Court, error) {
	court := models.Court{
		ID:           row.ID,
		Name:         row.Name,
		Description:  row.Description,
		Location:     row.Location,
		ImageURL:     row.ImageUrl,
		PricePerHour: row.PricePerHour,
		OwnerID:      row.OwnerID,
		RatingSum:    row.RatingSum,
		RatingCount:  row.RatingCount,
	}
	if row.Amenities != "" {
		if err := json.Unmarshal([]byte(row.Amenities), &court.Amenities); err != nil {
			return models.Court{}, fmt.Errorf("decode amenities for court %d: %w", row.ID, err)
		}
	}
	return court, nil
}

func courtsFromRows(rows []sqlq.Court) ([]models.Court, error) {
	out := make([]models.Court, 0, len(rows))
	for _, row := range rows {
		court, err := courtFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, court)
	}
	return out, nil
}

func encodeAmenities(amenities []string) (string, error) {
	if amenities == nil {
		amenities = []string{}
	}
	data, err := json.Marshal(amenities)
	if err != nil {
		return "", fmt.Errorf("encode amenities: %w", err)
	}
	return string(data), nil
}

func (r courts) Create(ctx context.Context, court models.Court) (models.Court, error) {
	amenities, err := encodeAmenities(court.Amenities)
	if err != nil {
		return models.Court{}, err
	}
	row, err := r.q.CreateCourt(ctx, sqlq.CreateCourtParams{
		Name:         court.Name,
		Description:  court.Description,
		Location:     court.Location,
		ImageUrl:     court.ImageURL,
		PricePerHour: court.PricePerHour,
		OwnerID:      court.OwnerID,
		Amenities:    amenities,
	})
	if err != nil {
		return models.Court{}, translateErr(err)
	}
	return courtFromRow(row)
}

func (r courts) GetByID(ctx context.Context, id int64) (models.Court, error) {
	row, err := r.q.GetCourtByID(ctx, id)
	if err != nil {
		return models.Court{}, translateErr(err)
	}
	return courtFromRow(row)
}

func (r courts) List(ctx context.Context, filter store.CourtFilter) ([]models.Court, error) {
	var (
		rows []sqlq.Court
		err  error
	)
	if location := strings.TrimSpace(filter.Location); location != "" {
		rows, err = r.q.SearchCourtsByLocation(ctx, location)
	} else {
		rows, err = r.q.ListCourts(ctx)
	}
	if err != nil {
		return nil, translateErr(err)
	}
	return courtsFromRows(rows)
}

func (r courts) ListByOwner(ctx context.Context, ownerID int64) ([]models.Court, error) {
	rows, err := r.q.ListCourtsByOwner(ctx, ownerID)
	if err != nil {
		return nil, translateErr(err)
	}
	return courtsFromRows(rows)
}

func (r courts) Update(ctx context.Context, court models.Court) (models.Court, error) {
	amenities, err := encodeAmenities(court.Amenities)
	if err != nil {
		return models.Court{}, err
	}
	row, err := r.q.UpdateCourt(ctx, sqlq.UpdateCourtParams{
		Name:         court.Name,
		Description:  court.Description,
		Location:     court.Location,
		ImageUrl:     court.ImageURL,
		PricePerHour: court.PricePerHour,
		Amenities:    amenities,
		ID:           court.ID,
	})
	if err != nil {
		return models.Court{}, translateErr(err)
	}
	return courtFromRow(row)
}

func (r courts) Delete(ctx context.Context, id int64) error {
	affected, err := r.q.DeleteCourt(ctx, id)
	if err != nil {
		return translateErr(err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r courts) AddRating(ctx context.Context, courtID, rating int64) error {
	affected, err := r.q.AddCourtRating(ctx, sqlq.AddCourtRatingParams{Rating: rating, ID: courtID})
	if err != nil {
		return translateErr(err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

type timeSlots struct{ q *sqlq.Queries }

func timeSlotFromRow(row sqlq.TimeSlot) models.TimeSlot {
	return models.TimeSlot{
		ID:        row.ID,
		CourtID:   row.CourtID,
		Date:      row.SlotDate,
		StartTime: fromMillis(row.StartTime),
		EndTime:   fromMillis(row.EndTime),
		IsBooked:  row.IsBooked,
	}
}

func (r timeSlots) Create(ctx context.Context, slot models.TimeSlot) (models.TimeSlot, error) {
	row, err := r.q.CreateTimeSlot(ctx, sqlq.CreateTimeSlotParams{
		CourtID:   slot.CourtID,
		SlotDate:  slot.Date,
		StartTime: toMillis(slot.StartTime),
		EndTime:   toMillis(slot.EndTime),
		IsBooked:  slot.IsBooked,
	})
	if err != nil {
		return models.TimeSlot{}, translateErr(err)
	}
	return timeSlotFromRow(row), nil
}

func (r timeSlots) ListByCourtAndDate(ctx context.Context, courtID int64, date string) ([]models.TimeSlot, error) {
	rows, err := r.q.ListTimeSlotsByCourtAndDate(ctx, sqlq.ListTimeSlotsByCourtAndDateParams{
		CourtID:  courtID,
		SlotDate: date,
	})
	if err != nil {
		return nil, translateErr(err)
	}
	out := make([]models.TimeSlot, 0, len(rows))
	for _, row := range rows {
		out = append(out, timeSlotFromRow(row))
	}
	return out, nil
}

func (r timeSlots) SetBooked(ctx context.Context, id int64, booked bool) (models.TimeSlot, error) {
	row, err := r.q.SetTimeSlotBooked(ctx, sqlq.SetTimeSlotBookedParams{IsBooked: booked, ID: id})
	if err != nil {
		return models.TimeSlot{}, translateErr(err)
	}
	return timeSlotFromRow(row), nil
}

func (r timeSlots) Claim(ctx context.Context, id int64) (bool, error) {
	affected, err := r.q.ClaimTimeSlot(ctx, id)
	if err != nil {
		return false, translateErr(err)
	}
	return affected == 1, nil
}

type bookings struct{ q *sqlq.Queries }

func bookingFromRow(row sqlq.Booking) models.Booking {
	return models.Booking{
		ID:         row.ID,
		CourtID:    row.CourtID,
		UserID:     row.UserID,
		Date:       row.BookingDate,
		StartTime:  fromMillis(row.StartTime),
		EndTime:    fromMillis(row.EndTime),
		Status:     models.BookingStatus(row.Status),
		TotalPrice: row.TotalPrice,
	}
}

func bookingsFromRows(rows []sqlq.Booking) []models.Booking {
	out := make([]models.Booking, 0, len(rows))
	for _, row := range rows {
		out = append(out, bookingFromRow(row))
	}
	return out
}

func (r bookings) Create(ctx context.Context, booking models.Booking) (models.Booking, error) {
	row, err := r.q.CreateBooking(ctx, sqlq.CreateBookingParams{
		CourtID:     booking.CourtID,
		UserID:      booking.UserID,
		BookingDate: booking.Date,
		StartTime:   toMillis(booking.StartTime),
		EndTime:     toMillis(booking.EndTime),
		Status:      string(booking.Status),
		TotalPrice:  booking.TotalPrice,
	})
	if err != nil {
		return models.Booking{}, translateErr(err)
	}
	return bookingFromRow(row), nil
}

func (r bookings) GetByID(ctx context.Context, id int64) (models.Booking, error) {
	row, err := r.q.GetBookingByID(ctx, id)
	if err != nil {
		return models.Booking{}, translateErr(err)
	}
	return bookingFromRow(row), nil
}

func (r bookings) ListByUser(ctx context.Context, userID int64) ([]models.Booking, error) {
	rows, err := r.q.ListBookingsByUser(ctx, userID)
	if err != nil {
		return nil, translateErr(err)
	}
	return bookingsFromRows(rows), nil
}

func (r bookings) ListByCourt(ctx context.Context, courtID int64) ([]models.Booking, error) {
	rows, err := r.q.ListBookingsByCourt(ctx, courtID)
	if err != nil {
		return nil, translateErr(err)
	}
	return bookingsFromRows(rows), nil
}

func (r bookings) ListEnded(ctx context.Context, status models.BookingStatus, t time.Time) ([]models.Booking, error) {
	rows, err := r.q.ListBookingsEndedByStatus(ctx, sqlq.ListBookingsEndedByStatusParams{
		Status:  string(status),
		EndTime: toMillis(t),
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return bookingsFromRows(rows), nil
}

func (r bookings) UpdateStatus(ctx context.Context, id int64, status models.BookingStatus) (models.Booking, error) {
	row, err := r.q.UpdateBookingStatus(ctx, sqlq.UpdateBookingStatusParams{Status: string(status), ID: id})
	if err != nil {
		return models.Booking{}, translateErr(err)
	}
	return bookingFromRow(row), nil
}

type reviews struct{ q *sqlq.Queries }

func reviewFromRow(row sqlq.Review) models.Review {
	return models.Review{
		ID:        row.ID,
		CourtID:   row.CourtID,
		UserID:    row.UserID,
		Rating:    row.Rating,
		Comment:   row.Comment,
		CreatedAt: fromMillis(row.CreatedAt),
	}
}

func (r reviews) Create(ctx context.Context, review models.Review) (models.Review, error) {
	createdAt := review.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	row, err := r.q.CreateReview(ctx, sqlq.CreateReviewParams{
		CourtID:   review.CourtID,
		UserID:    review.UserID,
		Rating:    review.Rating,
		Comment:   review.Comment,
		CreatedAt: toMillis(createdAt),
	})
	if err != nil {
		return models.Review{}, translateErr(err)
	}
	return reviewFromRow(row), nil
}

func (r reviews) ListByCourt(ctx context.Context, courtID int64) ([]models.Review, error) {
	rows, err := r.q.ListReviewsByCourt(ctx, courtID)
	if err != nil {
		return nil, translateErr(err)
	}
	out := make([]models.Review, 0, len(rows))
	for _, row := range rows {
		out = append(out, reviewFromRow(row))
	}
	return out, nil
}

func (r reviews) GetByUserAndCourt(ctx context.Context, userID, courtID int64) (models.Review, error) {
	row, err := r.q.GetReviewByUserAndCourt(ctx, sqlq.GetReviewByUserAndCourtParams{UserID: userID, CourtID: courtID})
	if err != nil {
		return models.Review{}, translateErr(err)
	}
	return reviewFromRow(row), nil
}

type chats struct{ q *sqlq.Queries }

func chatFromRow(row sqlq.Chat) models.ChatMessage {
	return models.ChatMessage{
		ID:         row.ID,
		SenderID:   row.SenderID,
		ReceiverID: row.ReceiverID,
		Message:    row.Message,
		SentAt:     fromMillis(row.SentAt),
		Read:       row.IsRead,
	}
}

func (r chats) Create(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	sentAt := msg.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	row, err := r.q.CreateChat(ctx, sqlq.CreateChatParams{
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Message:    msg.Message,
		SentAt:     toMillis(sentAt),
	})
	if err != nil {
		return models.ChatMessage{}, translateErr(err)
	}
	return chatFromRow(row), nil
}

func (r chats) ListConversation(ctx context.Context, a, b int64) ([]models.ChatMessage, error) {
	rows, err := r.q.ListConversation(ctx, sqlq.ListConversationParams{UserA: a, UserB: b})
	if err != nil {
		return nil, translateErr(err)
	}
	out := make([]models.ChatMessage, 0, len(rows))
	for _, row := range rows {
		out = append(out, chatFromRow(row))
	}
	return out, nil
}

func (r chats) MarkRead(ctx context.Context, senderID, receiverID int64) (int64, error) {
	affected, err := r.q.MarkChatsRead(ctx, sqlq.MarkChatsReadParams{SenderID: senderID, ReceiverID: receiverID})
	if err != nil {
		return 0, translateErr(err)
	}
	return affected, nil
}

type playerRequests struct{ q *sqlq.Queries }

func playerRequestFromRow(row sqlq.PlayerRequest) models.PlayerRequest {
	return models.PlayerRequest{
		ID:        row.ID,
		UserID:    row.UserID,
		Location:  row.Location,
		Date:      row.RequestDate,
		TimeRange: row.TimeRange,
		Message:   row.Message,
		Status:    models.PlayerRequestStatus(row.Status),
	}
}

func playerRequestsFromRows(rows []sqlq.PlayerRequest) []models.PlayerRequest {
	out := make([]models.PlayerRequest, 0, len(rows))
	for _, row := range rows {
		out = append(out, playerRequestFromRow(row))
	}
	return out
}

func (r playerRequests) Create(ctx context.Context, req models.PlayerRequest) (models.PlayerRequest, error) {
	status := req.Status
	if status == "" {
		status = models.PlayerRequestActive
	}
	row, err := r.q.CreatePlayerRequest(ctx, sqlq.CreatePlayerRequestParams{
		UserID:      req.UserID,
		Location:    req.Location,
		RequestDate: req.Date,
		TimeRange:   req.TimeRange,
		Message:     req.Message,
		Status:      string(status),
	})
	if err != nil {
		return models.PlayerRequest{}, translateErr(err)
	}
	return playerRequestFromRow(row), nil
}

func (r playerRequests) GetByID(ctx context.Context, id int64) (models.PlayerRequest, error) {
	row, err := r.q.GetPlayerRequestByID(ctx, id)
	if err != nil {
		return models.PlayerRequest{}, translateErr(err)
	}
	return playerRequestFromRow(row), nil
}

func (r playerRequests) ListActive(ctx context.Context) ([]models.PlayerRequest, error) {
	rows, err := r.q.ListActivePlayerRequests(ctx)
	if err != nil {
		return nil, translateErr(err)
	}
	return playerRequestsFromRows(rows), nil
}

func (r playerRequests) ListByUser(ctx context.Context, userID int64) ([]models.PlayerRequest, error) {
	rows, err := r.q.ListPlayerRequestsByUser(ctx, userID)
	if err != nil {
		return nil, translateErr(err)
	}
	return playerRequestsFromRows(rows), nil
}

func (r playerRequests) UpdateStatus(ctx context.Context, id int64, status models.PlayerRequestStatus) (models.PlayerRequest, error) {
	row, err := r.q.UpdatePlayerRequestStatus(ctx, sqlq.UpdatePlayerRequestStatusParams{Status: string(status), ID: id})
	if err != nil {
		return models.PlayerRequest{}, translateErr(err)
	}
	return playerRequestFromRow(row), nil
}

func (r playerRequests) ExpireBefore(ctx context.Context, day string) (int64, error) {
	affected, err := r.q.ExpirePlayerRequestsBefore(ctx, day)
	if err != nil {
		return 0, translateErr(err)
	}
	return affected, nil
}
