// internal/models/models.go
package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// DayLayout is the wire and storage format of a calendar day.
const DayLayout = "2006-01-02"

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// Valid reports whether s is one of the four known booking statuses.
func (s BookingStatus) Valid() bool {
	switch s {
	case BookingPending, BookingConfirmed, BookingCancelled, BookingCompleted:
		return true
	}
	return false
}

// Active reports whether a booking in status s holds its time slot.
func (s BookingStatus) Active() bool {
	return s == BookingPending || s == BookingConfirmed
}

type PlayerRequestStatus string

const (
	PlayerRequestActive    PlayerRequestStatus = "active"
	PlayerRequestFulfilled PlayerRequestStatus = "fulfilled"
	PlayerRequestExpired   PlayerRequestStatus = "expired"
)

func (s PlayerRequestStatus) Valid() bool {
	switch s {
	case PlayerRequestActive, PlayerRequestFulfilled, PlayerRequestExpired:
		return true
	}
	return false
}

type User struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Bio          string `json:"bio,omitempty"`
	Location     string `json:"location,omitempty"`
	SkillLevel   string `json:"skillLevel,omitempty"`
	IsCourtOwner bool   `json:"isCourtOwner"`
	AvatarURL    string `json:"avatarUrl,omitempty"`
	Phone        string `json:"phone,omitempty"`
}

type Court struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Location     string   `json:"location"`
	ImageURL     string   `json:"imageUrl"`
	PricePerHour int64    `json:"pricePerHour"`
	OwnerID      int64    `json:"ownerId"`
	Amenities    []string `json:"amenities"`
	RatingSum    int64    `json:"-"`
	RatingCount  int64    `json:"ratingCount"`
}

// AverageRating is the exact mean of all review ratings, or 0 without reviews.
func (c Court) AverageRating() float64 {
	if c.RatingCount == 0 {
		return 0
	}
	return float64(c.RatingSum) / float64(c.RatingCount)
}

// MarshalJSON adds the display rating, rounded to one decimal place.
func (c Court) MarshalJSON() ([]byte, error) {
	type courtAlias Court
	amenities := c.Amenities
	if amenities == nil {
		amenities = []string{}
	}
	alias := courtAlias(c)
	alias.Amenities = amenities
	return json.Marshal(struct {
		courtAlias
		Rating float64 `json:"rating"`
	}{
		courtAlias: alias,
		Rating:     math.Round(c.AverageRating()*10) / 10,
	})
}

type TimeSlot struct {
	ID        int64     `json:"id"`
	CourtID   int64     `json:"courtId"`
	Date      string    `json:"date"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	IsBooked  bool      `json:"isBooked"`
}

// Matches reports a millisecond-exact match on both interval bounds.
func (s TimeSlot) Matches(start, end time.Time) bool {
	return NormalizeTime(s.StartTime).Equal(NormalizeTime(start)) &&
		NormalizeTime(s.EndTime).Equal(NormalizeTime(end))
}

type Booking struct {
	ID         int64         `json:"id"`
	CourtID    int64         `json:"courtId"`
	UserID     int64         `json:"userId"`
	Date       string        `json:"date"`
	StartTime  time.Time     `json:"startTime"`
	EndTime    time.Time     `json:"endTime"`
	Status     BookingStatus `json:"status"`
	TotalPrice int64         `json:"totalPrice"`
}

type Review struct {
	ID        int64     `json:"id"`
	CourtID   int64     `json:"courtId"`
	UserID    int64     `json:"userId"`
	Rating    int64     `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type ChatMessage struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"senderId"`
	ReceiverID int64     `json:"receiverId"`
	Message    string    `json:"message"`
	SentAt     time.Time `json:"sentAt"`
	Read       bool      `json:"read"`
}

type PlayerRequest struct {
	ID        int64               `json:"id"`
	UserID    int64               `json:"userId"`
	Location  string              `json:"location"`
	Date      string              `json:"date"`
	TimeRange string              `json:"timeRange"`
	Message   string              `json:"message,omitempty"`
	Status    PlayerRequestStatus `json:"status"`
}

// NormalizeTime converts t to UTC at millisecond precision, the resolution
// at which slot bounds are compared and stored.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// DayOf returns the UTC calendar day of t.
func DayOf(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// ParseDay accepts either YYYY-MM-DD or an RFC 3339 timestamp and returns the
// UTC calendar day it names.
func ParseDay(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("date is required")
	}
	if parsed, err := time.Parse(DayLayout, value); err == nil {
		return parsed.Format(DayLayout), nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return DayOf(parsed), nil
	}
	return "", fmt.Errorf("date must be YYYY-MM-DD or RFC 3339")
}
