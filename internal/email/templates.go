package email

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/codr1/courtbook/internal/models"
)

type BookingEmail struct {
	Subject string
	Body    string
}

type BookingDetails struct {
	CourtName  string
	Location   string
	Date       string
	TimeRange  string
	TotalPrice string
	Status     string
	PlayerName string
}

var pricePrinter = message.NewPrinter(language.English)

// FormatPrice renders a whole-unit price with thousands separators.
func FormatPrice(amount int64) string {
	return pricePrinter.Sprintf("%d VND", amount)
}

func FormatDateTimeRange(start, end time.Time) (string, string) {
	date := start.Format("Monday, Jan 2, 2006")
	timeRange := fmt.Sprintf("%s - %s %s", start.Format("3:04 PM"), end.Format("3:04 PM"), start.Format("MST"))
	return date, timeRange
}

// DetailsFor describes b for an email. player may be nil.
func DetailsFor(b models.Booking, court models.Court, player *models.User) BookingDetails {
	date, timeRange := FormatDateTimeRange(b.StartTime.UTC(), b.EndTime.UTC())
	details := BookingDetails{
		CourtName:  court.Name,
		Location:   court.Location,
		Date:       date,
		TimeRange:  timeRange,
		TotalPrice: FormatPrice(b.TotalPrice),
		Status:     string(b.Status),
	}
	if player != nil {
		details.PlayerName = displayName(*player)
	}
	return details
}

func displayName(u models.User) string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	return u.Username
}

// BuildBookingRequested is sent to the player when their booking is created.
func BuildBookingRequested(details BookingDetails) BookingEmail {
	return buildBookingEmail(
		"Booking Request Received",
		"We received your booking request. The court owner will confirm it shortly.",
		details,
	)
}

// BuildOwnerBookingRequested is sent to the court owner for a new booking.
func BuildOwnerBookingRequested(details BookingDetails) BookingEmail {
	player := orTBD(details.PlayerName)
	return buildBookingEmail(
		"New Booking Request",
		fmt.Sprintf("%s requested a booking on your court. Confirm or cancel it from your dashboard.", player),
		details,
	)
}

// BuildStatusChanged is sent to the player when the booking status moves.
func BuildStatusChanged(details BookingDetails, previous models.BookingStatus) BookingEmail {
	status := strings.TrimSpace(details.Status)
	var intro string
	switch models.BookingStatus(status) {
	case models.BookingConfirmed:
		intro = "Your booking is confirmed."
	case models.BookingCancelled:
		intro = "Your booking has been cancelled."
	case models.BookingCompleted:
		intro = "Thanks for playing. Your booking is complete."
	default:
		intro = fmt.Sprintf("Your booking changed from %s to %s.", previous, status)
	}
	return buildBookingEmail(fmt.Sprintf("Booking %s", titleCase(status)), intro, details)
}

// BuildOwnerCancelled is sent to the court owner when a booking is cancelled.
func BuildOwnerCancelled(details BookingDetails) BookingEmail {
	return buildBookingEmail(
		"Booking Cancelled",
		"A booking on your court was cancelled and the time slot is open again.",
		details,
	)
}

func buildBookingEmail(subjectPrefix, intro string, details BookingDetails) BookingEmail {
	courtName := strings.TrimSpace(details.CourtName)
	subject := subjectPrefix
	if courtName != "" {
		subject = fmt.Sprintf("%s - %s", subjectPrefix, courtName)
	}

	lines := []string{
		intro,
		"",
		fmt.Sprintf("Court: %s", orTBD(courtName)),
		fmt.Sprintf("Location: %s", orTBD(details.Location)),
		fmt.Sprintf("Date: %s", orTBD(details.Date)),
		fmt.Sprintf("Time: %s", orTBD(details.TimeRange)),
		fmt.Sprintf("Total price: %s", orTBD(details.TotalPrice)),
	}
	if player := strings.TrimSpace(details.PlayerName); player != "" {
		lines = append(lines, fmt.Sprintf("Player: %s", player))
	}

	return BookingEmail{
		Subject: subject,
		Body:    strings.Join(lines, "\n"),
	}
}

func orTBD(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "TBD"
	}
	return value
}

func titleCase(value string) string {
	if value == "" {
		return value
	}
	return strings.ToUpper(value[:1]) + value[1:]
}
