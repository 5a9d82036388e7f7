package booking

import "github.com/codr1/courtbook/internal/models"

var transitions = map[models.BookingStatus][]models.BookingStatus{
	models.BookingPending:   {models.BookingConfirmed, models.BookingCancelled},
	models.BookingConfirmed: {models.BookingCancelled, models.BookingCompleted},
}

// CanTransition reports whether a booking may move from one status to
// another. Cancelled and completed are terminal.
func CanTransition(from, to models.BookingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
