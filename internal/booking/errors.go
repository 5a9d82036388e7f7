package booking

import (
	"errors"
	"fmt"

	"github.com/codr1/courtbook/internal/store"
)

var (
	ErrNoMatchingSlot    = errors.New("no matching time slot found")
	ErrSlotAlreadyBooked = errors.New("this time slot is already booked")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrNotAuthorized     = errors.New("not authorized to update this booking")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidRequest    = errors.New("invalid booking request")
)

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func notFound(what string, id int64) error {
	return fmt.Errorf("%w: %s %d", ErrNotFound, what, id)
}

func courtLookupErr(courtID int64, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound("court", courtID)
	}
	return fmt.Errorf("load court %d: %w", courtID, err)
}
