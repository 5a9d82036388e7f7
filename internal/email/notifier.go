package email

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/metrics"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/store"
)

const DefaultSendTimeout = 5 * time.Second

// BookingNotifier emails players and court owners about booking changes.
// Sends run in the background; the booking call returns without waiting.
type BookingNotifier struct {
	sender  EmailSender
	users   store.Users
	timeout time.Duration

	stop     context.Context
	stopFunc context.CancelFunc
	wg       sync.WaitGroup

	// mu orders wg.Add against Close so no send starts once Close is waiting.
	mu     sync.Mutex
	closed bool
}

// NewBookingNotifier returns a notifier that delivers through sender. A zero
// timeout uses DefaultSendTimeout.
func NewBookingNotifier(sender EmailSender, users store.Users, timeout time.Duration) *BookingNotifier {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	stop, stopFunc := context.WithCancel(context.Background())
	return &BookingNotifier{
		sender:   sender,
		users:    users,
		timeout:  timeout,
		stop:     stop,
		stopFunc: stopFunc,
	}
}

func (n *BookingNotifier) BookingCreated(ctx context.Context, b models.Booking, court models.Court) {
	player := n.lookup(ctx, b.UserID)
	details := DetailsFor(b, court, player)

	n.deliver(ctx, "booking_created", player, BuildBookingRequested(details))
	if owner := n.lookup(ctx, court.OwnerID); owner != nil {
		n.deliver(ctx, "booking_created_owner", owner, BuildOwnerBookingRequested(details))
	}
}

func (n *BookingNotifier) BookingStatusChanged(ctx context.Context, b models.Booking, court models.Court, previous models.BookingStatus) {
	player := n.lookup(ctx, b.UserID)
	details := DetailsFor(b, court, player)

	n.deliver(ctx, "booking_status", player, BuildStatusChanged(details, previous))
	if b.Status == models.BookingCancelled {
		if owner := n.lookup(ctx, court.OwnerID); owner != nil {
			n.deliver(ctx, "booking_cancelled_owner", owner, BuildOwnerCancelled(details))
		}
	}
}

// Close aborts sends still in flight and waits for them to return.
// Notifications after Close are dropped.
func (n *BookingNotifier) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	n.stopFunc()
	n.wg.Wait()
}

// Wait blocks until every queued send has finished.
func (n *BookingNotifier) Wait() {
	n.wg.Wait()
}

func (n *BookingNotifier) lookup(ctx context.Context, userID int64) *models.User {
	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()
	user, err := n.users.GetByID(lookupCtx, userID)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Int64("user_id", userID).Msg("Failed to load user for booking email")
		return nil
	}
	return &user
}

func (n *BookingNotifier) deliver(ctx context.Context, kind string, to *models.User, msg BookingEmail) {
	if to == nil || n.sender == nil {
		return
	}
	recipient := strings.TrimSpace(to.Email)
	if recipient == "" {
		return
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		log.Ctx(ctx).Debug().Str("kind", kind).Int64("user_id", to.ID).Msg("Notifier closed; booking email dropped")
		return
	}
	n.wg.Add(1)
	n.mu.Unlock()

	go func() {
		defer n.wg.Done()
		sendCtx, cancel := newEmailContext(ctx, n.stop, n.timeout)
		defer cancel()

		err := n.sender.Send(sendCtx, recipient, msg.Subject, msg.Body)
		metrics.RecordNotification(kind, err)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("kind", kind).Int64("user_id", to.ID).Msg("Failed to send booking email")
		}
	}()
}
