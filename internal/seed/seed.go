// Package seed loads demo data for local development.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/auth"
	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/store"
)

// DemoPassword is the password of every demo account.
const DemoPassword = "password123"

const (
	demoDays      = 2
	demoOpenHour  = 9
	demoCloseHour = 22
)

var demoCourts = []models.Court{
	{
		Name:         "Green Galaxy Badminton",
		Description:  "Modern badminton facility with professional courts and amenities",
		Location:     "Quận 1, TP. Hồ Chí Minh",
		ImageURL:     "https://images.unsplash.com/photo-1615117972428-28de67cda58e",
		PricePerHour: 150000,
		Amenities:    []string{"Máy lạnh", "Nhà vệ sinh", "Căn tin"},
	},
	{
		Name:         "Olympic Sports Center",
		Description:  "Large sports center with multiple badminton courts",
		Location:     "Quận 7, TP. Hồ Chí Minh",
		ImageURL:     "https://images.unsplash.com/photo-1626224583764-f87db24ac4ea",
		PricePerHour: 180000,
		Amenities:    []string{"5 sân", "Máy lạnh", "Phòng thay đồ"},
	},
	{
		Name:         "Victory Badminton Club",
		Description:  "Exclusive club with high-quality badminton courts",
		Location:     "Ba Đình, Hà Nội",
		ImageURL:     "https://images.unsplash.com/photo-1613918431703-aa50889e3be8",
		PricePerHour: 200000,
		Amenities:    []string{"Máy lạnh", "Bãi đỗ xe"},
	},
}

// Result reports what Demo created.
type Result struct {
	Owner  models.User
	Player models.User
	Courts []models.Court
	Slots  int
}

// Demo creates two accounts, a few courts with hourly slots for today and
// tomorrow, and one open player request. It does nothing when the demo
// owner already exists.
func Demo(ctx context.Context, s store.Store, now time.Time) (Result, error) {
	var result Result

	if _, err := s.Users().GetByUsername(ctx, "janedoe"); err == nil {
		log.Ctx(ctx).Info().Msg("Demo data already present")
		return result, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return result, fmt.Errorf("check demo owner: %w", err)
	}

	hash, err := auth.HashPassword(DemoPassword)
	if err != nil {
		return result, fmt.Errorf("hash demo password: %w", err)
	}

	err = s.RunInTx(ctx, func(tx store.Store) error {
		result.Player, err = tx.Users().Create(ctx, models.User{
			Username:     "johndoe",
			PasswordHash: hash,
			Email:        "john@example.com",
			Name:         "John Doe",
			Bio:          "Avid badminton player for 5 years",
			Location:     "Quận 1, TP. Hồ Chí Minh",
			SkillLevel:   "intermediate",
		})
		if err != nil {
			return fmt.Errorf("create demo player: %w", err)
		}
		result.Owner, err = tx.Users().Create(ctx, models.User{
			Username:     "janedoe",
			PasswordHash: hash,
			Email:        "jane@example.com",
			Name:         "Jane Doe",
			Bio:          "Professional badminton coach",
			Location:     "Quận 7, TP. Hồ Chí Minh",
			SkillLevel:   "advanced",
			IsCourtOwner: true,
		})
		if err != nil {
			return fmt.Errorf("create demo owner: %w", err)
		}

		for _, court := range demoCourts {
			court.OwnerID = result.Owner.ID
			created, err := tx.Courts().Create(ctx, court)
			if err != nil {
				return fmt.Errorf("create demo court %q: %w", court.Name, err)
			}
			result.Courts = append(result.Courts, created)

			for day := range demoDays {
				slots, err := booking.GenerateDaySlots(ctx, tx, booking.GenerateRequest{
					CourtID:   created.ID,
					Date:      models.DayOf(now.AddDate(0, 0, day)),
					OpenHour:  demoOpenHour,
					CloseHour: demoCloseHour,
				})
				if err != nil {
					return fmt.Errorf("generate demo slots: %w", err)
				}
				result.Slots += len(slots)
			}
		}

		_, err = tx.PlayerRequests().Create(ctx, models.PlayerRequest{
			UserID:    result.Player.ID,
			Location:  "Quận 1, TP. Hồ Chí Minh",
			Date:      models.DayOf(now.AddDate(0, 0, 2)),
			TimeRange: "18:00 - 20:00",
			Message:   "Looking for a friendly game",
			Status:    models.PlayerRequestActive,
		})
		if err != nil {
			return fmt.Errorf("create demo player request: %w", err)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	log.Ctx(ctx).Info().
		Int("courts", len(result.Courts)).
		Int("slots", result.Slots).
		Msg("Demo data seeded")
	return result, nil
}
