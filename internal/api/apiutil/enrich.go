package apiutil

import (
	"context"
	"errors"

	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/store"
)

// LoadUsers fetches each distinct id once. Ids without a user are left out
// of the result so callers can omit the embedded record.
func LoadUsers(ctx context.Context, users store.Users, ids []int64) (map[int64]models.User, error) {
	loaded := make(map[int64]models.User, len(ids))
	for _, id := range ids {
		if _, ok := loaded[id]; ok {
			continue
		}
		user, err := users.GetByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		loaded[id] = user
	}
	return loaded, nil
}

// LoadCourts is LoadUsers for courts.
func LoadCourts(ctx context.Context, courts store.Courts, ids []int64) (map[int64]models.Court, error) {
	loaded := make(map[int64]models.Court, len(ids))
	for _, id := range ids {
		if _, ok := loaded[id]; ok {
			continue
		}
		court, err := courts.GetByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		loaded[id] = court
	}
	return loaded, nil
}
