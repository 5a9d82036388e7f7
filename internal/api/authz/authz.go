package authz

import (
	"context"
	"errors"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

// AuthUser is the caller resolved from a bearer token.
type AuthUser struct {
	ID           int64
	Username     string
	IsCourtOwner bool
}

type userContextKey struct{}

func ContextWithUser(ctx context.Context, user *AuthUser) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext retrieves the AuthUser stored in ctx.
// It returns nil if ctx is nil, if no user is stored, or if the stored value has a different type.
func UserFromContext(ctx context.Context) *AuthUser {
	if ctx == nil {
		return nil
	}

	user, ok := ctx.Value(userContextKey{}).(*AuthUser)
	if !ok {
		return nil
	}

	return user
}

func RequireAuthenticated(ctx context.Context) (*AuthUser, error) {
	user := UserFromContext(ctx)
	if user == nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// RequireCourtOwner succeeds for callers registered as court owners.
func RequireCourtOwner(ctx context.Context) (*AuthUser, error) {
	user, err := RequireAuthenticated(ctx)
	if err != nil {
		return nil, err
	}
	if !user.IsCourtOwner {
		return user, ErrForbidden
	}
	return user, nil
}

// RequireOwnerOf succeeds when the caller is the owner identified by ownerID.
func RequireOwnerOf(ctx context.Context, ownerID int64) (*AuthUser, error) {
	user, err := RequireAuthenticated(ctx)
	if err != nil {
		return nil, err
	}
	if user.ID != ownerID {
		return user, ErrForbidden
	}
	return user, nil
}
