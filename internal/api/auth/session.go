package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/codr1/courtbook/internal/api/authz"
	"github.com/codr1/courtbook/internal/store"
)

var errAuthNotInitialized = errors.New("auth handlers not initialized")

// UserFromRequest resolves the bearer token on r into the user it was issued
// for. A request without an Authorization header yields (nil, nil). Tokens
// for users that no longer exist are rejected with ErrInvalidToken.
func UserFromRequest(r *http.Request) (*authz.AuthUser, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}

	opts := loadOptions()
	if opts == nil {
		return nil, errAuthNotInitialized
	}

	raw, ok := BearerToken(header)
	if !ok {
		return nil, fmt.Errorf("%w: malformed authorization header", ErrInvalidToken)
	}
	userID, err := opts.Tokens.Parse(raw)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(r.Context(), authQueryTimeout)
	defer cancel()

	user, err := opts.Store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user %d", ErrInvalidToken, userID)
		}
		return nil, fmt.Errorf("load token user %d: %w", userID, err)
	}

	return &authz.AuthUser{
		ID:           user.ID,
		Username:     user.Username,
		IsCourtOwner: user.IsCourtOwner,
	}, nil
}
