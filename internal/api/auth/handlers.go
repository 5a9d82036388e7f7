package auth

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/apiutil"
	"github.com/codr1/courtbook/internal/metrics"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/ratelimit"
	"github.com/codr1/courtbook/internal/store"
)

const authQueryTimeout = 5 * time.Second

// Options carries the collaborators the auth handlers need.
type Options struct {
	Store              store.Store
	Tokens             *TokenIssuer
	Limiter            *ratelimit.Limiter
	PhoneDefaultRegion string
	TrustProxy         bool
}

var (
	handlerOpts     *Options
	handlerOptsOnce sync.Once
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(opts Options) {
	if opts.Store == nil || opts.Tokens == nil {
		return
	}
	handlerOptsOnce.Do(func() {
		if opts.Limiter == nil {
			opts.Limiter = ratelimit.New(nil)
		}
		handlerOpts = &opts
	})
}

func loadOptions() *Options {
	return handlerOpts
}

type registerRequest struct {
	Username     string `json:"username" validate:"required,min=3,max=32"`
	Password     string `json:"password" validate:"required,min=6,max=72"`
	Email        string `json:"email" validate:"required,email"`
	Name         string `json:"name" validate:"required,max=100"`
	Bio          string `json:"bio" validate:"max=1000"`
	Location     string `json:"location" validate:"max=200"`
	SkillLevel   string `json:"skillLevel" validate:"omitempty,oneof=beginner intermediate advanced professional"`
	IsCourtOwner bool   `json:"isCourtOwner"`
	AvatarURL    string `json:"avatarUrl" validate:"omitempty,url"`
	Phone        string `json:"phone"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	User  models.User `json:"user"`
	Token string      `json:"token"`
}

// POST /api/auth/register
func HandleRegister(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	opts := loadOptions()
	if opts == nil {
		logger.Error().Msg("Auth handlers not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	var req registerRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	phone, err := apiutil.NormalizePhone(req.Phone, opts.PhoneDefaultRegion)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), authQueryTimeout)
	defer cancel()

	users := opts.Store.Users()
	if _, err := users.GetByUsername(ctx, req.Username); err == nil {
		apiutil.WriteError(w, http.StatusBadRequest, "Username already taken")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		logger.Error().Err(err).Msg("Failed to check username")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}
	if _, err := users.GetByEmail(ctx, req.Email); err == nil {
		apiutil.WriteError(w, http.StatusBadRequest, "Email already in use")
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		logger.Error().Err(err).Msg("Failed to check email")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to hash password")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}

	user, err := users.Create(ctx, models.User{
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: hash,
		Email:        strings.TrimSpace(req.Email),
		Name:         strings.TrimSpace(req.Name),
		Bio:          req.Bio,
		Location:     req.Location,
		SkillLevel:   req.SkillLevel,
		IsCourtOwner: req.IsCourtOwner,
		AvatarURL:    req.AvatarURL,
		Phone:        phone,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			apiutil.WriteError(w, http.StatusBadRequest, "Username or email already in use")
			return
		}
		logger.Error().Err(err).Msg("Failed to create user")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}

	token, err := opts.Tokens.Issue(user.ID)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to issue token")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to register user")
		return
	}

	logger.Info().Int64("user_id", user.ID).Bool("court_owner", user.IsCourtOwner).Msg("User registered")
	apiutil.WriteOK(w, r, http.StatusCreated, authResponse{User: user, Token: token})
}

// POST /api/auth/login
func HandleLogin(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	opts := loadOptions()
	if opts == nil {
		logger.Error().Msg("Auth handlers not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	var req loginRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		apiutil.WriteError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	ip := ratelimit.ClientIP(r, opts.TrustProxy)
	if result := opts.Limiter.CheckLogin(req.Username, ip); !result.Allowed {
		ratelimit.LogThrottled(req.Username, ip, result.Reason)
		metrics.LoginThrottled.Inc()
		w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Round(time.Second).Seconds())))
		apiutil.WriteError(w, http.StatusTooManyRequests, "Too many login attempts, please try again later")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), authQueryTimeout)
	defer cancel()

	user, err := opts.Store.Users().GetByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Error().Err(err).Msg("Failed to load user for login")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}
	if err != nil || !VerifyPassword(user.PasswordHash, req.Password) {
		if opts.Limiter.RecordFailure(req.Username, ip) {
			logger.Warn().Str("username", ratelimit.MaskUsername(req.Username)).Msg("Account locked after failed logins")
		}
		apiutil.WriteError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	opts.Limiter.Reset(req.Username)

	token, err := opts.Tokens.Issue(user.ID)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to issue token")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	logger.Info().Int64("user_id", user.ID).Msg("User logged in")
	apiutil.WriteOK(w, r, http.StatusOK, authResponse{User: user, Token: token})
}

// GET /api/auth/me
func HandleMe(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	opts := loadOptions()
	if opts == nil {
		logger.Error().Msg("Auth handlers not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	authUser, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), authQueryTimeout)
	defer cancel()

	user, err := opts.Store.Users().GetByID(ctx, authUser.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			apiutil.WriteError(w, http.StatusNotFound, "User not found")
			return
		}
		logger.Error().Err(err).Int64("user_id", authUser.ID).Msg("Failed to load current user")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}

	apiutil.WriteOK(w, r, http.StatusOK, user)
}
