package auth

import (
	"context"
	"errors"

	authsvc "corkboard-backend/internal/application/auth"
	"corkboard-backend/internal/domain"
	"corkboard-backend/internal/middleware"
	"corkboard-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const userSessionsPrefix = "user_sessions:"

// ProfileEnsurer attaches an org to a user on first login.
type ProfileEnsurer interface {
	EnsureProfileAndOrg(ctx context.Context, userID uuid.UUID) (*domain.Actor, error)
}

// SessionCloser closes a user's live client sessions.
type SessionCloser interface {
	CloseUser(userID uuid.UUID) int
}

// Handlers holds dependencies for auth endpoints.
type Handlers struct {
	Auth     authsvc.Authenticator
	Profiles ProfileEnsurer
	Sessions SessionCloser
	Rdb      *redis.Client
	Config   middleware.SessionConfig
}

// Signup POST /api/v1/auth/signup: create an account. The org is attached on first login.
func (h *Handlers) Signup(c *fiber.Ctx) error {
	if h.Auth == nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	var req authsvc.SignupInput
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Email and password are required", fiber.StatusBadRequest, nil)
	}
	user, err := h.Auth.Signup(c.UserContext(), req)
	if err != nil {
		switch {
		case errors.Is(err, authsvc.ErrEmailPasswordRequired), errors.Is(err, authsvc.ErrEmailFormat),
			errors.Is(err, authsvc.ErrWeakPassword), errors.Is(err, authsvc.ErrInvalidFullname):
			return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
		case errors.Is(err, authsvc.ErrEmailTaken):
			return response.Error(c, err.Error(), fiber.StatusConflict, nil)
		default:
			log.Error().Err(err).Msg("auth/signup failed")
			return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
		}
	}
	return response.SuccessCreated(c, "Account created", fiber.Map{
		"user": fiber.Map{
			"user_id":  user.UserID.String(),
			"fullname": user.Fullname,
			"email":    user.Email,
		},
	}, nil)
}

// Login POST /api/v1/auth/login: authenticate, ensure the org, create session, SAdd user_sessions:user_id, set cookie.
func (h *Handlers) Login(c *fiber.Ctx) error {
	if h.Auth == nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}
	var req authsvc.LoginInput
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Email and password are required", fiber.StatusBadRequest, nil)
	}
	if req.Email == "" || req.Password == "" {
		return response.Error(c, "Email and password are required", fiber.StatusBadRequest, nil)
	}

	ctx := c.UserContext()
	user, err := h.Auth.Login(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, authsvc.ErrEmailPasswordRequired):
			return response.Error(c, err.Error(), fiber.StatusBadRequest, nil)
		case errors.Is(err, authsvc.ErrInvalidEmail), errors.Is(err, authsvc.ErrIncorrectPassword):
			return response.Error(c, err.Error(), fiber.StatusUnauthorized, nil)
		default:
			return response.FromError(c, err)
		}
	}

	role, orgID := user.Role, nilString(user.OrgID)
	if h.Profiles != nil {
		actor, err := h.Profiles.EnsureProfileAndOrg(ctx, user.UserID)
		if err != nil {
			log.Error().Err(err).Str("user_id", user.UserID.String()).Msg("auth/login: ensure profile failed")
			return response.FromError(c, err)
		}
		role = actor.Role
		orgID = nilString(&actor.OrgID)
	}

	sessionID := middleware.RegenerateSessionID(c)
	middleware.SetSessionUser(c, middleware.SessionUser{
		UserID:   user.UserID.String(),
		Fullname: user.Fullname,
		Email:    user.Email,
		Role:     role,
		OrgID:    orgID,
	})

	if err := h.Rdb.SAdd(ctx, userSessionsPrefix+user.UserID.String(), sessionID).Err(); err != nil {
		return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
	}

	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.Value = middleware.CookieValue(h.Config, sessionID)
	c.Cookie(&cookie)

	return response.Success(c, "Login successful", fiber.Map{
		"user": fiber.Map{
			"user_id":  user.UserID.String(),
			"fullname": user.Fullname,
			"email":    user.Email,
			"role":     role,
			"org_id":   orgID,
		},
	}, nil)
}

// Me GET /api/v1/auth/me: return current session user in standard success format.
func (h *Handlers) Me(c *fiber.Ctx) error {
	sessionID := middleware.GetSessionID(c)
	sessionUser := middleware.GetUser(c)

	if sessionID == "" {
		cookieVal := c.Cookies(middleware.SessionCookieName)
		log.Debug().Str("path", "/auth/me").
			Bool("cookie_present", cookieVal != "").
			Int("cookie_len", len(cookieVal)).
			Msg("auth/me: no session id")
	} else if sessionUser == nil {
		log.Debug().Str("path", "/auth/me").Str("session_id_prefix", truncate(sessionID, 8)).
			Msg("auth/me: session id present but no user in session data")
	}

	user, err := authsvc.VerifyUser(sessionUser)
	if err != nil {
		return response.Error(c, "Not authenticated", fiber.StatusUnauthorized, nil)
	}
	return response.Success(c, "Authenticated", fiber.Map{"user": user}, nil)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// Logout DELETE /api/v1/auth/logout: close live client sessions, SRem user_sessions:user_id, Del session key, clear cookie.
func (h *Handlers) Logout(c *fiber.Ctx) error {
	sessionID := middleware.GetSessionID(c)
	ctx := c.UserContext()

	if user, err := authsvc.VerifyUser(middleware.GetUser(c)); err == nil {
		if uid, err := uuid.Parse(user.UserID); err == nil && h.Sessions != nil {
			if n := h.Sessions.CloseUser(uid); n > 0 {
				log.Info().Str("user_id", uid.String()).Int("sessions", n).Msg("auth/logout: closed client sessions")
			}
		}
		if sessionID != "" {
			_ = h.Rdb.SRem(ctx, userSessionsPrefix+user.UserID, sessionID).Err()
		}
	}

	if sessionID != "" {
		_ = h.Rdb.Del(ctx, middleware.SessionRedisPrefix+sessionID).Err()
	}

	middleware.DestroySession(c)

	cookie := middleware.SessionCookieConfig(h.Config)
	cookie.Value = ""
	cookie.MaxAge = -1
	c.Cookie(&cookie)

	return response.Success(c, "Logged out successfully", nil, nil)
}

func nilString(u *uuid.UUID) *string {
	if u == nil || *u == uuid.Nil {
		return nil
	}
	s := u.String()
	return &s
}
