package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// SessionConfig for the Redis-backed cookie session. A non-empty Secret
// signs the cookie value and rejects cookies whose signature does not match.
type SessionConfig struct {
	Secret            string
	RedisURL          string
	AllowCrossSiteDev bool
	IsProduction      bool
}

const (
	sessionCookieName  = "corkboard.sid"
	SessionCookieName  = sessionCookieName // exported for auth/me debug logging
	sessionPrefix      = "session:"
	SessionRedisPrefix = sessionPrefix // exported for auth logout (Del key)
	sessionMaxAge      = 24 * time.Hour

	sessionDataLocal  = "session_data"
	sessionIDLocal    = "session_id"
	sessionDirtyLocal = "session_dirty"
)

// SessionUser is the shape stored in session under "user".
type SessionUser struct {
	UserID   string  `json:"user_id"`
	Fullname string  `json:"fullname"`
	Email    string  `json:"email"`
	Role     string  `json:"role"`
	OrgID    *string `json:"org_id"`
}

// Session returns a Fiber middleware that loads session data from Redis.
// Cookie "corkboard.sid" holds "s:<id>" or "s:<id>.<signature>"; data lives
// under "session:<id>". Changed sessions are written back after the handler,
// unchanged ones only have their expiry renewed.
func Session(cfg SessionConfig) (fiber.Handler, *redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	rdb := redis.NewClient(opt)

	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()
		sessionID, _ := parseCookieValue(cfg.Secret, c.Cookies(sessionCookieName))

		var data map[string]interface{}
		if sessionID != "" {
			b, err := rdb.Get(ctx, sessionPrefix+sessionID).Bytes()
			switch {
			case err == nil:
				if err := json.Unmarshal(b, &data); err != nil {
					log.Warn().Err(err).Str("session_id_prefix", truncateID(sessionID)).Msg("session: corrupt data dropped")
				}
			case !errors.Is(err, redis.Nil):
				log.Warn().Err(err).Msg("session: load failed")
			}
		}
		loaded := data != nil
		if data == nil {
			data = make(map[string]interface{})
		}

		c.Locals(sessionDataLocal, data)
		c.Locals(userLocal, data["user"])
		c.Locals(sessionIDLocal, sessionID)
		c.Locals(sessionDirtyLocal, false)

		if err := c.Next(); err != nil {
			return err
		}

		sid := GetSessionID(c)
		if sid == "" {
			return nil
		}
		if dirty, _ := c.Locals(sessionDirtyLocal).(bool); dirty {
			updated, _ := c.Locals(sessionDataLocal).(map[string]interface{})
			b, err := json.Marshal(updated)
			if err == nil {
				err = rdb.Set(ctx, sessionPrefix+sid, b, sessionMaxAge).Err()
			}
			if err != nil {
				log.Error().Err(err).Msg("session: save failed")
			}
		} else if loaded {
			if err := rdb.Expire(ctx, sessionPrefix+sid, sessionMaxAge).Err(); err != nil {
				log.Warn().Err(err).Msg("session: touch failed")
			}
		}
		return nil
	}, rdb, nil
}

// CookieValue is the session cookie value for id: "s:<id>", followed by
// ".<signature>" when a secret is configured.
func CookieValue(cfg SessionConfig, id string) string {
	if cfg.Secret == "" {
		return "s:" + id
	}
	return "s:" + id + "." + sign(cfg.Secret, id)
}

func parseCookieValue(secret, raw string) (string, bool) {
	if !strings.HasPrefix(raw, "s:") {
		return "", false
	}
	parts := strings.SplitN(raw[2:], ".", 2)
	id := parts[0]
	if secret == "" {
		return id, id != ""
	}
	if len(parts) != 2 || !hmac.Equal([]byte(parts[1]), []byte(sign(secret, id))) {
		return "", false
	}
	return id, true
}

func sign(secret, id string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(id))
	return base64.RawStdEncoding.EncodeToString(mac.Sum(nil))
}

func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// GetSessionID returns the current session ID from context (for login/logout).
func GetSessionID(c *fiber.Ctx) string {
	sid, _ := c.Locals(sessionIDLocal).(string)
	return sid
}

// SetSessionUser stores user in the session and marks it for saving.
// Call RegenerateSessionID first on login.
func SetSessionUser(c *fiber.Ctx, user SessionUser) {
	data, _ := c.Locals(sessionDataLocal).(map[string]interface{})
	if data == nil {
		data = make(map[string]interface{})
	}
	data["user"] = map[string]interface{}{
		"user_id":  user.UserID,
		"fullname": user.Fullname,
		"email":    user.Email,
		"role":     user.Role,
		"org_id":   user.OrgID,
	}
	c.Locals(sessionDataLocal, data)
	c.Locals(userLocal, data["user"])
	c.Locals(sessionDirtyLocal, true)
}

// RegenerateSessionID switches the request to a fresh session id. The cookie
// is set by the handler with CookieValue.
func RegenerateSessionID(c *fiber.Ctx) string {
	newID := uuid.New().String()
	c.Locals(sessionIDLocal, newID)
	c.Locals(sessionDirtyLocal, true)
	return newID
}

// DestroySession clears user and session data from Locals so nothing is
// persisted for the old id; caller must clear cookie and Redis.
func DestroySession(c *fiber.Ctx) {
	c.Locals(sessionDataLocal, make(map[string]interface{}))
	c.Locals(userLocal, nil)
	c.Locals(sessionIDLocal, "")
	c.Locals(sessionDirtyLocal, false)
}

// SessionCookieConfig returns the session cookie options (for SetCookie/ClearCookie).
func SessionCookieConfig(cfg SessionConfig) fiber.Cookie {
	sameSite := fiber.CookieSameSiteLaxMode
	if cfg.AllowCrossSiteDev {
		sameSite = fiber.CookieSameSiteNoneMode
	}
	return fiber.Cookie{
		Name:     sessionCookieName,
		Path:     "/",
		MaxAge:   int(sessionMaxAge.Seconds()),
		HTTPOnly: true,
		Secure:   cfg.IsProduction || cfg.AllowCrossSiteDev,
		SameSite: sameSite,
	}
}
