package middleware

import (
	"errors"

	authsvc "corkboard-backend/internal/application/auth"
	"corkboard-backend/internal/domain"
	"corkboard-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

const (
	userLocal  = "user"
	actorLocal = "actor"
)

// RequireAuth ensures a user is in the session. Returns 401 with standard error format if not.
func RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := c.Locals(userLocal)
		if user == nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		// Attach auth context for handlers (same key)
		c.Locals("auth", user)
		return c.Next()
	}
}

// RequireActor ensures the session user belongs to an organization and
// exposes the derived profile to handlers through GetActor.
func RequireActor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		shape, err := authsvc.VerifyUser(c.Locals(userLocal))
		if err != nil {
			return response.Unauthorized(c, "Unauthorized")
		}
		actor, err := shape.Actor()
		if err != nil {
			if errors.Is(err, authsvc.ErrNoOrganization) {
				return response.Error(c, err.Error(), fiber.StatusForbidden, nil)
			}
			return response.Unauthorized(c, "Unauthorized")
		}
		c.Locals(actorLocal, actor)
		return c.Next()
	}
}

// GetUser returns the session user from Locals (nil if not logged in).
func GetUser(c *fiber.Ctx) interface{} {
	return c.Locals(userLocal)
}

// GetActor returns the profile set by RequireActor.
func GetActor(c *fiber.Ctx) (domain.Actor, bool) {
	a, ok := c.Locals(actorLocal).(domain.Actor)
	return a, ok
}
