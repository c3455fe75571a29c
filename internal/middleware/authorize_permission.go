package middleware

import (
	"corkboard-backend/internal/pkg/constants"
	"corkboard-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// AuthorizePermission checks the caller's role against PermissionRoles. The
// role comes from the actor set by RequireActor, or from the session user
// when the route has no actor. Unconfigured permission -> 500, role not
// allowed -> 403.
func AuthorizePermission(permission string) fiber.Handler {
	roles, configured := constants.PermissionRoles[permission]
	configured = configured && len(roles) > 0
	return func(c *fiber.Ctx) error {
		role, ok := callerRole(c)
		if !ok {
			return response.Unauthorized(c, "Unauthorized")
		}
		if role == "" {
			return response.Error(c, "Authorization error", fiber.StatusInternalServerError, nil)
		}
		if !configured {
			log.Error().Str("permission", permission).Msg("permission has no roles configured")
			return response.Error(c, "Permission configuration error", fiber.StatusInternalServerError, nil)
		}
		if !constants.AllowedRole(permission, role) {
			log.Debug().Str("trace_id", GetTraceID(c)).Str("permission", permission).Str("role", role).Msg("permission denied")
			return response.Error(c, "User is Forbidden from performing this action", fiber.StatusForbidden, nil)
		}
		return c.Next()
	}
}

func callerRole(c *fiber.Ctx) (string, bool) {
	if actor, ok := GetActor(c); ok {
		return actor.Role, true
	}
	m, ok := GetUser(c).(map[string]interface{})
	if !ok {
		return "", false
	}
	r, _ := m["role"].(string)
	return r, true
}
