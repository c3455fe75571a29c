package middleware

import (
	"strings"

	"corkboard-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
)

// CORSConfig holds CORS configuration. AllowedSuffix may list several
// comma-separated origin suffixes (".corkboard.app,.corkboard.dev").
type CORSConfig struct {
	AllowedSuffix  string
	DevPassword    string
	AllowLocalhost bool
}

const (
	corsAllowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsAllowHeaders = "Content-Type, dev-password, " + traceIDHeader
)

// CORS allows origins ending with one of the configured suffixes, localhost
// origins when AllowLocalhost is set, and requests carrying the dev-password
// header. Credentials are
// allowed; preflights from allowed origins are answered with 204.
func CORS(cfg CORSConfig) fiber.Handler {
	suffixes := splitSuffixes(cfg.AllowedSuffix)
	return func(c *fiber.Ctx) error {
		origin := c.Get(fiber.HeaderOrigin)
		// No origin (same-origin or tools)
		if origin == "" {
			return c.Next()
		}
		c.Vary(fiber.HeaderOrigin)
		if !originAllowed(origin, suffixes, cfg.AllowLocalhost) && (cfg.DevPassword == "" || c.Get("dev-password") != cfg.DevPassword) {
			return response.Error(c, "Not allowed by CORS", fiber.StatusForbidden, nil)
		}
		c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
		c.Set(fiber.HeaderAccessControlAllowCredentials, "true")
		c.Set(fiber.HeaderAccessControlAllowHeaders, corsAllowHeaders)
		c.Set(fiber.HeaderAccessControlExposeHeaders, traceIDHeader)
		if c.Method() == fiber.MethodOptions {
			c.Set(fiber.HeaderAccessControlAllowMethods, corsAllowMethods)
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}

func splitSuffixes(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func originAllowed(origin string, suffixes []string, localhost bool) bool {
	o := strings.ToLower(origin)
	if localhost && strings.HasPrefix(o, "http://localhost:") || strings.HasPrefix(o, "http://127.0.0.1:") {
		return true
	}
	for _, s := range suffixes {
		if strings.HasSuffix(o, s) {
			return true
		}
	}
	return false
}
