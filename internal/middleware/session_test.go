package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionApp(t *testing.T, cfg SessionConfig) (*fiber.App, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg.RedisURL = "redis://" + mr.Addr()
	handler, rdb, err := Session(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	app := fiber.New()
	app.Use(handler)
	app.Post("/login", func(c *fiber.Ctx) error {
		id := RegenerateSessionID(c)
		SetSessionUser(c, SessionUser{UserID: "u-1", Email: "ana@corkboard.app", Role: "owner"})
		cookie := SessionCookieConfig(cfg)
		cookie.Value = CookieValue(cfg, id)
		c.Cookie(&cookie)
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/who", func(c *fiber.Ctx) error {
		u, ok := GetUser(c).(map[string]interface{})
		if !ok {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		return c.SendString(u["email"].(string))
	})
	return app, mr
}

func login(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("POST", "/login", nil), -1)
	require.NoError(t, err)
	for _, sc := range resp.Header.Values("Set-Cookie") {
		if strings.HasPrefix(sc, sessionCookieName+"=") {
			return strings.SplitN(sc, ";", 2)[0]
		}
	}
	t.Fatal("no session cookie")
	return ""
}

func who(t *testing.T, app *fiber.App, cookie string) int {
	t.Helper()
	req := httptest.NewRequest("GET", "/who", nil)
	req.Header.Set("Cookie", cookie)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestSession_SignedCookieRoundTrip(t *testing.T) {
	app, mr := sessionApp(t, SessionConfig{Secret: "s3cret"})
	cookie := login(t, app)
	assert.Contains(t, cookie, ".")
	assert.Len(t, mr.Keys(), 1)

	assert.Equal(t, fiber.StatusOK, who(t, app, cookie))

	i := strings.LastIndex(cookie, ".")
	assert.Equal(t, fiber.StatusUnauthorized, who(t, app, cookie[:i]+".forged"))
	assert.Equal(t, fiber.StatusUnauthorized, who(t, app, cookie[:i]))
}

func TestSession_UnsignedWithoutSecret(t *testing.T) {
	app, _ := sessionApp(t, SessionConfig{})
	cookie := login(t, app)
	assert.NotContains(t, strings.TrimPrefix(cookie, sessionCookieName+"=s:"), ".")
	assert.Equal(t, fiber.StatusOK, who(t, app, cookie))
}

func TestSession_UnchangedSessionOnlyRenewsExpiry(t *testing.T) {
	app, mr := sessionApp(t, SessionConfig{})
	cookie := login(t, app)
	key := mr.Keys()[0]
	before, err := mr.Get(key)
	require.NoError(t, err)

	mr.FastForward(time.Hour)
	require.Less(t, mr.TTL(key), sessionMaxAge)
	assert.Equal(t, fiber.StatusOK, who(t, app, cookie))

	after, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, sessionMaxAge, mr.TTL(key))
}

func TestSession_UnknownIDIsAnonymous(t *testing.T) {
	app, mr := sessionApp(t, SessionConfig{})
	assert.Equal(t, fiber.StatusUnauthorized, who(t, app, sessionCookieName+"=s:does-not-exist"))
	assert.Empty(t, mr.Keys())
}
