package scripts

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	scriptsvc "corkboard-backend/internal/application/scripts"
	"corkboard-backend/internal/domain"
	"corkboard-backend/internal/infrastructure/database"
	"corkboard-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptsEndpoints(t *testing.T) {
	db, err := database.OpenSQLite("")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	h := &Handlers{Service: &scriptsvc.Service{DB: db}}
	userID, orgID := uuid.New(), uuid.New()

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{"user_id": userID.String(), "org_id": orgID.String(), "role": "member"})
		return c.Next()
	})
	g := app.Group("/scripts", middleware.RequireActor())
	g.Get("/", h.List)
	g.Post("/", h.Create)
	g.Put("/:id", h.Update)

	do := func(method, path string, body interface{}) (int, map[string]interface{}) {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		var out map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp.StatusCode, out
	}

	code, out := do("GET", "/scripts", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Empty(t, out["data"])

	code, out = do("POST", "/scripts", map[string]string{"content": "Hola"})
	require.Equal(t, fiber.StatusCreated, code)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, scriptsvc.DefaultTitle, data["title"])
	id := data["id"].(string)

	code, out = do("PUT", "/scripts/"+id, map[string]string{"title": "Apertura", "content": "Buenos días"})
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, "Apertura", out["data"].(map[string]interface{})["title"])

	other := &domain.Script{OrgID: uuid.New(), Title: "x"}
	require.NoError(t, db.Create(other).Error)
	code, _ = do("PUT", "/scripts/"+other.ID.String(), map[string]string{"title": "mine"})
	assert.Equal(t, fiber.StatusForbidden, code)

	code, _ = do("PUT", "/scripts/bad", map[string]string{"title": "t"})
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestScripts_NoOrganization(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{"user_id": uuid.NewString(), "org_id": nil})
		return c.Next()
	})
	app.Get("/scripts", middleware.RequireActor(), (&Handlers{}).List)

	resp, err := app.Test(httptest.NewRequest("GET", "/scripts", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
