package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	clientsvc "corkboard-backend/internal/application/clients"
	notesvc "corkboard-backend/internal/application/notes"
	oversvc "corkboard-backend/internal/application/overrides"
	recsvc "corkboard-backend/internal/application/records"
	"corkboard-backend/internal/domain"
	"corkboard-backend/internal/infrastructure/database"
	"corkboard-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	app   *fiber.App
	db    *gorm.DB
	h     *Handlers
	actor domain.Actor
}

func setupClientsTest(t *testing.T) *testEnv {
	db, err := database.OpenSQLite("")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	h := &Handlers{
		Clients:   &clientsvc.Service{DB: db},
		Records:   &recsvc.Service{DB: db},
		Overrides: &oversvc.Service{DB: db},
		Notes:     &notesvc.Service{DB: db},
	}
	env := &testEnv{db: db, h: h, actor: domain.Actor{UserID: uuid.New(), OrgID: uuid.New(), Role: "member"}}

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user", map[string]interface{}{
			"user_id": env.actor.UserID.String(), "org_id": env.actor.OrgID.String(), "role": env.actor.Role,
		})
		return c.Next()
	})
	g := app.Group("/clients", middleware.RequireActor())
	g.Get("/", h.List)
	g.Post("/", h.Create)
	g.Get("/:id", h.Get)
	g.Patch("/:id", h.Update)
	g.Patch("/:id/confidence", h.UpdateConfidence)
	g.Delete("/:id", h.Delete)
	g.Get("/:id/records/latest", h.LatestRecord)
	g.Get("/:id/records", h.History)
	g.Get("/:id/overrides", h.ListOverrides)
	g.Get("/:id/notes", h.ListNotes)
	g.Post("/:id/notes", h.AddNote)
	env.app = app
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.app.Test(req)
	require.NoError(t, err)
	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func (e *testEnv) create(t *testing.T, name string) string {
	t.Helper()
	code, out := e.do(t, "POST", "/clients", map[string]string{"name": name})
	require.Equal(t, fiber.StatusCreated, code)
	return out["data"].(map[string]interface{})["id"].(string)
}

func TestCreate_DefaultsAndBand(t *testing.T) {
	e := setupClientsTest(t)
	code, out := e.do(t, "POST", "/clients", nil)
	require.Equal(t, fiber.StatusCreated, code)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, "Sin nombre", data["name"])
	assert.Equal(t, "Lead", data["tag"])
	assert.Equal(t, float64(50), data["confidence_score"])
	assert.Equal(t, "Ámbar", data["confidence_band"])

	code, _ = e.do(t, "POST", "/clients", map[string]string{"name": "X", "tag": "VIP"})
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestGetUpdateAndList(t *testing.T) {
	e := setupClientsTest(t)
	id := e.create(t, "Acme")

	code, out := e.do(t, "PATCH", "/clients/"+id, map[string]string{"name": "Acme Ltd", "tag": "Trader"})
	require.Equal(t, fiber.StatusOK, code)
	data := out["data"].(map[string]interface{})
	assert.Equal(t, "Acme Ltd", data["name"])
	assert.Equal(t, "Trader", data["tag"])

	code, out = e.do(t, "PATCH", "/clients/"+id+"/confidence", map[string]interface{}{"confidence_score": 150, "confidence_note": "hot"})
	require.Equal(t, fiber.StatusOK, code)
	data = out["data"].(map[string]interface{})
	assert.Equal(t, float64(100), data["confidence_score"])
	assert.Equal(t, "Verde", data["confidence_band"])

	code, out = e.do(t, "GET", "/clients", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Len(t, out["data"], 1)
}

func TestGet_OtherOrg(t *testing.T) {
	e := setupClientsTest(t)
	other := &domain.Client{OrgID: uuid.New(), Name: "Theirs", Tag: "Lead"}
	require.NoError(t, e.db.Create(other).Error)

	code, _ := e.do(t, "GET", "/clients/"+other.ID.String(), nil)
	assert.Equal(t, fiber.StatusForbidden, code)
	code, _ = e.do(t, "GET", "/clients/"+uuid.NewString(), nil)
	assert.Equal(t, fiber.StatusNotFound, code)
	code, _ = e.do(t, "GET", "/clients/nope", nil)
	assert.Equal(t, fiber.StatusBadRequest, code)
}

func TestRecordsAndOverrides(t *testing.T) {
	e := setupClientsTest(t)
	id := e.create(t, "Acme")
	clientID := uuid.MustParse(id)
	templateID := uuid.New()

	code, out := e.do(t, "GET", "/clients/"+id+"/records/latest", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Nil(t, out["data"])

	_, err := e.h.Records.Save(context.Background(), e.actor, domain.SaveRecordInput{
		ClientID: clientID, TemplateID: templateID, Answers: domain.Answers{"a": "x"},
	})
	require.NoError(t, err)

	code, out = e.do(t, "GET", "/clients/"+id+"/records/latest?template_id="+templateID.String(), nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Equal(t, float64(1), out["data"].(map[string]interface{})["version"])

	code, out = e.do(t, "GET", "/clients/"+id+"/records?limit=5", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Len(t, out["data"], 1)

	code, _ = e.do(t, "GET", "/clients/"+id+"/records/latest?template_id=bad", nil)
	assert.Equal(t, fiber.StatusBadRequest, code)

	_, err = e.h.Overrides.SetHidden(context.Background(), clientID, "a", true)
	require.NoError(t, err)
	code, out = e.do(t, "GET", "/clients/"+id+"/overrides", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Contains(t, out["data"], "a")
}

func TestNotes(t *testing.T) {
	e := setupClientsTest(t)
	id := e.create(t, "Acme")

	code, out := e.do(t, "GET", "/clients/"+id+"/notes", nil)
	require.Equal(t, fiber.StatusOK, code)
	assert.Empty(t, out["data"])

	code, _ = e.do(t, "POST", "/clients/"+id+"/notes", map[string]string{"field_id": "a", "text": "  "})
	assert.Equal(t, fiber.StatusBadRequest, code)

	code, out = e.do(t, "POST", "/clients/"+id+"/notes", map[string]string{"field_id": "a", "text": "call back"})
	require.Equal(t, fiber.StatusCreated, code)
	assert.Equal(t, "call back", out["data"].(map[string]interface{})["text"])

	_, out = e.do(t, "GET", "/clients/"+id+"/notes", nil)
	assert.Len(t, out["data"], 1)
}

func TestDelete(t *testing.T) {
	e := setupClientsTest(t)
	id := e.create(t, "Acme")
	_, _ = e.do(t, "POST", "/clients/"+id+"/notes", map[string]string{"field_id": "a", "text": "n"})

	code, _ := e.do(t, "DELETE", "/clients/"+id, nil)
	require.Equal(t, fiber.StatusOK, code)
	code, _ = e.do(t, "GET", "/clients/"+id, nil)
	assert.Equal(t, fiber.StatusNotFound, code)

	code, _ = e.do(t, "DELETE", "/clients/"+id, nil)
	assert.Equal(t, fiber.StatusOK, code)
}
