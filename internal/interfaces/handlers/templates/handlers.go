package templates

import (
	"encoding/json"

	tplsvc "corkboard-backend/internal/application/templates"
	"corkboard-backend/internal/domain"
	"corkboard-backend/internal/middleware"
	"corkboard-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *tplsvc.Service
}

type createRequest struct {
	Name   string          `json:"name"`
	Fields json.RawMessage `json:"fields"`
}

type fieldsRequest struct {
	Fields json.RawMessage `json:"fields"`
}

type renameRequest struct {
	Name string `json:"name"`
}

// GET /api/v1/templates
func (h *Handlers) List(c *fiber.Ctx) error {
	actor, _ := middleware.GetActor(c)
	list, err := h.Service.List(c.UserContext(), actor.OrgID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.List(c, "Templates fetched successfully", list)
}

// GET /api/v1/templates/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	actor, _ := middleware.GetActor(c)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid template id", fiber.StatusBadRequest, nil)
	}
	t, err := h.Service.Get(c.UserContext(), actor.OrgID, id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Template fetched successfully", t, nil)
}

// POST /api/v1/templates: 201 with the normalized template and the dropped entries.
func (h *Handlers) Create(c *fiber.Ctx) error {
	actor, _ := middleware.GetActor(c)
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	t, dropped, err := h.Service.Create(c.UserContext(), actor, req.Name, req.Fields)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Template created successfully", t, fiber.Map{"dropped": droppedOrEmpty(dropped)})
}

// PUT /api/v1/templates/:id/fields: replace the whole field list.
func (h *Handlers) ReplaceFields(c *fiber.Ctx) error {
	actor, _ := middleware.GetActor(c)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid template id", fiber.StatusBadRequest, nil)
	}
	var req fieldsRequest
	if err := c.BodyParser(&req); err != nil || len(req.Fields) == 0 {
		return response.Error(c, "fields is required", fiber.StatusBadRequest, nil)
	}
	t, dropped, err := h.Service.ReplaceFields(c.UserContext(), actor.OrgID, id, req.Fields)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Template updated successfully", t, fiber.Map{"dropped": droppedOrEmpty(dropped)})
}

// PATCH /api/v1/templates/:id
func (h *Handlers) Rename(c *fiber.Ctx) error {
	actor, _ := middleware.GetActor(c)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid template id", fiber.StatusBadRequest, nil)
	}
	var req renameRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	if err := h.Service.Rename(c.UserContext(), actor.OrgID, id, req.Name); err != nil {
		return response.FromError(c, err)
	}
	t, err := h.Service.Get(c.UserContext(), actor.OrgID, id)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Template renamed successfully", t, nil)
}

func droppedOrEmpty(d []domain.DroppedField) []domain.DroppedField {
	if d == nil {
		return []domain.DroppedField{}
	}
	return d
}
