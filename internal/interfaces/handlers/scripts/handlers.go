package scripts

import (
	scriptsvc "corkboard-backend/internal/application/scripts"
	"corkboard-backend/internal/domain"
	"corkboard-backend/internal/middleware"
	"corkboard-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Service *scriptsvc.Service
}

// GET /api/v1/scripts
func (h *Handlers) List(c *fiber.Ctx) error {
	actor, _ := middleware.GetActor(c)
	list, err := h.Service.List(c.UserContext(), actor.OrgID)
	if err != nil {
		return response.FromError(c, err)
	}
	if list == nil {
		list = []domain.Script{}
	}
	return response.List(c, "Scripts fetched successfully", list)
}

// POST /api/v1/scripts
func (h *Handlers) Create(c *fiber.Ctx) error {
	actor, _ := middleware.GetActor(c)
	var req scriptsvc.ScriptInput
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	sc, err := h.Service.Create(c.UserContext(), actor, req)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Script created successfully", sc, nil)
}

// PUT /api/v1/scripts/:id
func (h *Handlers) Update(c *fiber.Ctx) error {
	actor, _ := middleware.GetActor(c)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid script id", fiber.StatusBadRequest, nil)
	}
	var req scriptsvc.ScriptInput
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	sc, err := h.Service.Update(c.UserContext(), actor.OrgID, id, req)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Script updated successfully", sc, nil)
}
