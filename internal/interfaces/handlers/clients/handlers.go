package clients

import (
	"strconv"

	clientsvc "corkboard-backend/internal/application/clients"
	notesvc "corkboard-backend/internal/application/notes"
	oversvc "corkboard-backend/internal/application/overrides"
	recsvc "corkboard-backend/internal/application/records"
	"corkboard-backend/internal/domain"
	"corkboard-backend/internal/middleware"
	"corkboard-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers serves clients and the data each client owns. Every
// client-scoped route checks ownership through Clients.Get first.
type Handlers struct {
	Clients   *clientsvc.Service
	Records   *recsvc.Service
	Overrides *oversvc.Service
	Notes     *notesvc.Service
}

type clientView struct {
	*domain.Client
	ConfidenceBand string `json:"confidence_band"`
}

func view(c *domain.Client) clientView {
	return clientView{Client: c, ConfidenceBand: domain.ConfidenceBand(c.ConfidenceScore)}
}

type updateRequest struct {
	Name *string `json:"name"`
	Tag  *string `json:"tag"`
}

type noteRequest struct {
	FieldID string `json:"field_id"`
	Text    string `json:"text"`
}

// owned resolves :id to a client of the actor's org. A nil client means the
// error response was already written and err is the result of writing it.
func (h *Handlers) owned(c *fiber.Ctx) (domain.Actor, *domain.Client, error) {
	actor, _ := middleware.GetActor(c)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return actor, nil, response.Error(c, "Invalid client id", fiber.StatusBadRequest, nil)
	}
	cl, err := h.Clients.Get(c.UserContext(), actor.OrgID, id)
	if err != nil {
		return actor, nil, response.FromError(c, err)
	}
	return actor, cl, nil
}

// GET /api/v1/clients
func (h *Handlers) List(c *fiber.Ctx) error {
	actor, _ := middleware.GetActor(c)
	list, err := h.Clients.List(c.UserContext(), actor.OrgID)
	if err != nil {
		return response.FromError(c, err)
	}
	out := make([]clientView, 0, len(list))
	for i := range list {
		out = append(out, view(&list[i]))
	}
	return response.List(c, "Clients fetched successfully", out)
}

// POST /api/v1/clients
func (h *Handlers) Create(c *fiber.Ctx) error {
	actor, _ := middleware.GetActor(c)
	var req clientsvc.CreateClientInput
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
		}
	}
	cl, err := h.Clients.Create(c.UserContext(), actor, req)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Client created successfully", view(cl), nil)
}

// GET /api/v1/clients/:id
func (h *Handlers) Get(c *fiber.Ctx) error {
	_, cl, err := h.owned(c)
	if cl == nil {
		return err
	}
	return response.Success(c, "Client fetched successfully", view(cl), nil)
}

// PATCH /api/v1/clients/:id: name and/or tag.
func (h *Handlers) Update(c *fiber.Ctx) error {
	actor, cl, err := h.owned(c)
	if cl == nil {
		return err
	}
	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	if req.Name != nil {
		if cl, err = h.Clients.Rename(c.UserContext(), actor.OrgID, cl.ID, *req.Name); err != nil {
			return response.FromError(c, err)
		}
	}
	if req.Tag != nil {
		if cl, err = h.Clients.UpdateTag(c.UserContext(), actor.OrgID, cl.ID, *req.Tag); err != nil {
			return response.FromError(c, err)
		}
	}
	return response.Success(c, "Client updated successfully", view(cl), nil)
}

// PATCH /api/v1/clients/:id/confidence
func (h *Handlers) UpdateConfidence(c *fiber.Ctx) error {
	actor, cl, err := h.owned(c)
	if cl == nil {
		return err
	}
	var req clientsvc.ConfidenceInput
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	cl, err = h.Clients.UpdateConfidence(c.UserContext(), actor.OrgID, cl.ID, req)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Confidence updated successfully", view(cl), nil)
}

// DELETE /api/v1/clients/:id: cascade delete; a failed step is reported in details.step.
func (h *Handlers) Delete(c *fiber.Ctx) error {
	actor, _ := middleware.GetActor(c)
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return response.Error(c, "Invalid client id", fiber.StatusBadRequest, nil)
	}
	if err := h.Clients.Delete(c.UserContext(), actor.OrgID, id); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Client deleted successfully", fiber.Map{"id": id}, nil)
}

// GET /api/v1/clients/:id/records/latest?template_id=
func (h *Handlers) LatestRecord(c *fiber.Ctx) error {
	_, cl, err := h.owned(c)
	if cl == nil {
		return err
	}
	var templateID *uuid.UUID
	if s := c.Query("template_id"); s != "" {
		tid, err := uuid.Parse(s)
		if err != nil {
			return response.Error(c, "Invalid template_id", fiber.StatusBadRequest, nil)
		}
		templateID = &tid
	}
	rec, err := h.Records.Latest(c.UserContext(), cl.ID, templateID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Latest record fetched successfully", rec, nil)
}

// GET /api/v1/clients/:id/records?limit=
func (h *Handlers) History(c *fiber.Ctx) error {
	_, cl, err := h.owned(c)
	if cl == nil {
		return err
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	recs, err := h.Records.History(c.UserContext(), cl.ID, limit)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.List(c, "Records fetched successfully", recs)
}

// GET /api/v1/clients/:id/overrides
func (h *Handlers) ListOverrides(c *fiber.Ctx) error {
	_, cl, err := h.owned(c)
	if cl == nil {
		return err
	}
	ovs, err := h.Overrides.List(c.UserContext(), cl.ID)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Overrides fetched successfully", ovs, nil)
}

// GET /api/v1/clients/:id/notes
func (h *Handlers) ListNotes(c *fiber.Ctx) error {
	_, cl, err := h.owned(c)
	if cl == nil {
		return err
	}
	notes, err := h.Notes.List(c.UserContext(), cl.ID)
	if err != nil {
		return response.FromError(c, err)
	}
	if notes == nil {
		notes = []domain.Note{}
	}
	return response.List(c, "Notes fetched successfully", notes)
}

// POST /api/v1/clients/:id/notes
func (h *Handlers) AddNote(c *fiber.Ctx) error {
	actor, cl, err := h.owned(c)
	if cl == nil {
		return err
	}
	var req noteRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	n, err := h.Notes.Add(c.UserContext(), actor, cl.ID, req.FieldID, req.Text)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Note added successfully", n, nil)
}
