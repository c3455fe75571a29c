package sessions

import (
	"corkboard-backend/internal/application/clients"
	"corkboard-backend/internal/application/session"
	"corkboard-backend/internal/domain"
	"corkboard-backend/internal/middleware"
	"corkboard-backend/internal/pkg/layout"
	"corkboard-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Handlers exposes the live client sessions of the signed-in user. Every
// route except Open works on a session that Open created earlier.
type Handlers struct {
	Registry *session.Registry
}

type answersRequest struct {
	Answers domain.Answers `json:"answers"`
}

type switchRequest struct {
	TemplateID string `json:"template_id"`
}

type layoutRequest struct {
	Items []layout.Item `json:"items"`
}

type noteRequest struct {
	FieldID string `json:"field_id"`
	Text    string `json:"text"`
}

type renameRequest struct {
	Name string `json:"name"`
}

func clientID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("clientId"))
	if err != nil {
		return uuid.Nil, response.Error(c, "Invalid client id", fiber.StatusBadRequest, nil)
	}
	return id, nil
}

// current returns the open session for :clientId. A nil controller means the
// error response was already written.
func (h *Handlers) current(c *fiber.Ctx) (*session.Controller, error) {
	id, err := clientID(c)
	if id == uuid.Nil {
		return nil, err
	}
	actor, _ := middleware.GetActor(c)
	ctl, err := h.Registry.Get(actor, id)
	if err != nil {
		return nil, response.Error(c, "Session is not open", fiber.StatusNotFound, nil)
	}
	return ctl, nil
}

func viewOrError(c *fiber.Ctx, ctl *session.Controller, msg string, err error) error {
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, msg, ctl.View(), nil)
}

// POST /api/v1/sessions/:clientId: open (or rejoin) the board of a client.
// A failed load keeps the session so Retry can recover it, and the view is
// returned in details.
func (h *Handlers) Open(c *fiber.Ctx) error {
	id, err := clientID(c)
	if id == uuid.Nil {
		return err
	}
	actor, _ := middleware.GetActor(c)
	ctl, err := h.Registry.Open(c.UserContext(), actor, id)
	if err != nil {
		if ctl == nil {
			return response.FromError(c, err)
		}
		return response.Error(c, err.Error(), response.StatusFor(err), fiber.Map{"view": ctl.View()})
	}
	return response.Success(c, "Session opened", ctl.View(), nil)
}

// GET /api/v1/sessions/:clientId
func (h *Handlers) View(c *fiber.Ctx) error {
	ctl, err := h.current(c)
	if ctl == nil {
		return err
	}
	return response.Success(c, "Session fetched", ctl.View(), nil)
}

// PATCH /api/v1/sessions/:clientId/answers: edits are autosaved after a quiet period.
func (h *Handlers) SetAnswers(c *fiber.Ctx) error {
	ctl, err := h.current(c)
	if ctl == nil {
		return err
	}
	var req answersRequest
	if err := c.BodyParser(&req); err != nil || len(req.Answers) == 0 {
		return response.Error(c, "answers is required", fiber.StatusBadRequest, nil)
	}
	return viewOrError(c, ctl, "Answers updated", ctl.SetAnswers(req.Answers))
}

// POST /api/v1/sessions/:clientId/save
func (h *Handlers) Save(c *fiber.Ctx) error {
	ctl, err := h.current(c)
	if ctl == nil {
		return err
	}
	return viewOrError(c, ctl, "Answers saved", ctl.Save(c.UserContext()))
}

// POST /api/v1/sessions/:clientId/retry
func (h *Handlers) Retry(c *fiber.Ctx) error {
	ctl, err := h.current(c)
	if ctl == nil {
		return err
	}
	return viewOrError(c, ctl, "Retried", ctl.Retry(c.UserContext()))
}

// PUT /api/v1/sessions/:clientId/template
func (h *Handlers) SwitchTemplate(c *fiber.Ctx) error {
	ctl, err := h.current(c)
	if ctl == nil {
		return err
	}
	var req switchRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	tid, err := uuid.Parse(req.TemplateID)
	if err != nil {
		return response.Error(c, "Invalid template_id", fiber.StatusBadRequest, nil)
	}
	return viewOrError(c, ctl, "Template switched", ctl.SwitchTemplate(c.UserContext(), tid))
}

// PUT /api/v1/sessions/:clientId/layout: commit a finished drag or resize.
func (h *Handlers) CommitLayout(c *fiber.Ctx) error {
	ctl, err := h.current(c)
	if ctl == nil {
		return err
	}
	var req layoutRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	items, err := ctl.CommitLayout(req.Items)
	if err != nil {
		return response.FromError(c, err)
	}
	if items == nil {
		items = []layout.Item{}
	}
	return response.Success(c, "Layout updated", fiber.Map{"items": items}, nil)
}

// POST /api/v1/sessions/:clientId/fields/:fieldId/hide
func (h *Handlers) HideField(c *fiber.Ctx) error {
	ctl, err := h.current(c)
	if ctl == nil {
		return err
	}
	return viewOrError(c, ctl, "Field hidden", ctl.HideField(c.UserContext(), c.Params("fieldId")))
}

// POST /api/v1/sessions/:clientId/fields/:fieldId/show
func (h *Handlers) ShowField(c *fiber.Ctx) error {
	ctl, err := h.current(c)
	if ctl == nil {
		return err
	}
	return viewOrError(c, ctl, "Field shown", ctl.ShowField(c.UserContext(), c.Params("fieldId")))
}

// POST /api/v1/sessions/:clientId/fields: add or edit a question of the active template.
func (h *Handlers) UpsertField(c *fiber.Ctx) error {
	ctl, err := h.current(c)
	if ctl == nil {
		return err
	}
	var req session.FieldInput
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	f, err := ctl.UpsertField(c.UserContext(), req)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Field saved", fiber.Map{"field": f, "view": ctl.View()}, nil)
}

// DELETE /api/v1/sessions/:clientId/fields/:fieldId
func (h *Handlers) RemoveField(c *fiber.Ctx) error {
	ctl, err := h.current(c)
	if ctl == nil {
		return err
	}
	return viewOrError(c, ctl, "Field removed", ctl.RemoveField(c.UserContext(), c.Params("fieldId")))
}

// POST /api/v1/sessions/:clientId/notes
func (h *Handlers) AddNote(c *fiber.Ctx) error {
	ctl, err := h.current(c)
	if ctl == nil {
		return err
	}
	var req noteRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	n, err := ctl.AddNote(c.UserContext(), req.FieldID, req.Text)
	if err != nil {
		return response.FromError(c, err)
	}
	return response.SuccessCreated(c, "Note added", n, nil)
}

// PATCH /api/v1/sessions/:clientId/client: rename the client.
func (h *Handlers) RenameClient(c *fiber.Ctx) error {
	ctl, err := h.current(c)
	if ctl == nil {
		return err
	}
	var req renameRequest
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	_, err = ctl.RenameClient(c.UserContext(), req.Name)
	return viewOrError(c, ctl, "Client renamed", err)
}

// PATCH /api/v1/sessions/:clientId/confidence: stored after a quiet period.
func (h *Handlers) SetConfidence(c *fiber.Ctx) error {
	ctl, err := h.current(c)
	if ctl == nil {
		return err
	}
	var req clients.ConfidenceInput
	if err := c.BodyParser(&req); err != nil {
		return response.Error(c, "Invalid request body", fiber.StatusBadRequest, nil)
	}
	return viewOrError(c, ctl, "Confidence updated", ctl.SetConfidence(req))
}

// DELETE /api/v1/sessions/:clientId/client: delete the client and end the session.
func (h *Handlers) DeleteClient(c *fiber.Ctx) error {
	ctl, err := h.current(c)
	if ctl == nil {
		return err
	}
	if err := ctl.DeleteClient(c.UserContext()); err != nil {
		return response.FromError(c, err)
	}
	return response.Success(c, "Client deleted", fiber.Map{"id": ctl.ClientID()}, nil)
}

// DELETE /api/v1/sessions/:clientId: close with a best-effort final save.
func (h *Handlers) Close(c *fiber.Ctx) error {
	id, err := clientID(c)
	if id == uuid.Nil {
		return err
	}
	actor, _ := middleware.GetActor(c)
	h.Registry.Close(actor, id)
	return response.Success(c, "Session closed", nil, nil)
}
