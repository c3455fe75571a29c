package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"corkboard-backend/internal/application/clients"
	"corkboard-backend/internal/domain"
	"corkboard-backend/internal/pkg/layout"

	"github.com/google/uuid"
)

// CommitLayout records a finished drag or resize. Items use 0-based grid
// cells; they are packed first when compaction is on. The overrides are
// applied locally at once and stored after a quiet period.
func (c *Controller) CommitLayout(items []layout.Item) ([]layout.Item, error) {
	c.mu.Lock()
	if err := c.readyLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	known := make([]layout.Item, 0, len(items))
	for _, it := range items {
		if _, ok := c.active.Field(it.ID); ok {
			it.W, it.H = layout.ClampSize(it.W, it.H)
			known = append(known, it)
		}
	}
	if c.cfg.Compact {
		known = layout.Normalize(known, c.cfg.GridCols)
	}
	sort.SliceStable(known, func(a, b int) bool {
		if known[a].Y != known[b].Y {
			return known[a].Y < known[b].Y
		}
		return known[a].X < known[b].X
	})
	for order, it := range known {
		lo := domain.LayoutOverride{X: it.X + 1, Y: it.Y + 1, W: it.W, H: it.H, Order: order}
		c.layoutPending[it.ID] = lo
		ov := c.overrides[it.ID]
		ov.ClientID, ov.FieldID = c.clientID, it.ID
		x, y, w, h, o := lo.X, lo.Y, lo.W, lo.H, lo.Order
		ov.X, ov.Y, ov.W, ov.H, ov.Order = &x, &y, &w, &h, &o
		c.overrides[it.ID] = ov
	}
	c.layoutSaved = false
	c.mu.Unlock()

	if len(known) > 0 {
		c.layoutSave.Trigger()
	}
	return known, nil
}

func (c *Controller) runLayoutSave() {
	c.mu.Lock()
	if len(c.layoutPending) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.layoutPending
	c.layoutPending = make(map[string]domain.LayoutOverride)
	c.mu.Unlock()

	err := c.store.UpsertLayout(c.ctx, c.clientID, batch)

	c.mu.Lock()
	if err != nil {
		for id, lo := range batch {
			if _, newer := c.layoutPending[id]; !newer {
				c.layoutPending[id] = lo
			}
		}
		c.layoutErr = err.Error()
		c.mu.Unlock()
		c.log.Warn().Err(err).Int("fields", len(batch)).Msg("layout save failed")
		return
	}
	c.layoutErr = ""
	c.layoutSaved = true
	c.mu.Unlock()
	c.layoutSavedClear.Trigger()
}

func (c *Controller) clearLayoutSaved() {
	c.mu.Lock()
	c.layoutSaved = false
	c.mu.Unlock()
}

// HideField hides a field on this client's board.
func (c *Controller) HideField(ctx context.Context, fieldID string) error {
	return c.setHidden(ctx, fieldID, true)
}

// ShowField reveals a hidden field again.
func (c *Controller) ShowField(ctx context.Context, fieldID string) error {
	return c.setHidden(ctx, fieldID, false)
}

func (c *Controller) setHidden(ctx context.Context, fieldID string, hidden bool) error {
	c.mu.Lock()
	if err := c.readyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if _, ok := c.active.Field(fieldID); !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: field %q", domain.ErrNotFound, fieldID)
	}
	c.mu.Unlock()

	ov, err := c.store.SetHidden(ctx, c.clientID, fieldID, hidden)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.overrides[fieldID]
	if !ok {
		cur = *ov
	}
	cur.Hidden = ov.Hidden
	c.overrides[fieldID] = cur
	return nil
}

// AddNote attaches a note to a field of the client.
func (c *Controller) AddNote(ctx context.Context, fieldID, text string) (*domain.Note, error) {
	c.mu.Lock()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	n, err := c.store.AddNote(ctx, c.actor, c.clientID, fieldID, text)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.upsertNoteLocked(*n)
	c.mu.Unlock()
	return n, nil
}

// RenameClient renames the client.
func (c *Controller) RenameClient(ctx context.Context, name string) (*domain.Client, error) {
	c.mu.Lock()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mu.Unlock()

	cl, err := c.store.RenameClient(ctx, c.actor.OrgID, c.clientID, name)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.client != nil {
		c.client.Name = cl.Name
		c.client.UpdatedAt = cl.UpdatedAt
	} else {
		c.client = cl
	}
	c.mu.Unlock()
	return cl, nil
}

// SetConfidence updates score and/or note locally and stores them after a
// quiet period. Nil values are left unchanged.
func (c *Controller) SetConfidence(in clients.ConfidenceInput) error {
	c.mu.Lock()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if in.Score != nil {
		s := domain.ClampConfidence(*in.Score)
		c.confPending.Score = &s
		if c.client != nil {
			c.client.ConfidenceScore = s
		}
	}
	if in.Note != nil {
		n := *in.Note
		c.confPending.Note = &n
		if c.client != nil {
			c.client.ConfidenceNote = n
		}
	}
	c.mu.Unlock()
	c.confidenceSave.Trigger()
	return nil
}

func (c *Controller) runConfidenceSave() {
	c.mu.Lock()
	in := c.confPending
	c.confPending = clients.ConfidenceInput{}
	c.mu.Unlock()
	if in.Score == nil && in.Note == nil {
		return
	}

	_, err := c.store.UpdateConfidence(c.ctx, c.actor.OrgID, c.clientID, in)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if c.confPending.Score == nil {
			c.confPending.Score = in.Score
		}
		if c.confPending.Note == nil {
			c.confPending.Note = in.Note
		}
		c.confErr = err.Error()
		c.log.Warn().Err(err).Msg("confidence save failed")
		return
	}
	c.confErr = ""
}

// FieldInput describes a question added to or edited in the active template.
// An empty ID adds a new question.
type FieldInput struct {
	ID      string           `json:"id"`
	Label   string           `json:"label"`
	Type    domain.FieldType `json:"type"`
	Options []string         `json:"options"`
}

// UpsertField adds or edits a question of the active template. New
// questions get a fresh id, the default size, a row below the others and
// the next order.
func (c *Controller) UpsertField(ctx context.Context, in FieldInput) (domain.Field, error) {
	in.Label = strings.TrimSpace(in.Label)
	if in.Label == "" || !in.Type.Valid() {
		return domain.Field{}, fmt.Errorf("%w: field needs a label and a known type", domain.ErrValidation)
	}
	c.editMu.Lock()
	defer c.editMu.Unlock()

	c.mu.Lock()
	if err := c.readyLocked(); err != nil {
		c.mu.Unlock()
		return domain.Field{}, err
	}
	tmpl := c.active
	c.mu.Unlock()

	fields := tmpl.Fields()
	id := strings.TrimSpace(in.ID)
	if id == "" {
		bottom := domain.DefaultFieldY
		for _, f := range fields {
			if f.Y+f.H > bottom {
				bottom = f.Y + f.H
			}
		}
		id = uuid.NewString()
		fields = append(fields, domain.Field{
			ID: id, Label: in.Label, Type: in.Type, Options: in.Options,
			X: domain.DefaultFieldX, Y: bottom, W: domain.DefaultFieldW, H: domain.DefaultFieldH,
			Order: len(fields),
		})
	} else {
		found := false
		for i := range fields {
			if fields[i].ID == id {
				fields[i].Label, fields[i].Type, fields[i].Options = in.Label, in.Type, in.Options
				found = true
				break
			}
		}
		if !found {
			return domain.Field{}, fmt.Errorf("%w: field %q", domain.ErrNotFound, id)
		}
	}

	next, err := c.replaceFields(ctx, tmpl, fields)
	if err != nil {
		return domain.Field{}, err
	}
	f, ok := next.Field(id)
	if !ok {
		return domain.Field{}, fmt.Errorf("%w: field %q was rejected", domain.ErrValidation, id)
	}
	return f, nil
}

// RemoveField deletes a question from the active template together with
// its local answer.
func (c *Controller) RemoveField(ctx context.Context, fieldID string) error {
	c.editMu.Lock()
	defer c.editMu.Unlock()

	c.mu.Lock()
	if err := c.readyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	tmpl := c.active
	c.mu.Unlock()

	fields := tmpl.Fields()
	kept := fields[:0]
	for _, f := range fields {
		if f.ID != fieldID {
			kept = append(kept, f)
		}
	}
	if len(kept) == len(fields) {
		return fmt.Errorf("%w: field %q", domain.ErrNotFound, fieldID)
	}
	_, err := c.replaceFields(ctx, tmpl, kept)
	return err
}

// replaceFields stores the whole field list of tmpl and installs the
// normalized result when tmpl is still active.
func (c *Controller) replaceFields(ctx context.Context, tmpl domain.Template, fields []domain.Field) (domain.Template, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return domain.Template{}, err
	}
	next, _, err := c.store.ReplaceFields(ctx, c.actor.OrgID, tmpl.ID(), raw)
	if err != nil {
		return domain.Template{}, err
	}

	c.mu.Lock()
	c.replaceTemplateLocked(next)
	changed := false
	if c.hasActive && c.active.ID() == next.ID() {
		c.active = next
		scoped := domain.MergeAnswers(nil, c.answers, next.Fields())
		changed = len(scoped) != len(c.answers)
		c.answers = scoped
		for id := range c.dirty {
			if _, ok := next.Field(id); !ok {
				delete(c.dirty, id)
			}
		}
	}
	c.mu.Unlock()
	if changed {
		c.autosave.Trigger()
	}
	return next, nil
}

// DeleteClient removes the client with all its data and closes the session
// without a final save. It is refused while switching templates.
func (c *Controller) DeleteClient(ctx context.Context) error {
	c.mu.Lock()
	if c.closing || c.state == StateClosed {
		c.mu.Unlock()
		return domain.ErrClosed
	}
	if c.state == StateSwitching {
		c.mu.Unlock()
		return domain.ErrBusy
	}
	c.mu.Unlock()

	c.autosave.Cancel()
	c.saveMu.Lock()
	err := c.store.DeleteClient(ctx, c.actor.OrgID, c.clientID)
	c.saveMu.Unlock()
	if err != nil {
		return err
	}
	c.shutdown(false)
	return nil
}
