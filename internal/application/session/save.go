package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"corkboard-backend/internal/application/recommendations"
	"corkboard-backend/internal/domain"
)

type saveMode int

const (
	saveAuto saveMode = iota
	saveManual
	saveFinal
)

const autosaveFailedMsg = "Could not autosave"

// SetAnswer sets one answer and schedules an autosave. A nil value is kept
// as an explicit empty answer.
func (c *Controller) SetAnswer(fieldID string, value interface{}) error {
	return c.SetAnswers(domain.Answers{fieldID: value})
}

// SetAnswers sets several answers at once and schedules an autosave. Every
// id must belong to the active template.
func (c *Controller) SetAnswers(values domain.Answers) error {
	c.mu.Lock()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	for id := range values {
		if _, ok := c.active.Field(strings.TrimSpace(id)); !ok {
			c.mu.Unlock()
			return fmt.Errorf("%w: unknown field %q", domain.ErrValidation, id)
		}
	}
	for id, v := range values.Clone() {
		c.answers[strings.TrimSpace(id)] = v
		c.dirty[strings.TrimSpace(id)] = true
	}
	switching := c.state == StateSwitching
	c.mu.Unlock()

	if !switching {
		c.autosave.Trigger()
	}
	return nil
}

// Save persists the current answers now. It waits for a save already in
// flight and is refused while switching templates.
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	err := c.readyLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	c.autosave.Cancel()
	return c.save(ctx, saveManual)
}

func (c *Controller) runAutosave() {
	if err := c.save(c.ctx, saveAuto); err != nil {
		c.log.Warn().Err(err).Msg("autosave failed")
	}
}

// save runs one snapshot write under saveMu. Autosave does not wait: when a
// save is in flight it leaves a pending mark and the holder runs once more
// after it finishes, so the last local answers always end up persisted.
func (c *Controller) save(ctx context.Context, mode saveMode) error {
	if mode == saveAuto {
		c.savePending.Store(true)
		if !c.saveMu.TryLock() {
			return nil
		}
	} else {
		c.saveMu.Lock()
	}
	for {
		c.savePending.Store(false)
		err := c.saveOnce(ctx, mode)
		c.saveMu.Unlock()
		if err != nil || !c.savePending.Load() {
			return err
		}
		if !c.saveMu.TryLock() {
			return nil
		}
		if mode == saveManual {
			mode = saveAuto
		}
	}
}

func (c *Controller) saveOnce(ctx context.Context, mode saveMode) error {
	c.mu.Lock()
	if mode == saveFinal {
		if !c.hasActive || (c.state != StateReady && !(c.state == StateError && c.cause == causeAutosave)) {
			c.mu.Unlock()
			return domain.ErrNotReady
		}
	} else if err := c.readyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	tmpl := c.active
	fields := tmpl.Fields()
	answers := domain.MergeAnswers(nil, c.answers, fields)
	key := savedKey(tmpl, answers)
	if mode != saveManual && key == c.lastSaved {
		c.mu.Unlock()
		return nil
	}
	epoch := c.epoch
	c.saving = true
	c.mu.Unlock()

	recs := recommendations.Compute(answers, tmpl.LabelMap())
	rec, err := c.store.SaveRecord(ctx, c.actor, domain.SaveRecordInput{
		ClientID:   c.clientID,
		TemplateID: tmpl.ID(),
		Answers:    answers,
		Score:      recommendations.Score(recs),
		Matches:    recs,
		Fields:     fields,
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.saving = false
	if err != nil {
		if mode == saveAuto {
			c.saveErr = autosaveFailedMsg
			if c.state == StateReady {
				c.state = StateError
				c.cause = causeAutosave
				c.err = err
			}
		} else {
			c.saveErr = err.Error()
		}
		return err
	}
	if c.state == StateError && c.cause == causeAutosave {
		c.state, c.cause, c.err = StateReady, causeNone, nil
	}
	c.saveErr = ""
	c.savedAt = time.Now()
	if epoch != c.epoch || c.active.ID() != tmpl.ID() {
		return nil
	}
	if rec.Version > c.version {
		c.version, c.recordID = rec.Version, rec.ID
	}
	c.lastSaved = key
	for id := range c.dirty {
		if domain.ValueEqual(c.answers[id], answers[id]) {
			delete(c.dirty, id)
		}
	}
	return nil
}
