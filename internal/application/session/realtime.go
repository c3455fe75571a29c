package session

import (
	"sort"

	"corkboard-backend/internal/domain"

	"github.com/google/uuid"
)

// subscribe attaches the change feed for epoch. A feed that cannot be
// reached leaves the session usable without live updates.
func (c *Controller) subscribe(epoch uint64) {
	if c.feed == nil {
		return
	}
	unsub, err := c.feed.Subscribe(c.ctx, c.clientID,
		func(ch domain.RecordChange) { c.onRecord(epoch, ch) },
		func(ch domain.NoteChange) { c.onNote(epoch, ch) },
	)
	if err != nil {
		c.log.Warn().Err(err).Msg("realtime subscribe failed")
		return
	}
	c.mu.Lock()
	if epoch != c.epoch || c.closing {
		c.mu.Unlock()
		unsub()
		return
	}
	c.unsubscribe = unsub
	c.mu.Unlock()
}

// teardownRealtime detaches the feed. Safe to call repeatedly. It must run
// without mu held since unsubscribing waits for in-flight handlers.
func (c *Controller) teardownRealtime() {
	c.mu.Lock()
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (c *Controller) onRecord(epoch uint64, ch domain.RecordChange) {
	c.mu.Lock()
	if epoch != c.epoch || c.closing || !c.hasActive {
		c.mu.Unlock()
		return
	}
	if rec := ch.New; rec != nil {
		if rec.ID == c.recordID {
			c.mu.Unlock()
			return
		}
		if rec.TemplateID != uuid.Nil && rec.TemplateID != c.active.ID() {
			c.mu.Unlock()
			return
		}
		if ch.HasAnswers() && c.applyRemoteLocked(rec) {
			c.mu.Unlock()
			return
		}
	}
	c.mu.Unlock()
	c.refetchRecord.Trigger()
}

// applyRemoteLocked takes rec as the new baseline when it belongs to the
// active template and is strictly newer than the held snapshot. Fields
// edited locally since the last save keep their local value.
func (c *Controller) applyRemoteLocked(rec *domain.ClientRecord) bool {
	if rec.TemplateID != c.active.ID() || rec.Version <= c.version || rec.Answers == nil {
		return false
	}
	fields := c.active.Fields()
	saved := domain.MergeAnswers(rec.Answers, nil, fields)
	local := make(domain.Answers, len(c.dirty))
	for id := range c.dirty {
		if v, ok := c.answers[id]; ok {
			local[id] = v
		}
	}
	c.answers = domain.MergeAnswers(saved, local, fields)
	c.version, c.recordID = rec.Version, rec.ID
	c.lastSaved = savedKey(c.active, saved)
	return true
}

func (c *Controller) runRefetchRecord() {
	c.mu.Lock()
	if c.closing || !c.hasActive || c.state == StateSwitching {
		c.mu.Unlock()
		return
	}
	epoch := c.epoch
	templateID := c.active.ID()
	c.mu.Unlock()

	rec, err := c.store.LatestRecord(c.ctx, c.clientID, &templateID)
	if err != nil {
		c.log.Warn().Err(err).Msg("record refetch failed")
		return
	}
	if rec == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || c.closing {
		return
	}
	c.applyRemoteLocked(rec)
}

func (c *Controller) onNote(epoch uint64, ch domain.NoteChange) {
	n, ok := ch.Note()
	if !ok || n.ClientID != c.clientID {
		c.refetchNotes.Trigger()
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || c.closing {
		return
	}
	if ch.Type == domain.ChangeDelete {
		c.removeNoteLocked(n.ID)
		return
	}
	c.upsertNoteLocked(*n)
}

func (c *Controller) upsertNoteLocked(n domain.Note) {
	for i := range c.notes {
		if c.notes[i].ID == n.ID {
			c.notes[i] = n
			return
		}
	}
	c.notes = append(c.notes, n)
	sort.SliceStable(c.notes, func(a, b int) bool {
		return c.notes[a].CreatedAt.After(c.notes[b].CreatedAt)
	})
}

func (c *Controller) removeNoteLocked(id uuid.UUID) {
	out := c.notes[:0]
	for _, n := range c.notes {
		if n.ID != id {
			out = append(out, n)
		}
	}
	c.notes = out
}

func (c *Controller) runRefetchNotes() {
	c.mu.Lock()
	if c.closing || c.state == StateSwitching {
		c.mu.Unlock()
		return
	}
	epoch := c.epoch
	c.mu.Unlock()

	notes, err := c.store.ListNotes(c.ctx, c.clientID)
	if err != nil {
		c.log.Warn().Err(err).Msg("notes refetch failed")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch || c.closing {
		return
	}
	c.notes = notes
}
