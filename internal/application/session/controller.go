package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"corkboard-backend/internal/application/clients"
	"corkboard-backend/internal/config"
	"corkboard-backend/internal/domain"
	"corkboard-backend/internal/pkg/debounce"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// finalSaveTimeout bounds the best-effort save made when a session closes.
const finalSaveTimeout = 5 * time.Second

// Controller owns the editing session of one actor on one client.
//
// mu guards every field below it and is never held across a Store or Feed
// call. saveMu serializes saves with each other and with template switches.
// epoch is bumped whenever the active template or the subscription changes;
// async completions compare it and drop themselves when it moved.
type Controller struct {
	actor    domain.Actor
	clientID uuid.UUID
	store    Store
	feed     Feed
	cfg      config.SessionConfig
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	saveMu      sync.Mutex
	savePending atomic.Bool
	editMu      sync.Mutex
	closeOnce   sync.Once
	onClose     func()

	autosave         *debounce.Task
	layoutSave       *debounce.Task
	layoutSavedClear *debounce.Task
	refetchRecord    *debounce.Task
	refetchNotes     *debounce.Task
	confidenceSave   *debounce.Task

	mu            sync.Mutex
	state         State
	cause         errorCause
	err           error
	closing       bool
	epoch         uint64
	client        *domain.Client
	templates     []domain.Template
	active        domain.Template
	hasActive     bool
	answers       domain.Answers
	dirty         map[string]bool
	lastSaved     string
	version       int64
	recordID      uuid.UUID
	overrides     map[string]domain.ClientFieldOverride
	notes         []domain.Note
	saving        bool
	saveErr       string
	savedAt       time.Time
	switchErr     string
	layoutPending map[string]domain.LayoutOverride
	layoutSaved   bool
	layoutErr     string
	confPending   clients.ConfidenceInput
	confErr       string
	unsubscribe   func()
}

// New creates an idle controller. Call Load before using it.
func New(actor domain.Actor, clientID uuid.UUID, store Store, feed Feed, cfg config.SessionConfig) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		actor:         actor,
		clientID:      clientID,
		store:         store,
		feed:          feed,
		cfg:           cfg,
		log:           log.With().Str("client_id", clientID.String()).Str("user_id", actor.UserID.String()).Logger(),
		ctx:           ctx,
		cancel:        cancel,
		state:         StateLoading,
		answers:       domain.Answers{},
		dirty:         make(map[string]bool),
		overrides:     make(map[string]domain.ClientFieldOverride),
		layoutPending: make(map[string]domain.LayoutOverride),
	}
	c.autosave = debounce.New(cfg.AutosaveDelay, c.runAutosave)
	c.layoutSave = debounce.New(cfg.LayoutSaveDelay, c.runLayoutSave)
	c.layoutSavedClear = debounce.New(cfg.LayoutSavedDisplay, c.clearLayoutSaved)
	c.refetchRecord = debounce.New(cfg.RefetchDelay, c.runRefetchRecord)
	c.refetchNotes = debounce.New(cfg.RefetchDelay, c.runRefetchNotes)
	c.confidenceSave = debounce.New(cfg.ConfidenceSaveDelay, c.runConfidenceSave)
	return c
}

// ClientID returns the client this session edits.
func (c *Controller) ClientID() uuid.UUID { return c.clientID }

// Actor returns the profile the session acts as.
func (c *Controller) Actor() domain.Actor { return c.actor }

type loaded struct {
	client    *domain.Client
	templates []domain.Template
	latest    *domain.ClientRecord
	overrides map[string]domain.ClientFieldOverride
	notes     []domain.Note
}

// Load fetches client, templates, latest snapshot, overrides and notes in
// parallel, selects the active template and subscribes to the change feed.
// On failure the session enters StateError and Retry loads again.
func (c *Controller) Load(ctx context.Context) error {
	if !c.actor.Valid() {
		return fmt.Errorf("session: %w", domain.ErrUnauthorized)
	}
	c.mu.Lock()
	if c.closing || c.state == StateClosed {
		c.mu.Unlock()
		return domain.ErrClosed
	}
	if c.state != StateLoading && !(c.state == StateError && c.cause == causeLoad) {
		c.mu.Unlock()
		return domain.ErrBusy
	}
	c.state = StateLoading
	c.err = nil
	c.cause = causeNone
	c.epoch++
	epoch := c.epoch
	c.mu.Unlock()

	data, err := c.fetchAll(ctx)
	var active domain.Template
	if err == nil {
		active, err = c.selectTemplate(ctx, data)
	}

	c.mu.Lock()
	if epoch != c.epoch || c.closing {
		c.mu.Unlock()
		return domain.ErrClosed
	}
	if err != nil {
		c.state = StateError
		c.cause = causeLoad
		c.err = err
		c.mu.Unlock()
		c.log.Warn().Err(err).Msg("session load failed")
		return err
	}
	c.client = data.client
	c.templates = data.templates
	c.overrides = data.overrides
	c.notes = data.notes
	c.setActiveLocked(active, data.latest)
	c.state = StateReady
	c.mu.Unlock()

	c.subscribe(epoch)
	c.log.Info().Str("template_id", active.ID().String()).Msg("session ready")
	return nil
}

func (c *Controller) fetchAll(ctx context.Context) (*loaded, error) {
	var out loaded
	orgID := c.actor.OrgID
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		out.client, err = c.store.GetClient(gctx, orgID, c.clientID)
		return err
	})
	g.Go(func() (err error) {
		out.templates, err = c.store.ListTemplates(gctx, orgID)
		return err
	})
	g.Go(func() (err error) {
		out.latest, err = c.store.LatestRecord(gctx, c.clientID, nil)
		return err
	})
	g.Go(func() (err error) {
		out.overrides, err = c.store.ListOverrides(gctx, c.clientID)
		return err
	})
	g.Go(func() (err error) {
		out.notes, err = c.store.ListNotes(gctx, c.clientID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if out.overrides == nil {
		out.overrides = make(map[string]domain.ClientFieldOverride)
	}
	return &out, nil
}

// selectTemplate prefers the template of the latest snapshot and falls back
// to the first listed one. When falling back, data.latest is replaced by the
// latest snapshot of the chosen template.
func (c *Controller) selectTemplate(ctx context.Context, data *loaded) (domain.Template, error) {
	if len(data.templates) == 0 {
		return domain.Template{}, fmt.Errorf("%w: organization has no templates", domain.ErrNotFound)
	}
	if data.latest != nil {
		for _, t := range data.templates {
			if t.ID() == data.latest.TemplateID {
				return t, nil
			}
		}
	}
	first := data.templates[0]
	if data.latest != nil {
		id := first.ID()
		rec, err := c.store.LatestRecord(ctx, c.clientID, &id)
		if err != nil {
			return domain.Template{}, err
		}
		data.latest = rec
	}
	return first, nil
}

// setActiveLocked installs t and its saved snapshot rec (nil for none) as
// the persisted baseline. Answers are scoped to t.
func (c *Controller) setActiveLocked(t domain.Template, rec *domain.ClientRecord) {
	fields := t.Fields()
	saved := domain.Answers{}
	c.version, c.recordID = 0, uuid.Nil
	if rec != nil {
		saved = domain.MergeAnswers(rec.Answers, nil, fields)
		c.version, c.recordID = rec.Version, rec.ID
	}
	c.active, c.hasActive = t, true
	c.answers = saved.Clone()
	c.dirty = make(map[string]bool)
	c.lastSaved = savedKey(t, saved)
	c.replaceTemplateLocked(t)
}

func (c *Controller) replaceTemplateLocked(t domain.Template) {
	for i := range c.templates {
		if c.templates[i].ID() == t.ID() {
			c.templates[i] = t
			return
		}
	}
	c.templates = append(c.templates, t)
}

// SwitchTemplate makes templateID the active template. The feed and every
// pending debounced action are torn down first; answers typed so far survive
// for fields the new template shares. On failure the previous template stays
// active.
func (c *Controller) SwitchTemplate(ctx context.Context, templateID uuid.UUID) error {
	c.mu.Lock()
	if err := c.readyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	c.mu.Lock()
	if err := c.readyLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.active.ID() == templateID {
		c.mu.Unlock()
		return nil
	}
	prevState, prevCause := c.state, c.cause
	c.state = StateSwitching
	c.switchErr = ""
	c.epoch++
	epoch := c.epoch
	heldLayout := c.layoutPending
	c.layoutPending = make(map[string]domain.LayoutOverride)
	c.mu.Unlock()

	c.teardownRealtime()
	c.autosave.Cancel()
	c.layoutSave.Cancel()
	c.refetchRecord.Cancel()
	c.refetchNotes.Cancel()

	var (
		next      domain.Template
		rec       *domain.ClientRecord
		overrides map[string]domain.ClientFieldOverride
		notes     []domain.Note
	)
	orgID := c.actor.OrgID
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		next, err = c.store.GetTemplate(gctx, orgID, templateID)
		return err
	})
	g.Go(func() (err error) {
		rec, err = c.store.LatestRecord(gctx, c.clientID, &templateID)
		return err
	})
	g.Go(func() (err error) {
		overrides, err = c.store.ListOverrides(gctx, c.clientID)
		return err
	})
	g.Go(func() (err error) {
		notes, err = c.store.ListNotes(gctx, c.clientID)
		return err
	})
	err := g.Wait()

	c.mu.Lock()
	if epoch != c.epoch || c.closing {
		c.mu.Unlock()
		return domain.ErrClosed
	}
	if err != nil {
		c.state, c.cause = prevState, prevCause
		c.switchErr = err.Error()
		dirty := len(c.dirty) > 0
		layoutDirty := c.restoreLayoutLocked(heldLayout)
		c.mu.Unlock()
		c.log.Warn().Err(err).Str("template_id", templateID.String()).Msg("template switch failed, keeping previous template")
		c.subscribe(epoch)
		c.refetchRecord.Trigger()
		if dirty {
			c.autosave.Trigger()
		}
		if layoutDirty {
			c.layoutSave.Trigger()
		}
		return err
	}

	current := c.answers
	c.setActiveLocked(next, rec)
	saved := c.answers
	merged := domain.MergeAnswers(saved, current, next.Fields())
	for id, v := range merged {
		if old, ok := saved[id]; !ok || !domain.ValueEqual(old, v) {
			c.dirty[id] = true
		}
	}
	c.answers = merged
	if overrides != nil {
		c.overrides = overrides
	}
	layoutDirty := c.restoreLayoutLocked(heldLayout)
	c.notes = notes
	c.state = StateReady
	c.cause = causeNone
	if prevCause == causeAutosave {
		c.saveErr = ""
	}
	dirty := len(c.dirty) > 0
	c.mu.Unlock()

	c.subscribe(epoch)
	if dirty {
		c.autosave.Trigger()
	}
	if layoutDirty {
		c.layoutSave.Trigger()
	}
	c.log.Info().Str("template_id", templateID.String()).Msg("template switched")
	return nil
}

// restoreLayoutLocked puts back layout edits held across a switch, keeping
// any newer pending entry, and re-applies them to the local overrides.
func (c *Controller) restoreLayoutLocked(batch map[string]domain.LayoutOverride) bool {
	for id, lo := range batch {
		if _, newer := c.layoutPending[id]; newer {
			continue
		}
		c.layoutPending[id] = lo
		ov := c.overrides[id]
		ov.ClientID, ov.FieldID = c.clientID, id
		x, y, w, h, o := lo.X, lo.Y, lo.W, lo.H, lo.Order
		ov.X, ov.Y, ov.W, ov.H, ov.Order = &x, &y, &w, &h, &o
		c.overrides[id] = ov
	}
	return len(c.layoutPending) > 0
}

// Retry reloads after a failed load; otherwise it saves now.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	reload := c.state == StateError && c.cause == causeLoad
	layout := len(c.layoutPending) > 0 && c.layoutErr != ""
	c.mu.Unlock()
	if reload {
		return c.Load(ctx)
	}
	if layout {
		c.layoutSave.Trigger()
	}
	return c.Save(ctx)
}

// Close tears the session down and makes a best-effort final save of
// pending answers, layout and confidence. It is idempotent.
func (c *Controller) Close() {
	c.shutdown(true)
}

func (c *Controller) shutdown(finalSave bool) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.epoch++
		c.mu.Unlock()

		c.teardownRealtime()
		c.refetchRecord.Stop()
		c.refetchNotes.Stop()
		c.layoutSavedClear.Stop()
		c.autosave.Stop()
		if finalSave {
			c.layoutSave.Flush()
			c.confidenceSave.Flush()
		}
		c.layoutSave.Stop()
		c.confidenceSave.Stop()

		if finalSave {
			ctx, cancel := context.WithTimeout(c.ctx, finalSaveTimeout)
			if err := c.save(ctx, saveFinal); err != nil && !errors.Is(err, domain.ErrNotReady) && !errors.Is(err, domain.ErrBusy) {
				c.log.Warn().Err(err).Msg("final save failed")
			}
			cancel()
		}
		c.cancel()

		c.mu.Lock()
		c.state = StateClosed
		onClose := c.onClose
		c.mu.Unlock()
		if onClose != nil {
			onClose()
		}
	})
}
