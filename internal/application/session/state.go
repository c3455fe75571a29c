// Package session keeps one client's board consistent while a user edits it:
// template, answers, layout overrides, notes and the live change feed.
package session

import (
	"sort"
	"time"

	"corkboard-backend/internal/application/recommendations"
	"corkboard-backend/internal/domain"
)

// State is the lifecycle position of a Controller.
type State string

const (
	StateLoading   State = "loading"
	StateReady     State = "ready"
	StateSwitching State = "switching"
	StateError     State = "error"
	StateClosed    State = "closed"
)

type errorCause int

const (
	causeNone errorCause = iota
	causeLoad
	causeAutosave
)

// Status carries the transient indicators shown around the board.
type Status struct {
	Saving          bool       `json:"saving"`
	Dirty           bool       `json:"dirty"`
	SaveError       string     `json:"save_error,omitempty"`
	LastSavedAt     *time.Time `json:"last_saved_at,omitempty"`
	Switching       bool       `json:"switching"`
	SwitchError     string     `json:"switch_error,omitempty"`
	LayoutSaved     bool       `json:"layout_saved"`
	LayoutError     string     `json:"layout_error,omitempty"`
	ConfidenceError string     `json:"confidence_error,omitempty"`
	Live            bool       `json:"live"`
}

// View is a consistent snapshot of a session.
type View struct {
	State           State                    `json:"state"`
	Error           string                   `json:"error,omitempty"`
	Status          Status                   `json:"status"`
	Client          *domain.Client           `json:"client"`
	ConfidenceBand  string                   `json:"confidence_band,omitempty"`
	Templates       []domain.Template        `json:"templates"`
	Template        *domain.Template         `json:"template"`
	Fields          []domain.Field           `json:"fields"`
	Hidden          []string                 `json:"hidden"`
	Answers         domain.Answers           `json:"answers"`
	Version         int64                    `json:"version"`
	Notes           map[string][]domain.Note `json:"notes"`
	Recommendations []domain.Recommendation  `json:"recommendations"`
	Score           int                      `json:"score"`
}

// View returns a snapshot of the session. It never blocks on I/O.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		State:     c.state,
		Templates: append([]domain.Template(nil), c.templates...),
		Answers:   c.answers.Clone(),
		Version:   c.version,
		Notes:     domain.NotesByField(c.notes),
		Hidden:    []string{},
		Fields:    []domain.Field{},
		Status: Status{
			Saving:          c.saving,
			Dirty:           len(c.dirty) > 0,
			SaveError:       c.saveErr,
			Switching:       c.state == StateSwitching,
			SwitchError:     c.switchErr,
			LayoutSaved:     c.layoutSaved,
			LayoutError:     c.layoutErr,
			ConfidenceError: c.confErr,
			Live:            c.unsubscribe != nil,
		},
	}
	if c.err != nil {
		v.Error = c.err.Error()
	}
	if !c.savedAt.IsZero() {
		t := c.savedAt
		v.Status.LastSavedAt = &t
	}
	if c.client != nil {
		cl := *c.client
		v.Client = &cl
		v.ConfidenceBand = domain.ConfidenceBand(cl.ConfidenceScore)
	}
	if c.hasActive {
		t := c.active
		v.Template = &t
		fields, hidden := domain.ApplyOverrides(t.Fields(), c.overrides)
		v.Fields = domain.VisibleFields(fields, hidden)
		for id := range hidden {
			v.Hidden = append(v.Hidden, id)
		}
		sort.Strings(v.Hidden)
		v.Recommendations = recommendations.Compute(v.Answers, t.LabelMap())
		v.Score = recommendations.Score(v.Recommendations)
	}
	if v.Answers == nil {
		v.Answers = domain.Answers{}
	}
	return v
}

// State reports the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// readyLocked reports whether edits and saves are allowed right now.
func (c *Controller) readyLocked() error {
	switch {
	case c.closing || c.state == StateClosed:
		return domain.ErrClosed
	case c.state == StateSwitching:
		return domain.ErrBusy
	case c.state == StateReady:
		return nil
	case c.state == StateError && c.cause == causeAutosave:
		return nil
	default:
		return domain.ErrNotReady
	}
}

// editableLocked is readyLocked that also accepts answer edits while switching.
func (c *Controller) editableLocked() error {
	if c.state == StateSwitching && !c.closing {
		return nil
	}
	return c.readyLocked()
}

func savedKey(t domain.Template, answers domain.Answers) string {
	return t.ID().String() + ":" + answers.Fingerprint()
}
