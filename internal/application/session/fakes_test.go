package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"corkboard-backend/internal/application/clients"
	"corkboard-backend/internal/config"
	"corkboard-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu        sync.Mutex
	client    domain.Client
	templates []domain.Template
	records   []domain.ClientRecord
	saves     []domain.ClientRecord
	overrides map[string]domain.ClientFieldOverride
	notes     []domain.Note

	loadErr      error
	saveErr      error
	templateErr  error
	saveGate     chan struct{}
	templateGate chan struct{}

	inFlight    int
	maxInFlight int
	latestCalls int
	notesCalls  int
	layouts     []map[string]domain.LayoutOverride
	confidence  []clients.ConfidenceInput
	deleted     bool
}

func (s *fakeStore) GetClient(ctx context.Context, orgID, clientID uuid.UUID) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client.OrgID != orgID {
		return nil, domain.ErrUnauthorized
	}
	c := s.client
	return &c, nil
}

func (s *fakeStore) ListTemplates(ctx context.Context, orgID uuid.UUID) ([]domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Template(nil), s.templates...), nil
}

func (s *fakeStore) GetTemplate(ctx context.Context, orgID, templateID uuid.UUID) (domain.Template, error) {
	s.mu.Lock()
	gate, err := s.templateGate, s.templateErr
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if err != nil {
		return domain.Template{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.templates {
		if t.ID() == templateID {
			return t, nil
		}
	}
	return domain.Template{}, domain.ErrNotFound
}

func (s *fakeStore) ReplaceFields(ctx context.Context, orgID, templateID uuid.UUID, fields json.RawMessage) (domain.Template, []domain.DroppedField, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.templates {
		if t.ID() == templateID {
			raw := t.Raw()
			raw.Fields = fields
			next, dropped, err := domain.NormalizeTemplate(raw)
			if err != nil {
				return domain.Template{}, nil, err
			}
			s.templates[i] = next
			return next, dropped, nil
		}
	}
	return domain.Template{}, nil, domain.ErrNotFound
}

func (s *fakeStore) LatestRecord(ctx context.Context, clientID uuid.UUID, templateID *uuid.UUID) (*domain.ClientRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latestCalls++
	var best *domain.ClientRecord
	for i := range s.records {
		r := s.records[i]
		if templateID != nil && r.TemplateID != *templateID {
			continue
		}
		if best == nil || r.Version > best.Version {
			best = &r
		}
	}
	return best, nil
}

func (s *fakeStore) SaveRecord(ctx context.Context, actor domain.Actor, in domain.SaveRecordInput) (*domain.ClientRecord, error) {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	gate, err := s.saveGate, s.saveErr
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight--
	if err != nil {
		return nil, err
	}
	rec := s.appendLocked(in.TemplateID, domain.CoerceAnswers(in.Answers, in.Fields))
	rec.Score = in.Score
	rec.Matches = in.Matches
	s.records[len(s.records)-1] = rec
	s.saves = append(s.saves, rec)
	return &rec, nil
}

func (s *fakeStore) ListOverrides(ctx context.Context, clientID uuid.UUID) (map[string]domain.ClientFieldOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]domain.ClientFieldOverride, len(s.overrides))
	for k, v := range s.overrides {
		out[k] = v
	}
	return out, nil
}

func (s *fakeStore) SetHidden(ctx context.Context, clientID uuid.UUID, fieldID string, hidden bool) (*domain.ClientFieldOverride, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ov := s.overrides[fieldID]
	ov.ClientID, ov.FieldID, ov.Hidden = clientID, fieldID, hidden
	s.overrides[fieldID] = ov
	return &ov, nil
}

func (s *fakeStore) UpsertLayout(ctx context.Context, clientID uuid.UUID, layout map[string]domain.LayoutOverride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layouts = append(s.layouts, layout)
	return nil
}

func (s *fakeStore) ListNotes(ctx context.Context, clientID uuid.UUID) ([]domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notesCalls++
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return append([]domain.Note(nil), s.notes...), nil
}

func (s *fakeStore) AddNote(ctx context.Context, actor domain.Actor, clientID uuid.UUID, fieldID, text string) (*domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := domain.Note{ID: uuid.New(), ClientID: clientID, FieldID: fieldID, Text: text, CreatedAt: time.Now()}
	s.notes = append([]domain.Note{n}, s.notes...)
	return &n, nil
}

func (s *fakeStore) RenameClient(ctx context.Context, orgID, clientID uuid.UUID, name string) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.client.Name = name
	c := s.client
	return &c, nil
}

func (s *fakeStore) UpdateConfidence(ctx context.Context, orgID, clientID uuid.UUID, in clients.ConfidenceInput) (*domain.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confidence = append(s.confidence, in)
	c := s.client
	return &c, nil
}

func (s *fakeStore) DeleteClient(ctx context.Context, orgID, clientID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = true
	return nil
}

func (s *fakeStore) appendLocked(templateID uuid.UUID, answers domain.Answers) domain.ClientRecord {
	var max int64
	for _, r := range s.records {
		if r.Version > max {
			max = r.Version
		}
	}
	rec := domain.ClientRecord{
		ID: uuid.New(), ClientID: s.client.ID, TemplateID: templateID,
		Version: max + 1, Answers: answers, CreatedAt: time.Now(),
	}
	s.records = append(s.records, rec)
	return rec
}

func (s *fakeStore) addRecord(templateID uuid.UUID, answers domain.Answers) domain.ClientRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(templateID, answers)
}

func (s *fakeStore) saved() []domain.ClientRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ClientRecord(nil), s.saves...)
}

func (s *fakeStore) set(fn func(s *fakeStore)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *fakeStore) get(fn func(s *fakeStore) int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s)
}

type fakeFeed struct {
	mu           sync.Mutex
	onRecord     func(domain.RecordChange)
	onNote       func(domain.NoteChange)
	subscribes   int
	unsubscribes int
	err          error
}

func (f *fakeFeed) Subscribe(ctx context.Context, clientID uuid.UUID, onRecord func(domain.RecordChange), onNote func(domain.NoteChange)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.subscribes++
	f.onRecord, f.onNote = onRecord, onNote
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.unsubscribes++
			f.onRecord, f.onNote = nil, nil
		})
	}, nil
}

func (f *fakeFeed) emitRecord(ch domain.RecordChange) {
	f.mu.Lock()
	h := f.onRecord
	f.mu.Unlock()
	if h != nil {
		h(ch)
	}
}

func (f *fakeFeed) emitNote(ch domain.NoteChange) {
	f.mu.Lock()
	h := f.onNote
	f.mu.Unlock()
	if h != nil {
		h(ch)
	}
}

func (f *fakeFeed) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes, f.unsubscribes
}

type fixture struct {
	actor domain.Actor
	store *fakeStore
	feed  *fakeFeed
	a, b  domain.Template
}

func mkTemplate(t *testing.T, orgID uuid.UUID, name string, fields ...map[string]interface{}) domain.Template {
	t.Helper()
	b, err := json.Marshal(fields)
	require.NoError(t, err)
	tmpl, _, err := domain.NormalizeTemplate(domain.RawTemplate{ID: uuid.New(), OrgID: orgID, Name: name, Fields: b})
	require.NoError(t, err)
	return tmpl
}

func textField(id string) map[string]interface{} {
	return map[string]interface{}{"id": id, "label": id, "type": "text"}
}

// newFixture builds an org with template A {a, b} and template B {a, c}.
func newFixture(t *testing.T) *fixture {
	orgID := uuid.New()
	fx := &fixture{
		actor: domain.Actor{UserID: uuid.New(), OrgID: orgID, Role: "owner"},
		feed:  &fakeFeed{},
	}
	fx.a = mkTemplate(t, orgID, "A", textField("a"), textField("b"))
	fx.b = mkTemplate(t, orgID, "B", textField("a"), textField("c"))
	fx.store = &fakeStore{
		client:    domain.Client{ID: uuid.New(), OrgID: orgID, Name: "Acme", ConfidenceScore: 50},
		templates: []domain.Template{fx.a, fx.b},
		overrides: make(map[string]domain.ClientFieldOverride),
	}
	return fx
}

func testConfig() config.SessionConfig {
	return config.SessionConfig{
		AutosaveDelay:       20 * time.Millisecond,
		LayoutSaveDelay:     20 * time.Millisecond,
		LayoutSavedDisplay:  60 * time.Millisecond,
		RefetchDelay:        10 * time.Millisecond,
		ConfidenceSaveDelay: 20 * time.Millisecond,
		GridCols:            10,
		Compact:             true,
	}
}

func (fx *fixture) open(t *testing.T, cfg config.SessionConfig) *Controller {
	t.Helper()
	c := New(fx.actor, fx.store.client.ID, fx.store, fx.feed, cfg)
	require.NoError(t, c.Load(context.Background()))
	t.Cleanup(c.Close)
	return c
}
