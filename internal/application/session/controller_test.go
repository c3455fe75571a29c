package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"corkboard-backend/internal/application/clients"
	"corkboard-backend/internal/domain"
	"corkboard-backend/internal/pkg/layout"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const wait = time.Second
const tick = 5 * time.Millisecond

func TestLoad_SelectsTemplateOfLatestRecord(t *testing.T) {
	fx := newFixture(t)
	fx.store.addRecord(fx.b.ID(), domain.Answers{"a": "1", "c": "2", "gone": "x"})

	c := fx.open(t, testConfig())
	v := c.View()
	assert.Equal(t, StateReady, v.State)
	require.NotNil(t, v.Template)
	assert.Equal(t, fx.b.ID(), v.Template.ID())
	assert.Equal(t, domain.Answers{"a": "1", "c": "2"}, v.Answers)
	assert.Equal(t, int64(1), v.Version)
	assert.True(t, v.Status.Live)
	assert.Equal(t, "Ámbar", v.ConfidenceBand)
}

func TestLoad_NoRecordStartsEmptyOnFirstTemplate(t *testing.T) {
	fx := newFixture(t)
	c := fx.open(t, testConfig())
	v := c.View()
	assert.Equal(t, fx.a.ID(), v.Template.ID())
	assert.Empty(t, v.Answers)
	assert.Equal(t, int64(0), v.Version)
	// The onboarding fallback is always there.
	assert.Len(t, v.Recommendations, 1)
}

func TestLoad_FailureThenRetry(t *testing.T) {
	fx := newFixture(t)
	fx.store.loadErr = domain.ErrTransient

	c := New(fx.actor, fx.store.client.ID, fx.store, fx.feed, testConfig())
	t.Cleanup(c.Close)
	err := c.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, StateError, c.State())
	assert.ErrorIs(t, c.SetAnswer("a", "x"), domain.ErrNotReady)

	fx.store.set(func(s *fakeStore) { s.loadErr = nil })
	require.NoError(t, c.Retry(context.Background()))
	assert.Equal(t, StateReady, c.State())
}

func TestLoad_RequiresActor(t *testing.T) {
	fx := newFixture(t)
	c := New(domain.Actor{}, fx.store.client.ID, fx.store, fx.feed, testConfig())
	t.Cleanup(c.Close)
	assert.ErrorIs(t, c.Load(context.Background()), domain.ErrUnauthorized)
}

func TestSwitchTemplate_MergesInProgressAnswers(t *testing.T) {
	fx := newFixture(t)
	fx.store.addRecord(fx.b.ID(), domain.Answers{"a": "old", "c": "y"})
	fx.store.addRecord(fx.a.ID(), domain.Answers{"b": "saved b"})
	cfg := testConfig()
	cfg.AutosaveDelay = time.Hour

	c := fx.open(t, cfg)
	require.Equal(t, fx.a.ID(), c.View().Template.ID())
	require.NoError(t, c.SetAnswer("a", "x"))

	require.NoError(t, c.SwitchTemplate(context.Background(), fx.b.ID()))
	v := c.View()
	assert.Equal(t, fx.b.ID(), v.Template.ID())
	assert.Equal(t, domain.Answers{"a": "x", "c": "y"}, v.Answers)
	assert.True(t, v.Status.Dirty)
	assert.Equal(t, int64(1), v.Version)

	subs, unsubs := fx.feed.counts()
	assert.Equal(t, 2, subs)
	assert.Equal(t, 1, unsubs)
}

func TestSwitchTemplate_FailureKeepsPrevious(t *testing.T) {
	fx := newFixture(t)
	c := fx.open(t, testConfig())
	require.NoError(t, c.SetAnswer("a", "x"))
	fx.store.set(func(s *fakeStore) { s.templateErr = domain.ErrNotFound })

	err := c.SwitchTemplate(context.Background(), fx.b.ID())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	v := c.View()
	assert.Equal(t, StateReady, v.State)
	assert.Equal(t, fx.a.ID(), v.Template.ID())
	assert.Equal(t, "x", v.Answers["a"])
	assert.NotEmpty(t, v.Status.SwitchError)
	assert.True(t, v.Status.Live)
}

func TestSwitchTemplate_FailureKeepsPendingLayout(t *testing.T) {
	fx := newFixture(t)
	cfg := testConfig()
	cfg.LayoutSaveDelay = 50 * time.Millisecond
	c := fx.open(t, cfg)

	_, err := c.CommitLayout([]layout.Item{
		{ID: "a", X: 0, Y: 0, W: 4, H: 2},
		{ID: "b", X: 4, Y: 0, W: 4, H: 2},
	})
	require.NoError(t, err)
	fx.store.set(func(s *fakeStore) { s.templateErr = domain.ErrTransient })

	err = c.SwitchTemplate(context.Background(), fx.b.ID())
	require.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, fx.a.ID(), c.View().Template.ID())

	require.Eventually(t, func() bool { return fx.store.get(func(s *fakeStore) int { return len(s.layouts) }) == 1 }, wait, tick)
	fx.store.mu.Lock()
	batch := fx.store.layouts[0]
	fx.store.mu.Unlock()
	assert.Equal(t, domain.LayoutOverride{X: 1, Y: 1, W: 4, H: 2, Order: 0}, batch["a"])
	assert.Equal(t, domain.LayoutOverride{X: 5, Y: 1, W: 4, H: 2, Order: 1}, batch["b"])
}

func TestSwitchTemplate_CarriesPendingLayout(t *testing.T) {
	fx := newFixture(t)
	cfg := testConfig()
	cfg.LayoutSaveDelay = 50 * time.Millisecond
	c := fx.open(t, cfg)

	_, err := c.CommitLayout([]layout.Item{{ID: "a", X: 2, Y: 0, W: 3, H: 2}})
	require.NoError(t, err)
	require.NoError(t, c.SwitchTemplate(context.Background(), fx.b.ID()))

	require.Eventually(t, func() bool { return fx.store.get(func(s *fakeStore) int { return len(s.layouts) }) == 1 }, wait, tick)
	fx.store.mu.Lock()
	batch := fx.store.layouts[0]
	fx.store.mu.Unlock()
	assert.Equal(t, domain.LayoutOverride{X: 1, Y: 1, W: 3, H: 2, Order: 0}, batch["a"])
}

func TestSwitchTemplate_BlocksDestructiveActions(t *testing.T) {
	fx := newFixture(t)
	c := fx.open(t, testConfig())
	gate := make(chan struct{})
	fx.store.set(func(s *fakeStore) { s.templateGate = gate })

	done := make(chan error, 1)
	go func() { done <- c.SwitchTemplate(context.Background(), fx.b.ID()) }()
	require.Eventually(t, func() bool { return c.State() == StateSwitching }, wait, tick)

	assert.ErrorIs(t, c.Save(context.Background()), domain.ErrBusy)
	assert.ErrorIs(t, c.DeleteClient(context.Background()), domain.ErrBusy)
	assert.ErrorIs(t, c.SwitchTemplate(context.Background(), fx.a.ID()), domain.ErrBusy)
	assert.True(t, c.View().Status.Switching)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, fx.b.ID(), c.View().Template.ID())
	assert.False(t, fx.store.deleted)
}

func TestAutosave_DebouncesToLastValue(t *testing.T) {
	fx := newFixture(t)
	c := fx.open(t, testConfig())
	for _, v := range []string{"1", "12", "123"} {
		require.NoError(t, c.SetAnswer("a", v))
	}
	require.Eventually(t, func() bool { return len(fx.store.saved()) == 1 }, wait, tick)
	time.Sleep(60 * time.Millisecond)

	saved := fx.store.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "123", saved[0].Answers["a"])
	assert.Equal(t, fx.a.ID(), saved[0].TemplateID)
	assert.NotEmpty(t, saved[0].Matches)
	assert.False(t, c.View().Status.Dirty)
}

func TestAutosave_CoalescesWhileSaveInFlight(t *testing.T) {
	fx := newFixture(t)
	c := fx.open(t, testConfig())
	gate := make(chan struct{})
	fx.store.set(func(s *fakeStore) { s.saveGate = gate })

	require.NoError(t, c.SetAnswer("a", "1"))
	require.Eventually(t, func() bool { return fx.store.get(func(s *fakeStore) int { return s.inFlight }) == 1 }, wait, tick)
	require.NoError(t, c.SetAnswer("a", "2"))
	require.Eventually(t, c.savePending.Load, wait, tick)

	close(gate)
	require.Eventually(t, func() bool { return len(fx.store.saved()) == 2 }, wait, tick)
	saved := fx.store.saved()
	assert.Equal(t, "2", saved[1].Answers["a"])
	assert.Equal(t, 1, fx.store.get(func(s *fakeStore) int { return s.maxInFlight }))
}

func TestAutosave_ConcurrentTriggersPersistLastAnswers(t *testing.T) {
	fx := newFixture(t)
	cfg := testConfig()
	cfg.AutosaveDelay = time.Hour
	c := fx.open(t, cfg)
	gate := make(chan struct{})
	fx.store.set(func(s *fakeStore) { s.saveGate = gate })

	require.NoError(t, c.SetAnswer("a", "first"))
	go func() { _ = c.save(context.Background(), saveAuto) }()
	require.Eventually(t, func() bool { return fx.store.get(func(s *fakeStore) int { return s.inFlight }) == 1 }, wait, tick)

	require.NoError(t, c.SetAnswer("a", "last"))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.save(context.Background(), saveAuto)
		}()
	}
	wg.Wait()
	close(gate)

	require.Eventually(t, func() bool {
		saved := fx.store.saved()
		return len(saved) > 0 && saved[len(saved)-1].Answers["a"] == "last"
	}, wait, tick)
	assert.Equal(t, 1, fx.store.get(func(s *fakeStore) int { return s.maxInFlight }))
	assert.False(t, c.View().Status.Dirty)
}

func TestAutosave_FailureKeepsEditsAndRetrySaves(t *testing.T) {
	fx := newFixture(t)
	c := fx.open(t, testConfig())
	fx.store.set(func(s *fakeStore) { s.saveErr = domain.ErrTransient })

	require.NoError(t, c.SetAnswer("a", "1"))
	require.Eventually(t, func() bool { return c.State() == StateError }, wait, tick)
	v := c.View()
	assert.Equal(t, autosaveFailedMsg, v.Status.SaveError)
	assert.Equal(t, "1", v.Answers["a"])

	require.NoError(t, c.SetAnswer("a", "2"))
	fx.store.set(func(s *fakeStore) { s.saveErr = nil })
	require.NoError(t, c.Retry(context.Background()))

	assert.Equal(t, StateReady, c.State())
	assert.Empty(t, c.View().Status.SaveError)
	saved := fx.store.saved()
	require.NotEmpty(t, saved)
	assert.Equal(t, "2", saved[len(saved)-1].Answers["a"])
}

func TestSave_CoercesAndScores(t *testing.T) {
	fx := newFixture(t)
	orgID := fx.actor.OrgID
	sales := mkTemplate(t, orgID, "IB",
		map[string]interface{}{"id": "pain", "label": "Pain points", "type": "multiselect", "options": []string{"spreads altos"}},
		map[string]interface{}{"id": "vol", "label": "Monthly volume (USD)", "type": "currency"},
	)
	fx.store.templates = []domain.Template{sales}
	cfg := testConfig()
	cfg.AutosaveDelay = time.Hour
	c := fx.open(t, cfg)

	require.NoError(t, c.SetAnswers(domain.Answers{"pain": []interface{}{"spreads altos"}, "vol": "60000"}))
	require.NoError(t, c.Save(context.Background()))

	saved := fx.store.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, 60000.0, saved[0].Answers["vol"])
	assert.Equal(t, 45, saved[0].Score)
	require.Len(t, saved[0].Matches, 2)
	assert.Equal(t, 25, saved[0].Matches[0].Score)
	assert.Equal(t, 45, c.View().Score)
}

func TestSetAnswers_UnknownField(t *testing.T) {
	fx := newFixture(t)
	c := fx.open(t, testConfig())
	assert.ErrorIs(t, c.SetAnswer("c", "x"), domain.ErrValidation)
}

func TestRealtime_AppliesOnlyNewerRecords(t *testing.T) {
	fx := newFixture(t)
	cfg := testConfig()
	cfg.AutosaveDelay = time.Hour
	c := fx.open(t, cfg)
	clientID := fx.store.client.ID

	fx.feed.emitRecord(domain.RecordChange{Type: domain.ChangeInsert, New: &domain.ClientRecord{
		ID: uuid.New(), ClientID: clientID, TemplateID: fx.a.ID(), Version: 10,
		Answers: domain.Answers{"a": "remote", "b": "rb"},
	}})
	v := c.View()
	assert.Equal(t, domain.Answers{"a": "remote", "b": "rb"}, v.Answers)
	assert.Equal(t, int64(10), v.Version)

	require.NoError(t, c.SetAnswer("b", "local"))
	fx.feed.emitRecord(domain.RecordChange{Type: domain.ChangeInsert, New: &domain.ClientRecord{
		ID: uuid.New(), ClientID: clientID, TemplateID: fx.a.ID(), Version: 11,
		Answers: domain.Answers{"a": "r2", "b": "r2b"},
	}})
	assert.Equal(t, domain.Answers{"a": "r2", "b": "local"}, c.View().Answers)

	before := fx.store.get(func(s *fakeStore) int { return s.latestCalls })
	fx.feed.emitRecord(domain.RecordChange{Type: domain.ChangeInsert, New: &domain.ClientRecord{
		ID: uuid.New(), ClientID: clientID, TemplateID: fx.a.ID(), Version: 5,
		Answers: domain.Answers{"a": "stale"},
	}})
	assert.Equal(t, "r2", c.View().Answers["a"])
	require.Eventually(t, func() bool {
		return fx.store.get(func(s *fakeStore) int { return s.latestCalls }) > before
	}, wait, tick)
	assert.Equal(t, "r2", c.View().Answers["a"])
}

func TestRealtime_StrippedPayloadRefetches(t *testing.T) {
	fx := newFixture(t)
	c := fx.open(t, testConfig())

	rec := fx.store.addRecord(fx.a.ID(), domain.Answers{"a": "fetched"})
	fx.feed.emitRecord(domain.RecordChange{Type: domain.ChangeInsert, New: &domain.ClientRecord{
		ID: rec.ID, ClientID: rec.ClientID, TemplateID: rec.TemplateID, Version: rec.Version,
	}})
	require.Eventually(t, func() bool { return c.View().Answers["a"] == "fetched" }, wait, tick)

	fx.feed.emitRecord(domain.RecordChange{})
	require.Eventually(t, func() bool {
		return fx.store.get(func(s *fakeStore) int { return s.latestCalls }) >= 3
	}, wait, tick)
}

func TestRealtime_OtherTemplateIgnored(t *testing.T) {
	fx := newFixture(t)
	c := fx.open(t, testConfig())
	before := fx.store.get(func(s *fakeStore) int { return s.latestCalls })

	fx.feed.emitRecord(domain.RecordChange{Type: domain.ChangeInsert, New: &domain.ClientRecord{
		ID: uuid.New(), TemplateID: fx.b.ID(), Version: 100, Answers: domain.Answers{"a": "other"},
	}})
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, c.View().Answers)
	assert.Equal(t, before, fx.store.get(func(s *fakeStore) int { return s.latestCalls }))
}

func TestRealtime_NotesPatchOrRefetch(t *testing.T) {
	fx := newFixture(t)
	c := fx.open(t, testConfig())
	clientID := fx.store.client.ID

	n := domain.Note{ID: uuid.New(), ClientID: clientID, FieldID: "a", Text: "llamar", CreatedAt: time.Now()}
	fx.feed.emitNote(domain.NoteChange{Type: domain.ChangeInsert, New: &n})
	require.Len(t, c.View().Notes["a"], 1)

	fx.feed.emitNote(domain.NoteChange{Type: domain.ChangeDelete, Old: &n})
	assert.Empty(t, c.View().Notes["a"])

	before := fx.store.get(func(s *fakeStore) int { return s.notesCalls })
	fx.feed.emitNote(domain.NoteChange{Type: domain.ChangeInsert})
	require.Eventually(t, func() bool {
		return fx.store.get(func(s *fakeStore) int { return s.notesCalls }) > before
	}, wait, tick)
}

func TestCommitLayout_PacksAndSaves(t *testing.T) {
	fx := newFixture(t)
	c := fx.open(t, testConfig())

	packed, err := c.CommitLayout([]layout.Item{
		{ID: "a", X: 5, Y: 3, W: 3, H: 2},
		{ID: "b", X: 0, Y: 0, W: 4, H: 2},
		{ID: "unknown", X: 0, Y: 0, W: 2, H: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, []layout.Item{
		{ID: "b", X: 0, Y: 0, W: 4, H: 2},
		{ID: "a", X: 4, Y: 0, W: 3, H: 2},
	}, packed)

	v := c.View()
	require.Len(t, v.Fields, 2)
	assert.Equal(t, "b", v.Fields[0].ID)
	assert.Equal(t, 5, v.Fields[1].X)

	require.Eventually(t, func() bool { return fx.store.get(func(s *fakeStore) int { return len(s.layouts) }) == 1 }, wait, tick)
	fx.store.mu.Lock()
	batch := fx.store.layouts[0]
	fx.store.mu.Unlock()
	assert.Equal(t, domain.LayoutOverride{X: 5, Y: 1, W: 3, H: 2, Order: 1}, batch["a"])
	assert.Equal(t, domain.LayoutOverride{X: 1, Y: 1, W: 4, H: 2, Order: 0}, batch["b"])

	require.Eventually(t, func() bool { return c.View().Status.LayoutSaved }, wait, tick)
	require.Eventually(t, func() bool { return !c.View().Status.LayoutSaved }, wait, tick)
}

func TestHideShowField(t *testing.T) {
	fx := newFixture(t)
	c := fx.open(t, testConfig())
	ctx := context.Background()

	require.NoError(t, c.HideField(ctx, "b"))
	v := c.View()
	assert.Equal(t, []string{"b"}, v.Hidden)
	require.Len(t, v.Fields, 1)
	assert.Equal(t, "a", v.Fields[0].ID)
	require.NotNil(t, v.Template)
	assert.Equal(t, 2, v.Template.Len())

	require.NoError(t, c.ShowField(ctx, "b"))
	assert.Empty(t, c.View().Hidden)
	assert.ErrorIs(t, c.HideField(ctx, "nope"), domain.ErrNotFound)
}

func TestAddNoteAndRename(t *testing.T) {
	fx := newFixture(t)
	c := fx.open(t, testConfig())
	ctx := context.Background()

	n, err := c.AddNote(ctx, "a", "pide demo")
	require.NoError(t, err)
	// The realtime echo of the same note must not duplicate it.
	fx.feed.emitNote(domain.NoteChange{Type: domain.ChangeInsert, New: n})
	assert.Len(t, c.View().Notes["a"], 1)

	cl, err := c.RenameClient(ctx, "Acme Ltd")
	require.NoError(t, err)
	assert.Equal(t, "Acme Ltd", cl.Name)
	assert.Equal(t, "Acme Ltd", c.View().Client.Name)
}

func TestSetConfidence_DebouncedAndClamped(t *testing.T) {
	fx := newFixture(t)
	c := fx.open(t, testConfig())

	score := 150
	note := "muy interesado"
	require.NoError(t, c.SetConfidence(clients.ConfidenceInput{Score: &score}))
	require.NoError(t, c.SetConfidence(clients.ConfidenceInput{Note: &note}))
	assert.Equal(t, 100, c.View().Client.ConfidenceScore)
	assert.Equal(t, "Verde", c.View().ConfidenceBand)

	require.Eventually(t, func() bool { return fx.store.get(func(s *fakeStore) int { return len(s.confidence) }) == 1 }, wait, tick)
	fx.store.mu.Lock()
	in := fx.store.confidence[0]
	fx.store.mu.Unlock()
	require.NotNil(t, in.Score)
	require.NotNil(t, in.Note)
	assert.Equal(t, 100, *in.Score)
	assert.Equal(t, note, *in.Note)
}

func TestUpsertAndRemoveField(t *testing.T) {
	fx := newFixture(t)
	cfg := testConfig()
	cfg.AutosaveDelay = time.Hour
	c := fx.open(t, cfg)
	ctx := context.Background()

	f, err := c.UpsertField(ctx, FieldInput{Label: " Budget ", Type: domain.FieldCurrency})
	require.NoError(t, err)
	assert.NotEmpty(t, f.ID)
	assert.Equal(t, "Budget", f.Label)
	assert.Equal(t, 2, f.Order)
	assert.Equal(t, domain.DefaultFieldW, f.W)
	assert.Equal(t, domain.DefaultFieldY+domain.DefaultFieldH, f.Y)
	assert.Equal(t, 3, c.View().Template.Len())

	edited, err := c.UpsertField(ctx, FieldInput{ID: "a", Label: "Nombre", Type: domain.FieldText})
	require.NoError(t, err)
	assert.Equal(t, "Nombre", edited.Label)

	_, err = c.UpsertField(ctx, FieldInput{Label: "x", Type: "bogus"})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = c.UpsertField(ctx, FieldInput{ID: "missing", Label: "x", Type: domain.FieldText})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, c.SetAnswer("b", "bye"))
	require.NoError(t, c.RemoveField(ctx, "b"))
	v := c.View()
	assert.Equal(t, 2, v.Template.Len())
	_, has := v.Answers["b"]
	assert.False(t, has)
	assert.ErrorIs(t, c.RemoveField(ctx, "b"), domain.ErrNotFound)
}

func TestClose_FinalSaveAndIdempotent(t *testing.T) {
	fx := newFixture(t)
	cfg := testConfig()
	cfg.AutosaveDelay = time.Hour
	c := New(fx.actor, fx.store.client.ID, fx.store, fx.feed, cfg)
	require.NoError(t, c.Load(context.Background()))
	require.NoError(t, c.SetAnswer("a", "pending"))

	c.Close()
	c.Close()
	assert.Equal(t, StateClosed, c.State())
	saved := fx.store.saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "pending", saved[0].Answers["a"])
	_, unsubs := fx.feed.counts()
	assert.Equal(t, 1, unsubs)
	assert.ErrorIs(t, c.SetAnswer("a", "late"), domain.ErrClosed)
}

func TestDeleteClient_ClosesWithoutSaving(t *testing.T) {
	fx := newFixture(t)
	cfg := testConfig()
	cfg.AutosaveDelay = time.Hour
	c := New(fx.actor, fx.store.client.ID, fx.store, fx.feed, cfg)
	require.NoError(t, c.Load(context.Background()))
	require.NoError(t, c.SetAnswer("a", "pending"))

	require.NoError(t, c.DeleteClient(context.Background()))
	assert.True(t, fx.store.deleted)
	assert.Equal(t, StateClosed, c.State())
	assert.Empty(t, fx.store.saved())
}

func TestSubscribeFailureLeavesSessionUsable(t *testing.T) {
	fx := newFixture(t)
	fx.feed.err = errors.New("redis down")
	c := fx.open(t, testConfig())
	v := c.View()
	assert.Equal(t, StateReady, v.State)
	assert.False(t, v.Status.Live)
	require.NoError(t, c.SetAnswer("a", "x"))
}
