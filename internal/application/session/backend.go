package session

import (
	"context"
	"encoding/json"

	"corkboard-backend/internal/application/clients"
	"corkboard-backend/internal/application/notes"
	"corkboard-backend/internal/application/overrides"
	"corkboard-backend/internal/application/records"
	"corkboard-backend/internal/application/templates"
	"corkboard-backend/internal/domain"
	"corkboard-backend/internal/infrastructure/realtime"

	"github.com/google/uuid"
)

// Store is the persistence a session reads and writes through.
type Store interface {
	GetClient(ctx context.Context, orgID, clientID uuid.UUID) (*domain.Client, error)
	ListTemplates(ctx context.Context, orgID uuid.UUID) ([]domain.Template, error)
	GetTemplate(ctx context.Context, orgID, templateID uuid.UUID) (domain.Template, error)
	ReplaceFields(ctx context.Context, orgID, templateID uuid.UUID, fields json.RawMessage) (domain.Template, []domain.DroppedField, error)
	LatestRecord(ctx context.Context, clientID uuid.UUID, templateID *uuid.UUID) (*domain.ClientRecord, error)
	SaveRecord(ctx context.Context, actor domain.Actor, in domain.SaveRecordInput) (*domain.ClientRecord, error)
	ListOverrides(ctx context.Context, clientID uuid.UUID) (map[string]domain.ClientFieldOverride, error)
	SetHidden(ctx context.Context, clientID uuid.UUID, fieldID string, hidden bool) (*domain.ClientFieldOverride, error)
	UpsertLayout(ctx context.Context, clientID uuid.UUID, layout map[string]domain.LayoutOverride) error
	ListNotes(ctx context.Context, clientID uuid.UUID) ([]domain.Note, error)
	AddNote(ctx context.Context, actor domain.Actor, clientID uuid.UUID, fieldID, text string) (*domain.Note, error)
	RenameClient(ctx context.Context, orgID, clientID uuid.UUID, name string) (*domain.Client, error)
	UpdateConfidence(ctx context.Context, orgID, clientID uuid.UUID, in clients.ConfidenceInput) (*domain.Client, error)
	DeleteClient(ctx context.Context, orgID, clientID uuid.UUID) error
}

// Feed delivers change notifications for one client until the returned
// unsubscribe is called. Unsubscribe must be idempotent.
type Feed interface {
	Subscribe(ctx context.Context, clientID uuid.UUID, onRecord func(domain.RecordChange), onNote func(domain.NoteChange)) (func(), error)
}

// ServiceBackend adapts the application services and the realtime broker.
type ServiceBackend struct {
	Clients   *clients.Service
	Templates *templates.Service
	Records   *records.Service
	Overrides *overrides.Service
	Notes     *notes.Service
	Broker    *realtime.Broker
}

var (
	_ Store = (*ServiceBackend)(nil)
	_ Feed  = (*ServiceBackend)(nil)
)

func (b *ServiceBackend) GetClient(ctx context.Context, orgID, clientID uuid.UUID) (*domain.Client, error) {
	return b.Clients.Get(ctx, orgID, clientID)
}

func (b *ServiceBackend) ListTemplates(ctx context.Context, orgID uuid.UUID) ([]domain.Template, error) {
	return b.Templates.List(ctx, orgID)
}

func (b *ServiceBackend) GetTemplate(ctx context.Context, orgID, templateID uuid.UUID) (domain.Template, error) {
	return b.Templates.Get(ctx, orgID, templateID)
}

func (b *ServiceBackend) ReplaceFields(ctx context.Context, orgID, templateID uuid.UUID, fields json.RawMessage) (domain.Template, []domain.DroppedField, error) {
	return b.Templates.ReplaceFields(ctx, orgID, templateID, fields)
}

func (b *ServiceBackend) LatestRecord(ctx context.Context, clientID uuid.UUID, templateID *uuid.UUID) (*domain.ClientRecord, error) {
	return b.Records.Latest(ctx, clientID, templateID)
}

func (b *ServiceBackend) SaveRecord(ctx context.Context, actor domain.Actor, in domain.SaveRecordInput) (*domain.ClientRecord, error) {
	return b.Records.Save(ctx, actor, in)
}

func (b *ServiceBackend) ListOverrides(ctx context.Context, clientID uuid.UUID) (map[string]domain.ClientFieldOverride, error) {
	return b.Overrides.List(ctx, clientID)
}

func (b *ServiceBackend) SetHidden(ctx context.Context, clientID uuid.UUID, fieldID string, hidden bool) (*domain.ClientFieldOverride, error) {
	return b.Overrides.SetHidden(ctx, clientID, fieldID, hidden)
}

func (b *ServiceBackend) UpsertLayout(ctx context.Context, clientID uuid.UUID, layout map[string]domain.LayoutOverride) error {
	return b.Overrides.UpsertLayout(ctx, clientID, layout)
}

func (b *ServiceBackend) ListNotes(ctx context.Context, clientID uuid.UUID) ([]domain.Note, error) {
	return b.Notes.List(ctx, clientID)
}

func (b *ServiceBackend) AddNote(ctx context.Context, actor domain.Actor, clientID uuid.UUID, fieldID, text string) (*domain.Note, error) {
	return b.Notes.Add(ctx, actor, clientID, fieldID, text)
}

func (b *ServiceBackend) RenameClient(ctx context.Context, orgID, clientID uuid.UUID, name string) (*domain.Client, error) {
	return b.Clients.Rename(ctx, orgID, clientID, name)
}

func (b *ServiceBackend) UpdateConfidence(ctx context.Context, orgID, clientID uuid.UUID, in clients.ConfidenceInput) (*domain.Client, error) {
	return b.Clients.UpdateConfidence(ctx, orgID, clientID, in)
}

func (b *ServiceBackend) DeleteClient(ctx context.Context, orgID, clientID uuid.UUID) error {
	return b.Clients.Delete(ctx, orgID, clientID)
}

func (b *ServiceBackend) Subscribe(ctx context.Context, clientID uuid.UUID, onRecord func(domain.RecordChange), onNote func(domain.NoteChange)) (func(), error) {
	return b.Broker.Subscribe(ctx, clientID, realtime.Handlers{OnRecord: onRecord, OnNote: onNote})
}
