package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"corkboard-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// DefaultName is used when a client is created without a name.
const DefaultName = "Sin nombre"

// Cascade steps, in the order Delete runs them.
const (
	StepNotes     = "notes"
	StepRecords   = "records"
	StepOverrides = "overrides"
	StepClient    = "client"
)

// Service encapsulates client storage.
type Service struct {
	DB *gorm.DB
}

// CreateClientInput is the body of a client creation.
type CreateClientInput struct {
	Name string `json:"name"`
	Tag  string `json:"tag"`
}

// ConfidenceInput updates the confidence score and/or its note.
type ConfidenceInput struct {
	Score *int    `json:"confidence_score"`
	Note  *string `json:"confidence_note"`
}

// List returns the org's clients, newest first.
func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]domain.Client, error) {
	var out []domain.Client
	if err := s.DB.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, domain.ClassifyStoreError(err, "clients")
	}
	return out, nil
}

// Get returns one client of the org.
func (s *Service) Get(ctx context.Context, orgID, id uuid.UUID) (*domain.Client, error) {
	var c domain.Client
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, domain.ClassifyStoreError(err, "client")
	}
	if c.OrgID != orgID {
		return nil, fmt.Errorf("client: %w", domain.ErrUnauthorized)
	}
	return &c, nil
}

// Create stores a new client owned by the actor's org.
func (s *Service) Create(ctx context.Context, actor domain.Actor, in CreateClientInput) (*domain.Client, error) {
	if !actor.Valid() {
		return nil, fmt.Errorf("client: %w", domain.ErrUnauthorized)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = DefaultName
	}
	tag := strings.TrimSpace(in.Tag)
	if tag == "" {
		tag = domain.TagLead
	}
	if !domain.IsValidTag(tag) {
		return nil, fmt.Errorf("%w: invalid tag %q", domain.ErrValidation, tag)
	}
	createdBy := actor.UserID
	c := &domain.Client{
		OrgID:           actor.OrgID,
		Name:            name,
		Tag:             tag,
		ConfidenceScore: domain.DefaultConfidenceScore,
		CreatedBy:       &createdBy,
	}
	if err := s.DB.WithContext(ctx).Create(c).Error; err != nil {
		return nil, domain.ClassifyStoreError(err, "client")
	}
	return c, nil
}

// Rename changes the client's display name.
func (s *Service) Rename(ctx context.Context, orgID, id uuid.UUID, name string) (*domain.Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	return s.update(ctx, orgID, id, map[string]interface{}{"name": name})
}

// UpdateTag changes the client's classification tag.
func (s *Service) UpdateTag(ctx context.Context, orgID, id uuid.UUID, tag string) (*domain.Client, error) {
	if !domain.IsValidTag(tag) {
		return nil, fmt.Errorf("%w: invalid tag %q", domain.ErrValidation, tag)
	}
	return s.update(ctx, orgID, id, map[string]interface{}{"tag": tag})
}

// UpdateConfidence stores the confidence score (clamped to 0..100) and note.
// Nil inputs are left unchanged.
func (s *Service) UpdateConfidence(ctx context.Context, orgID, id uuid.UUID, in ConfidenceInput) (*domain.Client, error) {
	updates := map[string]interface{}{}
	if in.Score != nil {
		updates["confidence_score"] = domain.ClampConfidence(*in.Score)
	}
	if in.Note != nil {
		updates["confidence_note"] = *in.Note
	}
	if len(updates) == 0 {
		return s.Get(ctx, orgID, id)
	}
	return s.update(ctx, orgID, id, updates)
}

func (s *Service) update(ctx context.Context, orgID, id uuid.UUID, updates map[string]interface{}) (*domain.Client, error) {
	if _, err := s.Get(ctx, orgID, id); err != nil {
		return nil, err
	}
	updates["updated_at"] = time.Now()
	if err := s.DB.WithContext(ctx).Model(&domain.Client{}).
		Where("id = ? AND org_id = ?", id, orgID).
		Updates(updates).Error; err != nil {
		return nil, domain.ClassifyStoreError(err, "client")
	}
	return s.Get(ctx, orgID, id)
}

// Delete removes the client and everything it owns: notes, then answer
// snapshots, then overrides, then the client row. Each step deletes whatever
// is left, so a failed delete can be retried and continues where it stopped.
// A client that no longer exists is not an error.
func (s *Service) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	c, err := s.Get(ctx, orgID, id)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	steps := []struct {
		name  string
		model interface{}
		where string
	}{
		{StepNotes, &domain.Note{}, "client_id = ?"},
		{StepRecords, &domain.ClientRecord{}, "client_id = ?"},
		{StepOverrides, &domain.ClientFieldOverride{}, "client_id = ?"},
		{StepClient, &domain.Client{}, "id = ?"},
	}
	for _, step := range steps {
		res := s.DB.WithContext(ctx).Where(step.where, id).Delete(step.model)
		if res.Error != nil {
			log.Warn().Err(res.Error).Str("client_id", id.String()).Str("step", step.name).Msg("clients: cascade delete failed")
			return &domain.DeleteStepError{Step: step.name, Err: domain.ClassifyStoreError(res.Error, step.name)}
		}
	}
	if c != nil {
		log.Info().Str("client_id", id.String()).Msg("clients: deleted")
	}
	return nil
}
