package scripts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"corkboard-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultTitle is used when a script is saved without a title.
const DefaultTitle = "Sin título"

// Service stores the org's sales scripts.
type Service struct {
	DB *gorm.DB
}

// ScriptInput is the body of a script create or update.
type ScriptInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// List returns the org's scripts, newest first.
func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]domain.Script, error) {
	var out []domain.Script
	if err := s.DB.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, domain.ClassifyStoreError(err, "scripts")
	}
	return out, nil
}

// Create stores a new script for the actor's org.
func (s *Service) Create(ctx context.Context, actor domain.Actor, in ScriptInput) (*domain.Script, error) {
	if !actor.Valid() {
		return nil, fmt.Errorf("script: %w", domain.ErrUnauthorized)
	}
	createdBy := actor.UserID
	sc := &domain.Script{OrgID: actor.OrgID, Title: title(in.Title), Content: in.Content, CreatedBy: &createdBy}
	if err := s.DB.WithContext(ctx).Create(sc).Error; err != nil {
		return nil, domain.ClassifyStoreError(err, "script")
	}
	return sc, nil
}

// Update replaces a script's title and content.
func (s *Service) Update(ctx context.Context, orgID, id uuid.UUID, in ScriptInput) (*domain.Script, error) {
	var sc domain.Script
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&sc).Error; err != nil {
		return nil, domain.ClassifyStoreError(err, "script")
	}
	if sc.OrgID != orgID {
		return nil, fmt.Errorf("script: %w", domain.ErrUnauthorized)
	}
	sc.Title = title(in.Title)
	sc.Content = in.Content
	sc.UpdatedAt = time.Now()
	if err := s.DB.WithContext(ctx).Model(&domain.Script{}).Where("id = ?", id).
		Updates(map[string]interface{}{"title": sc.Title, "content": sc.Content, "updated_at": sc.UpdatedAt}).Error; err != nil {
		return nil, domain.ClassifyStoreError(err, "script")
	}
	return &sc, nil
}

func title(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return DefaultTitle
	}
	return t
}
