package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"corkboard-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service encapsulates template storage. Every template leaving the service
// has been normalized.
type Service struct {
	DB *gorm.DB
}

// List returns the org's templates, newest first. Rows whose field list is
// unusable are skipped and logged.
func (s *Service) List(ctx context.Context, orgID uuid.UUID) ([]domain.Template, error) {
	if orgID == uuid.Nil {
		return nil, fmt.Errorf("templates: %w", domain.ErrUnauthorized)
	}
	var rows []domain.TemplateRow
	if err := s.DB.WithContext(ctx).
		Where("org_id = ?", orgID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, domain.ClassifyStoreError(err, "templates")
	}
	out := make([]domain.Template, 0, len(rows))
	for _, row := range rows {
		tpl, err := normalizeRow(row)
		if err != nil {
			log.Warn().Err(err).Str("template_id", row.ID.String()).Msg("templates: skipping unreadable template")
			continue
		}
		out = append(out, tpl)
	}
	return out, nil
}

// Get returns one template of the org. A template owned by another org is
// reported as unauthorized.
func (s *Service) Get(ctx context.Context, orgID, id uuid.UUID) (domain.Template, error) {
	row, err := s.row(ctx, orgID, id)
	if err != nil {
		return domain.Template{}, err
	}
	return normalizeRow(*row)
}

func (s *Service) row(ctx context.Context, orgID, id uuid.UUID) (*domain.TemplateRow, error) {
	var row domain.TemplateRow
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, domain.ClassifyStoreError(err, "template")
	}
	if row.OrgID != orgID {
		return nil, fmt.Errorf("template: %w", domain.ErrUnauthorized)
	}
	return &row, nil
}

// Create normalizes fields and stores a new template.
func (s *Service) Create(ctx context.Context, actor domain.Actor, name string, fields json.RawMessage) (domain.Template, []domain.DroppedField, error) {
	if !actor.Valid() {
		return domain.Template{}, nil, fmt.Errorf("template: %w", domain.ErrUnauthorized)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Template{}, nil, fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if len(fields) == 0 {
		fields = json.RawMessage("[]")
	}
	normalized, dropped, err := domain.NormalizeFields(fields)
	if err != nil {
		return domain.Template{}, nil, err
	}
	LogDropped(uuid.Nil, dropped)

	b, err := json.Marshal(normalized)
	if err != nil {
		return domain.Template{}, nil, err
	}
	createdBy := actor.UserID
	row := domain.TemplateRow{
		OrgID:     actor.OrgID,
		Name:      name,
		Fields:    datatypes.JSON(b),
		CreatedBy: &createdBy,
	}
	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.Template{}, nil, domain.ClassifyStoreError(err, "template")
	}
	tpl, err := normalizeRow(row)
	return tpl, dropped, err
}

// ReplaceFields normalizes a whole new field list and stores it in place of
// the template's current one.
func (s *Service) ReplaceFields(ctx context.Context, orgID, id uuid.UUID, fields json.RawMessage) (domain.Template, []domain.DroppedField, error) {
	normalized, dropped, err := domain.NormalizeFields(fields)
	if err != nil {
		return domain.Template{}, nil, err
	}
	LogDropped(id, dropped)

	row, err := s.row(ctx, orgID, id)
	if err != nil {
		return domain.Template{}, nil, err
	}
	b, err := json.Marshal(normalized)
	if err != nil {
		return domain.Template{}, nil, err
	}
	now := time.Now()
	res := s.DB.WithContext(ctx).Model(&domain.TemplateRow{}).
		Where("id = ? AND org_id = ?", id, orgID).
		Updates(map[string]interface{}{"fields": datatypes.JSON(b), "updated_at": now})
	if res.Error != nil {
		return domain.Template{}, nil, domain.ClassifyStoreError(res.Error, "template")
	}
	if res.RowsAffected == 0 {
		return domain.Template{}, nil, fmt.Errorf("template: %w", domain.ErrNotFound)
	}
	row.Fields = datatypes.JSON(b)
	row.UpdatedAt = &now
	tpl, err := normalizeRow(*row)
	return tpl, dropped, err
}

// Rename changes a template's display name.
func (s *Service) Rename(ctx context.Context, orgID, id uuid.UUID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if _, err := s.row(ctx, orgID, id); err != nil {
		return err
	}
	return domain.ClassifyStoreError(s.DB.WithContext(ctx).Model(&domain.TemplateRow{}).
		Where("id = ? AND org_id = ?", id, orgID).
		Updates(map[string]interface{}{"name": name, "updated_at": time.Now()}).Error, "template")
}

// EnsureDefaultTemplates seeds the default question sets when the org has no
// templates yet. It reports how many templates were created.
func (s *Service) EnsureDefaultTemplates(ctx context.Context, orgID uuid.UUID, createdBy *uuid.UUID) (int, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&domain.TemplateRow{}).Where("org_id = ?", orgID).Count(&count).Error; err != nil {
		return 0, domain.ClassifyStoreError(err, "templates")
	}
	if count > 0 {
		return 0, nil
	}
	created := 0
	base := time.Now()
	for i, def := range Defaults() {
		b, err := json.Marshal(def.Fields)
		if err != nil {
			return created, err
		}
		row := domain.TemplateRow{
			OrgID:     orgID,
			Name:      def.Name,
			Fields:    datatypes.JSON(b),
			CreatedBy: createdBy,
			// The first default is listed first (newest).
			CreatedAt: base.Add(-time.Duration(i) * time.Millisecond),
		}
		if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
			return created, domain.ClassifyStoreError(err, "template")
		}
		created++
	}
	log.Info().Str("org_id", orgID.String()).Int("created", created).Msg("templates: seeded defaults")
	return created, nil
}

func normalizeRow(row domain.TemplateRow) (domain.Template, error) {
	tpl, dropped, err := domain.NormalizeTemplate(row.Raw())
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTemplate) {
			return domain.Template{}, fmt.Errorf("template %s: %w", row.ID, err)
		}
		return domain.Template{}, err
	}
	LogDropped(row.ID, dropped)
	return tpl, nil
}

// LogDropped reports every field entry normalization discarded.
func LogDropped(templateID uuid.UUID, dropped []domain.DroppedField) {
	for _, d := range dropped {
		log.Warn().
			Str("template_id", templateID.String()).
			Int("index", d.Index).
			Str("field_id", d.ID).
			Str("reason", d.Reason).
			Msg("template field dropped")
	}
}
