package records

import (
	"context"
	"errors"

	"corkboard-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Publisher announces new snapshots to realtime subscribers.
type Publisher interface {
	PublishRecord(ctx context.Context, change domain.RecordChange) error
}

// Service stores answer snapshots. Snapshots are never updated; each save
// inserts a new row with the next version of its client.
type Service struct {
	DB        *gorm.DB
	Publisher Publisher
}

// Latest returns the newest snapshot of the client, optionally restricted to
// one template. It returns nil without error when there is none.
func (s *Service) Latest(ctx context.Context, clientID uuid.UUID, templateID *uuid.UUID) (*domain.ClientRecord, error) {
	q := s.DB.WithContext(ctx).Where("client_id = ?", clientID)
	if templateID != nil {
		q = q.Where("template_id = ?", *templateID)
	}
	var rec domain.ClientRecord
	err := q.Order("version DESC").Order("created_at DESC").Limit(1).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.ClassifyStoreError(err, "record")
	}
	return &rec, nil
}

// History returns up to limit snapshots of the client, newest first.
func (s *Service) History(ctx context.Context, clientID uuid.UUID, limit int) ([]domain.ClientRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var out []domain.ClientRecord
	if err := s.DB.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("version DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, domain.ClassifyStoreError(err, "records")
	}
	return out, nil
}

// Save coerces numeric answers per field type and inserts a new snapshot.
// The stored snapshot is published; a publish failure is logged, not returned.
func (s *Service) Save(ctx context.Context, actor domain.Actor, in domain.SaveRecordInput) (*domain.ClientRecord, error) {
	if !actor.Valid() {
		return nil, domain.ErrUnauthorized
	}
	if in.ClientID == uuid.Nil || in.TemplateID == uuid.Nil {
		return nil, domain.ErrValidation
	}
	createdBy := actor.UserID
	matches := domain.Recommendations(in.Matches)
	if matches == nil {
		matches = domain.Recommendations{}
	}
	rec := &domain.ClientRecord{
		ClientID:   in.ClientID,
		TemplateID: in.TemplateID,
		Answers:    domain.CoerceAnswers(in.Answers, in.Fields),
		Score:      in.Score,
		Matches:    matches,
		CreatedBy:  &createdBy,
	}
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current struct{ Max *int64 }
		if err := tx.Model(&domain.ClientRecord{}).
			Select("MAX(version) AS max").
			Where("client_id = ?", in.ClientID).
			Scan(&current).Error; err != nil {
			return err
		}
		rec.Version = 1
		if current.Max != nil {
			rec.Version = *current.Max + 1
		}
		return tx.Create(rec).Error
	})
	if err != nil {
		return nil, domain.ClassifyStoreError(err, "record")
	}

	if s.Publisher != nil {
		if err := s.Publisher.PublishRecord(ctx, domain.RecordChange{Type: domain.ChangeInsert, New: rec}); err != nil {
			log.Warn().Err(err).Str("client_id", in.ClientID.String()).Msg("records: publish failed")
		}
	}
	return rec, nil
}
