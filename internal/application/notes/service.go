package notes

import (
	"context"
	"fmt"
	"strings"

	"corkboard-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Publisher announces note changes to realtime subscribers.
type Publisher interface {
	PublishNote(ctx context.Context, change domain.NoteChange) error
}

// Service stores field notes. Notes are append-only; they go away with their client.
type Service struct {
	DB        *gorm.DB
	Publisher Publisher
}

// List returns the client's notes, newest first.
func (s *Service) List(ctx context.Context, clientID uuid.UUID) ([]domain.Note, error) {
	var out []domain.Note
	if err := s.DB.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, domain.ClassifyStoreError(err, "notes")
	}
	return out, nil
}

// Add appends a note written by actor.
func (s *Service) Add(ctx context.Context, actor domain.Actor, clientID uuid.UUID, fieldID, text string) (*domain.Note, error) {
	if actor.UserID == uuid.Nil {
		return nil, fmt.Errorf("note: %w", domain.ErrUnauthorized)
	}
	fieldID = strings.TrimSpace(fieldID)
	text = strings.TrimSpace(text)
	if clientID == uuid.Nil || fieldID == "" || text == "" {
		return nil, fmt.Errorf("%w: client, field and text are required", domain.ErrValidation)
	}
	createdBy := actor.UserID
	n := &domain.Note{ClientID: clientID, FieldID: fieldID, Text: text, CreatedBy: &createdBy}
	if err := s.DB.WithContext(ctx).Create(n).Error; err != nil {
		return nil, domain.ClassifyStoreError(err, "note")
	}
	if s.Publisher != nil {
		if err := s.Publisher.PublishNote(ctx, domain.NoteChange{Type: domain.ChangeInsert, New: n}); err != nil {
			log.Warn().Err(err).Str("client_id", clientID.String()).Msg("notes: publish failed")
		}
	}
	return n, nil
}
