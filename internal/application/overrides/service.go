package overrides

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"corkboard-backend/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var conflictKey = []clause.Column{{Name: "client_id"}, {Name: "field_id"}}

// Service stores per-client field layout and visibility.
type Service struct {
	DB *gorm.DB
}

// List returns the client's overrides keyed by field id.
func (s *Service) List(ctx context.Context, clientID uuid.UUID) (map[string]domain.ClientFieldOverride, error) {
	var rows []domain.ClientFieldOverride
	if err := s.DB.WithContext(ctx).Where("client_id = ?", clientID).Find(&rows).Error; err != nil {
		return nil, domain.ClassifyStoreError(err, "overrides")
	}
	out := make(map[string]domain.ClientFieldOverride, len(rows))
	for _, r := range rows {
		out[r.FieldID] = r
	}
	return out, nil
}

// SetHidden hides or shows one field for the client without touching its layout.
func (s *Service) SetHidden(ctx context.Context, clientID uuid.UUID, fieldID string, hidden bool) (*domain.ClientFieldOverride, error) {
	fieldID = strings.TrimSpace(fieldID)
	if clientID == uuid.Nil || fieldID == "" {
		return nil, fmt.Errorf("%w: client and field are required", domain.ErrValidation)
	}
	row := domain.ClientFieldOverride{ClientID: clientID, FieldID: fieldID, Hidden: hidden, UpdatedAt: time.Now()}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   conflictKey,
		DoUpdates: clause.AssignmentColumns([]string{"hidden", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, domain.ClassifyStoreError(err, "override")
	}
	return s.get(ctx, clientID, fieldID)
}

// UpsertLayout stores position, size and order for every field in layout,
// leaving the hidden flag as it was.
func (s *Service) UpsertLayout(ctx context.Context, clientID uuid.UUID, layout map[string]domain.LayoutOverride) error {
	if clientID == uuid.Nil {
		return fmt.Errorf("%w: client is required", domain.ErrValidation)
	}
	if len(layout) == 0 {
		return nil
	}
	ids := make([]string, 0, len(layout))
	for id := range layout {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := time.Now()
	rows := make([]domain.ClientFieldOverride, 0, len(ids))
	for _, id := range ids {
		l := layout[id]
		x, y, w, h, order := l.X, l.Y, l.W, l.H, l.Order
		rows = append(rows, domain.ClientFieldOverride{
			ClientID: clientID, FieldID: id,
			X: &x, Y: &y, W: &w, H: &h, Order: &order,
			UpdatedAt: now,
		})
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   conflictKey,
		DoUpdates: clause.AssignmentColumns([]string{"x", "y", "w", "h", "sort_order", "updated_at"}),
	}).Create(&rows).Error
	return domain.ClassifyStoreError(err, "overrides")
}

func (s *Service) get(ctx context.Context, clientID uuid.UUID, fieldID string) (*domain.ClientFieldOverride, error) {
	var row domain.ClientFieldOverride
	if err := s.DB.WithContext(ctx).Where("client_id = ? AND field_id = ?", clientID, fieldID).First(&row).Error; err != nil {
		return nil, domain.ClassifyStoreError(err, "override")
	}
	return &row, nil
}
