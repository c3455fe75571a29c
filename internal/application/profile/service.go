package profile

import (
	"context"
	"fmt"
	"strings"

	"corkboard-backend/internal/application/templates"
	"corkboard-backend/internal/domain"
	"corkboard-backend/internal/pkg/constants"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const fallbackOrgName = "Mi organización"

// Service resolves a user into the actor profile sessions run as.
type Service struct {
	DB        *gorm.DB
	Templates *templates.Service
}

// EnsureProfileAndOrg returns the user's actor profile. A user without an org
// gets a new org named after their email and becomes its owner. The org's
// default templates are seeded when it has none.
func (s *Service) EnsureProfileAndOrg(ctx context.Context, userID uuid.UUID) (*domain.Actor, error) {
	var u domain.User
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		return nil, domain.ClassifyStoreError(err, "user")
	}

	if u.OrgID == nil || *u.OrgID == uuid.Nil {
		name := strings.TrimSpace(u.Email)
		if name == "" {
			name = fallbackOrgName
		}
		org := &domain.Org{Name: name}
		err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(org).Error; err != nil {
				return err
			}
			return tx.Model(&domain.User{}).
				Where("user_id = ?", u.UserID).
				Updates(map[string]interface{}{"org_id": org.ID, "role": constants.Owner}).Error
		})
		if err != nil {
			return nil, domain.ClassifyStoreError(err, "org")
		}
		u.OrgID = &org.ID
		u.Role = constants.Owner
		log.Info().Str("user_id", u.UserID.String()).Str("org_id", org.ID.String()).Msg("profile: created org")
	}

	if s.Templates != nil {
		if _, err := s.Templates.EnsureDefaultTemplates(ctx, *u.OrgID, &u.UserID); err != nil {
			return nil, fmt.Errorf("ensure default templates: %w", err)
		}
	}
	return &domain.Actor{UserID: u.UserID, OrgID: *u.OrgID, Role: u.Role, Email: u.Email}, nil
}
