package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Script is a sales call script shared inside an org.
type Script struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrgID     uuid.UUID  `gorm:"column:org_id;type:uuid;not null;index" json:"org_id"`
	Title     string     `gorm:"column:title;not null" json:"title"`
	Content   string     `gorm:"column:content" json:"content"`
	CreatedBy *uuid.UUID `gorm:"column:created_by;type:uuid" json:"created_by"`
	CreatedAt time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Script) TableName() string {
	return "scripts"
}

func (s *Script) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
