package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Org is a tenant. Templates, clients and scripts are owned by exactly one org.
type Org struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name      string         `gorm:"column:name;not null" json:"name"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Org) TableName() string {
	return "orgs"
}

// BeforeCreate ensures id is set for DBs without default uuid.
func (o *Org) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
