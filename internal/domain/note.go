package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Note is a sticky note attached to one field of one client.
type Note struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ClientID  uuid.UUID  `gorm:"column:client_id;type:uuid;not null;index" json:"client_id"`
	FieldID   string     `gorm:"column:field_id;not null" json:"field_id"`
	Text      string     `gorm:"column:text;not null" json:"text"`
	CreatedBy *uuid.UUID `gorm:"column:created_by;type:uuid" json:"created_by"`
	CreatedAt time.Time  `gorm:"column:created_at" json:"created_at"`
}

func (Note) TableName() string {
	return "notes"
}

func (n *Note) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// NotesByField groups notes by field id, keeping their order.
func NotesByField(notes []Note) map[string][]Note {
	out := make(map[string][]Note)
	for _, n := range notes {
		out[n.FieldID] = append(out[n.FieldID], n)
	}
	return out
}
