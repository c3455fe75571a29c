package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ClientFieldOverride replaces a template field's layout for one client and
// optionally hides it. Nil layout columns fall back to the template.
type ClientFieldOverride struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ClientID  uuid.UUID `gorm:"column:client_id;type:uuid;not null;uniqueIndex:idx_client_field" json:"client_id"`
	FieldID   string    `gorm:"column:field_id;not null;uniqueIndex:idx_client_field" json:"field_id"`
	X         *int      `gorm:"column:x" json:"x"`
	Y         *int      `gorm:"column:y" json:"y"`
	W         *int      `gorm:"column:w" json:"w"`
	H         *int      `gorm:"column:h" json:"h"`
	Order     *int      `gorm:"column:sort_order" json:"order"`
	Hidden    bool      `gorm:"column:hidden;not null;default:false" json:"hidden"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (ClientFieldOverride) TableName() string {
	return "client_field_overrides"
}

func (o *ClientFieldOverride) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// LayoutOverride is one field's committed position, size and order.
type LayoutOverride struct {
	X     int `json:"x"`
	Y     int `json:"y"`
	W     int `json:"w"`
	H     int `json:"h"`
	Order int `json:"order"`
}

// ApplyOverrides superimposes overrides onto fields and returns them sorted by
// order, then y, then x. Hidden ids are returned separately; hidden fields stay
// in the returned list.
func ApplyOverrides(fields []Field, overrides map[string]ClientFieldOverride) ([]Field, map[string]bool) {
	out := make([]Field, len(fields))
	hidden := make(map[string]bool)
	for i, f := range fields {
		f = f.Clone()
		if ov, ok := overrides[f.ID]; ok {
			if ov.Order != nil {
				f.Order = *ov.Order
			}
			if ov.X != nil {
				f.X = *ov.X
			}
			if ov.Y != nil {
				f.Y = *ov.Y
			}
			if ov.W != nil {
				f.W = *ov.W
			}
			if ov.H != nil {
				f.H = *ov.H
			}
			if ov.Hidden {
				hidden[f.ID] = true
			}
		}
		out[i] = f
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Order != out[b].Order {
			return out[a].Order < out[b].Order
		}
		if out[a].Y != out[b].Y {
			return out[a].Y < out[b].Y
		}
		return out[a].X < out[b].X
	})
	return out, hidden
}

// VisibleFields drops the hidden ids from fields.
func VisibleFields(fields []Field, hidden map[string]bool) []Field {
	out := make([]Field, 0, len(fields))
	for _, f := range fields {
		if !hidden[f.ID] {
			out = append(out, f)
		}
	}
	return out
}
