package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Recommendation is one suggested action with its score weight.
type Recommendation struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
	Score  int    `json:"score"`
}

// Recommendations is stored as a json column next to each answer snapshot.
type Recommendations []Recommendation

// Scan implements sql.Scanner for reading from DB (json column).
func (r *Recommendations) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*r = Recommendations{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("unsupported type for Recommendations")
	}
	out := Recommendations{}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &out); err != nil {
			return err
		}
	}
	*r = out
	return nil
}

// Value implements driver.Valuer for writing to DB.
func (r Recommendations) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// ClientRecord is one immutable answer snapshot. Version increases by one
// with every snapshot of the same client.
type ClientRecord struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	ClientID   uuid.UUID       `gorm:"column:client_id;type:uuid;not null;index:idx_client_records_client_version" json:"client_id"`
	TemplateID uuid.UUID       `gorm:"column:template_id;type:uuid;not null;index" json:"template_id"`
	Version    int64           `gorm:"column:version;not null;index:idx_client_records_client_version" json:"version"`
	Answers    Answers         `gorm:"column:answers;type:jsonb" json:"answers"`
	Score      int             `gorm:"column:score;not null;default:0" json:"score"`
	Matches    Recommendations `gorm:"column:matches;type:jsonb" json:"matches"`
	CreatedBy  *uuid.UUID      `gorm:"column:created_by;type:uuid" json:"created_by"`
	CreatedAt  time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (ClientRecord) TableName() string {
	return "client_records"
}

func (r *ClientRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// SaveRecordInput is everything needed to persist a snapshot. Fields drive the
// type-aware coercion of numeric answers.
type SaveRecordInput struct {
	ClientID   uuid.UUID
	TemplateID uuid.UUID
	Answers    Answers
	Score      int
	Matches    []Recommendation
	Fields     []Field
}
