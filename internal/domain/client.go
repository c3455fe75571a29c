package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client tag values offered when creating a client.
const (
	TagLead        = "Lead"
	TagTrader      = "Trader"
	TagIB          = "IB"
	TagFundManager = "Fund Manager"
	TagRegional    = "Regional"
)

var ClientTags = []string{TagLead, TagTrader, TagIB, TagFundManager, TagRegional}

// IsValidTag returns true if tag is one of ClientTags.
func IsValidTag(tag string) bool {
	for _, t := range ClientTags {
		if t == tag {
			return true
		}
	}
	return false
}

const DefaultConfidenceScore = 50

// Client is a prospect owned by an org. Its notes, answer snapshots and
// layout overrides are owned by the client.
type Client struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrgID           uuid.UUID  `gorm:"column:org_id;type:uuid;not null;index" json:"org_id"`
	Name            string     `gorm:"column:name;not null" json:"name"`
	Tag             string     `gorm:"column:tag;not null;default:'Lead'" json:"tag"`
	ConfidenceScore int        `gorm:"column:confidence_score;not null;default:50" json:"confidence_score"`
	ConfidenceNote  string     `gorm:"column:confidence_note" json:"confidence_note"`
	CreatedBy       *uuid.UUID `gorm:"column:created_by;type:uuid" json:"created_by"`
	CreatedAt       time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Client) TableName() string {
	return "clients"
}

func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// ClampConfidence bounds a confidence score to 0..100.
func ClampConfidence(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// ConfidenceBand is the traffic-light chip shown next to a confidence score.
func ConfidenceBand(score int) string {
	switch {
	case score < 40:
		return "Rojo"
	case score < 70:
		return "Ámbar"
	default:
		return "Verde"
	}
}
