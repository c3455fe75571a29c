package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TemplateRow is the stored shape of a template. Fields hold whatever was
// written; reads always go through NormalizeTemplate.
type TemplateRow struct {
	ID        uuid.UUID      `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrgID     uuid.UUID      `gorm:"column:org_id;type:uuid;not null;index" json:"org_id"`
	Name      string         `gorm:"column:name;not null" json:"name"`
	Fields    datatypes.JSON `gorm:"column:fields;type:jsonb;not null" json:"fields"`
	CreatedBy *uuid.UUID     `gorm:"column:created_by;type:uuid" json:"created_by"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt *time.Time     `gorm:"column:updated_at" json:"updated_at"`
}

func (TemplateRow) TableName() string {
	return "templates"
}

func (t *TemplateRow) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// Raw returns the untrusted form of the row for normalization.
func (t TemplateRow) Raw() RawTemplate {
	return RawTemplate{
		ID:        t.ID,
		OrgID:     t.OrgID,
		Name:      t.Name,
		Fields:    json.RawMessage(t.Fields),
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// RawTemplate is an untrusted object purporting to be a template.
type RawTemplate struct {
	ID        uuid.UUID       `json:"id"`
	OrgID     uuid.UUID       `json:"org_id"`
	Name      string          `json:"name"`
	Fields    json.RawMessage `json:"fields"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt *time.Time      `json:"updated_at"`
}

// DroppedField describes one raw field entry discarded by normalization.
type DroppedField struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// Template is a normalized, read-only question set. Accessors return copies;
// the only way to change a template is to normalize a new field list.
type Template struct {
	id        uuid.UUID
	orgID     uuid.UUID
	name      string
	fields    []Field
	createdAt time.Time
	updatedAt *time.Time
}

func (t Template) ID() uuid.UUID         { return t.id }
func (t Template) OrgID() uuid.UUID      { return t.orgID }
func (t Template) Name() string          { return t.name }
func (t Template) CreatedAt() time.Time  { return t.createdAt }
func (t Template) UpdatedAt() *time.Time { return t.updatedAt }
func (t Template) Len() int              { return len(t.fields) }

// Fields returns a deep copy of the fields in display order.
func (t Template) Fields() []Field {
	out := make([]Field, len(t.fields))
	for i, f := range t.fields {
		out[i] = f.Clone()
	}
	return out
}

// Field looks up a field by id.
func (t Template) Field(id string) (Field, bool) {
	for _, f := range t.fields {
		if f.ID == id {
			return f.Clone(), true
		}
	}
	return Field{}, false
}

// LabelMap maps each trimmed label to its field id. Later fields win on duplicate labels.
func (t Template) LabelMap() map[string]string {
	return LabelMap(t.fields)
}

// LabelMap maps each trimmed label to its field id.
func LabelMap(fields []Field) map[string]string {
	m := make(map[string]string, len(fields))
	for _, f := range fields {
		m[strings.TrimSpace(f.Label)] = f.ID
	}
	return m
}

// Raw converts the template back into its untrusted form. Normalizing the
// result yields an equivalent template.
func (t Template) Raw() RawTemplate {
	b, _ := json.Marshal(t.fields)
	return RawTemplate{
		ID:        t.id,
		OrgID:     t.orgID,
		Name:      t.name,
		Fields:    b,
		CreatedAt: t.createdAt,
		UpdatedAt: t.updatedAt,
	}
}

type templateJSON struct {
	ID        uuid.UUID  `json:"id"`
	OrgID     uuid.UUID  `json:"org_id"`
	Name      string     `json:"name"`
	Fields    []Field    `json:"fields"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

func (t Template) MarshalJSON() ([]byte, error) {
	fields := t.Fields()
	if fields == nil {
		fields = []Field{}
	}
	return json.Marshal(templateJSON{
		ID:        t.id,
		OrgID:     t.orgID,
		Name:      t.name,
		Fields:    fields,
		CreatedAt: t.createdAt,
		UpdatedAt: t.updatedAt,
	})
}

// NormalizeTemplate turns raw into a canonical Template. It fails only when the
// field list is not a JSON array; individual bad entries are dropped and reported.
func NormalizeTemplate(raw RawTemplate) (Template, []DroppedField, error) {
	fields, dropped, err := NormalizeFields(raw.Fields)
	if err != nil {
		return Template{}, nil, err
	}
	return Template{
		id:        raw.ID,
		orgID:     raw.OrgID,
		name:      raw.Name,
		fields:    fields,
		createdAt: raw.CreatedAt,
		updatedAt: raw.UpdatedAt,
	}, dropped, nil
}

// NormalizeFields sanitizes a raw JSON field list:
//   - entries without a string id or label, or with an unknown type, are dropped
//   - the first occurrence of an id wins
//   - bad positions and sizes fall back to the defaults
//   - a bad order falls back to the entry's index among the kept entries
//   - fields are sorted by order, then order is reassigned from 0
func NormalizeFields(data []byte) ([]Field, []DroppedField, error) {
	var entries []interface{}
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("%w: missing field list", ErrInvalidTemplate)
	}
	if err := json.Unmarshal(data, &entries); err != nil || entries == nil {
		return nil, nil, fmt.Errorf("%w: field list must be an array", ErrInvalidTemplate)
	}

	var dropped []DroppedField
	seen := make(map[string]bool, len(entries))
	fields := make([]Field, 0, len(entries))
	for i, entry := range entries {
		m, ok := entry.(map[string]interface{})
		if !ok {
			dropped = append(dropped, DroppedField{Index: i, Reason: "not an object"})
			continue
		}
		id, _ := m["id"].(string)
		id = strings.TrimSpace(id)
		if id == "" {
			dropped = append(dropped, DroppedField{Index: i, Reason: "missing id"})
			continue
		}
		label, _ := m["label"].(string)
		label = strings.TrimSpace(label)
		if label == "" {
			dropped = append(dropped, DroppedField{Index: i, ID: id, Reason: "missing label"})
			continue
		}
		typ, _ := m["type"].(string)
		ft := FieldType(typ)
		if !ft.Valid() {
			dropped = append(dropped, DroppedField{Index: i, ID: id, Reason: fmt.Sprintf("unknown type %q", typ)})
			continue
		}
		if seen[id] {
			dropped = append(dropped, DroppedField{Index: i, ID: id, Reason: "duplicate id"})
			continue
		}
		seen[id] = true

		f := Field{
			ID:    id,
			Label: label,
			Type:  ft,
			X:     intAtLeast(m["x"], 1, DefaultFieldX),
			Y:     intAtLeast(m["y"], 1, DefaultFieldY),
			W:     intAtLeast(m["w"], 1, DefaultFieldW),
			H:     intAtLeast(m["h"], 1, DefaultFieldH),
			Order: intAtLeast(m["order"], 0, len(fields)),
		}
		if ft.HasOptions() {
			f.Options = stringList(m["options"])
		}
		fields = append(fields, f)
	}

	sort.SliceStable(fields, func(a, b int) bool { return fields[a].Order < fields[b].Order })
	for i := range fields {
		fields[i].Order = i
	}
	return fields, dropped, nil
}

// intAtLeast reads a JSON number that must be an integer >= min.
func intAtLeast(v interface{}, min int, def int) int {
	n, ok := v.(float64)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) || n < float64(min) || n > math.MaxInt32 {
		return def
	}
	return int(n)
}

func stringList(v interface{}) []string {
	out := []string{}
	arr, ok := v.([]interface{})
	if !ok {
		return out
	}
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
