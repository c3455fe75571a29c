package domain

// FieldType is the closed set of question types a template may carry.
type FieldType string

const (
	FieldText        FieldType = "text"
	FieldNumber      FieldType = "number"
	FieldCurrency    FieldType = "currency"
	FieldSelect      FieldType = "select"
	FieldMultiSelect FieldType = "multiselect"
	FieldNote        FieldType = "note"
	FieldDate        FieldType = "date"
)

// FieldTypes lists every accepted type in display order.
var FieldTypes = []FieldType{FieldText, FieldNumber, FieldCurrency, FieldSelect, FieldMultiSelect, FieldNote, FieldDate}

// Valid reports whether t is one of the known field types.
func (t FieldType) Valid() bool {
	for _, ft := range FieldTypes {
		if ft == t {
			return true
		}
	}
	return false
}

// HasOptions reports whether fields of this type carry an options list.
func (t FieldType) HasOptions() bool {
	return t == FieldSelect || t == FieldMultiSelect
}

// Numeric reports whether answers of this type are coerced to numbers on save.
func (t FieldType) Numeric() bool {
	return t == FieldNumber || t == FieldCurrency
}

// Canonical defaults for a field's grid position and size.
const (
	DefaultFieldX = 1
	DefaultFieldY = 1
	DefaultFieldW = 3
	DefaultFieldH = 2
)

// Field is one question of a template.
type Field struct {
	ID      string    `json:"id"`
	Label   string    `json:"label"`
	Type    FieldType `json:"type"`
	Options []string  `json:"options,omitempty"`
	X       int       `json:"x"`
	Y       int       `json:"y"`
	W       int       `json:"w"`
	H       int       `json:"h"`
	Order   int       `json:"order"`
}

// Clone returns a copy of f that shares no memory with it.
func (f Field) Clone() Field {
	if f.Options != nil {
		f.Options = append([]string{}, f.Options...)
	}
	return f
}
