package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// Answers maps a field id to its value: a string, a number, a list of strings, or nil.
type Answers map[string]interface{}

// Clone returns a copy of a whose list values are copied too.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch x := v.(type) {
	case []string:
		return append([]string{}, x...)
	case []interface{}:
		return append([]interface{}{}, x...)
	default:
		return v
	}
}

// Fingerprint is the canonical JSON encoding of a, used to detect unsaved changes.
// encoding/json sorts map keys, so equal maps encode identically.
func (a Answers) Fingerprint() string {
	if len(a) == 0 {
		return "{}"
	}
	b, err := json.Marshal(a)
	if err != nil {
		return ""
	}
	return string(b)
}

// Equal reports whether a and b hold the same values.
func (a Answers) Equal(b Answers) bool {
	return a.Fingerprint() == b.Fingerprint()
}

// ValueEqual compares two answer values by their JSON encoding.
func ValueEqual(x, y interface{}) bool {
	bx, errX := json.Marshal(x)
	by, errY := json.Marshal(y)
	return errX == nil && errY == nil && string(bx) == string(by)
}

// Scan implements sql.Scanner for the json answers column.
func (a *Answers) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		*a = Answers{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("unsupported type for Answers")
	}
	out := Answers{}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &out); err != nil {
			return err
		}
	}
	if out == nil {
		out = Answers{}
	}
	*a = out
	return nil
}

// Value implements driver.Valuer for the json answers column.
func (a Answers) Value() (driver.Value, error) {
	if a == nil {
		return "{}", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// MergeAnswers reconciles two answer sets onto fields. For each field id an
// explicit entry in current wins (even an empty or nil one), otherwise previous
// is used; ids present in neither are omitted, and ids outside fields are dropped.
func MergeAnswers(previous, current Answers, fields []Field) Answers {
	out := make(Answers, len(fields))
	for _, f := range fields {
		if v, ok := current[f.ID]; ok {
			out[f.ID] = cloneValue(v)
		} else if v, ok := previous[f.ID]; ok {
			out[f.ID] = cloneValue(v)
		}
	}
	return out
}

// CoerceAnswers prepares answers for storage: number and currency answers are
// parsed to finite numbers (a comma decimal separator is accepted) or nil when
// unparseable. Every other value passes through unchanged.
func CoerceAnswers(answers Answers, fields []Field) Answers {
	numeric := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Type.Numeric() {
			numeric[f.ID] = true
		}
	}
	out := make(Answers, len(answers))
	for k, v := range answers {
		if numeric[k] {
			out[k] = coerceNumber(v)
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

func coerceNumber(v interface{}) interface{} {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case float32:
		n = float64(x)
	case int:
		n = float64(x)
	case int64:
		n = float64(x)
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil
		}
		n = f
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), ",", ".")
		if s == "" {
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		n = f
	default:
		return nil
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return nil
	}
	return n
}
