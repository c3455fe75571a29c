package domain

import "github.com/google/uuid"

// ChangeType mirrors the row-level change kinds emitted by the realtime feed.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// RecordChange notifies a new or changed answer snapshot. New may be nil or
// carry no answers when the transport dropped the payload detail.
type RecordChange struct {
	Type ChangeType    `json:"type"`
	New  *ClientRecord `json:"new,omitempty"`
}

// HasAnswers reports whether the payload can be applied without a refetch.
func (c RecordChange) HasAnswers() bool {
	return c.New != nil && c.New.Answers != nil
}

// NoteChange notifies an inserted, updated or deleted note.
type NoteChange struct {
	Type ChangeType `json:"type"`
	New  *Note      `json:"new,omitempty"`
	Old  *Note      `json:"old,omitempty"`
}

// Note returns the affected note when the payload is complete enough to patch
// local state by id.
func (c NoteChange) Note() (*Note, bool) {
	n := c.New
	if c.Type == ChangeDelete || n == nil {
		n = c.Old
	}
	if n == nil || n.FieldID == "" || n.ID == uuid.Nil {
		return nil, false
	}
	return n, true
}
