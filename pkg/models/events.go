package models

import "time"

// ChangeKind is the kind of committed mutation carried by a change event
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// ChangeEvent is one committed mutation delivered by the change feed.
// Record is the row snapshot after the commit; for deletes only ID and
// OwnerID are guaranteed.
type ChangeEvent struct {
	Kind        ChangeKind `json:"kind"`
	Table       string     `json:"table"`
	Record      *Video     `json:"record"`
	CommittedAt time.Time  `json:"committed_at"`
}

// NewChangeEvent builds an event for the videos table
func NewChangeEvent(kind ChangeKind, record *Video) ChangeEvent {
	return ChangeEvent{
		Kind:        kind,
		Table:       VideosTable,
		Record:      record.Clone(),
		CommittedAt: time.Now().UTC(),
	}
}

// RecordID returns the id of the affected record, or "" when the event has none
func (e ChangeEvent) RecordID() string {
	if e.Record == nil {
		return ""
	}
	return e.Record.ID
}
