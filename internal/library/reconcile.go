package library

import (
	"context"

	"github.com/therealutkarshpriyadarshi/videosync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

const (
	outcomeApplied = "applied"
	outcomeRemoved = "removed"
	outcomeIgnored = "ignored"
)

// Apply reconciles one change event into the view. Events for other tables
// or other owners are ignored. Replaying an event leaves the view unchanged.
// Apply is the change-feed handler; tests may call it directly.
func (e *Engine) Apply(event models.ChangeEvent) {
	kind := string(event.Kind)
	if event.Table != models.VideosTable || event.Record == nil || event.Record.ID == "" ||
		event.Record.OwnerID != e.ownerID {
		metrics.RecordReconciliation(kind, outcomeIgnored)
		return
	}

	record := event.Record.Clone()
	e.logger.LogFeedEvent("apply", kind, event.Table, record.ID)

	var (
		outcome        = outcomeApplied
		clearSelection bool
		added, removed bool
	)

	e.mu.Lock()
	e.seen[record.ID] = struct{}{}
	e.dropOverlayForLocked(record.ID)

	switch {
	case event.Kind == models.ChangeDelete, !record.IsActive:
		outcome = outcomeRemoved
		removed, clearSelection = e.removeLocked(record.ID)
	case event.Kind == models.ChangeInsert, event.Kind == models.ChangeUpdate:
		added = e.upsertLocked(record)
	default:
		outcome = outcomeIgnored
	}
	e.resolvePendingLocked()
	e.mu.Unlock()

	metrics.RecordReconciliation(kind, outcome)

	if clearSelection {
		e.persistSelection(context.Background())
	}
	if added && event.Kind == models.ChangeInsert {
		e.notifier.Success("Video added successfully!")
	}
	if removed {
		e.notifier.Success("Video removed")
	}
	e.emit()
}

// upsertLocked replaces the record with the same id in place, or inserts it
// in creation order. It reports whether the record was new.
func (e *Engine) upsertLocked(record *models.Video) bool {
	if i := indexOf(e.confirmed, record.ID); i >= 0 {
		e.confirmed[i] = record
		if e.currentID == record.ID {
			e.currentSnap = record.Clone()
		}
		return false
	}

	e.confirmed = insertByCreatedAt(e.confirmed, record)
	if e.currentID == record.ID {
		e.currentSnap = record.Clone()
	}
	return true
}

// removeLocked drops id from the confirmed list and the selection. It reports
// whether the record was present and whether the persisted selection must be cleared.
func (e *Engine) removeLocked(id string) (removed, clearSelection bool) {
	if i := indexOf(e.confirmed, id); i >= 0 {
		e.confirmed = append(e.confirmed[:i], e.confirmed[i+1:]...)
		removed = true
	}
	if e.currentID == id {
		e.currentID = ""
		e.currentSnap = nil
		clearSelection = true
	}
	if e.pendingRestore == id {
		e.pendingRestore = ""
		clearSelection = true
	}
	return removed, clearSelection
}
