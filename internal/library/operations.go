package library

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/videosync/internal/resolver"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

type activity int

const (
	loadingActivity activity = 1 << iota
	syncingActivity
)

// begin raises the status flags for an operation and returns the matching
// cleanup. Counters let overlapping operations keep each other's flags up.
func (e *Engine) begin(a activity) func() {
	e.mu.Lock()
	if a&loadingActivity != 0 {
		e.loading++
	}
	if a&syncingActivity != 0 {
		e.syncing++
	}
	e.mu.Unlock()
	e.emit()

	return func() {
		e.mu.Lock()
		if a&loadingActivity != 0 {
			e.loading--
		}
		if a&syncingActivity != 0 {
			e.syncing--
		}
		e.mu.Unlock()
		e.emit()
	}
}

func (e *Engine) clearError() {
	e.mu.Lock()
	e.errMsg = ""
	e.mu.Unlock()
}

// fail records a write failure in State.Error, notifies and returns the error
func (e *Engine) fail(message string, err error) error {
	e.mu.Lock()
	e.errMsg = message + ": " + err.Error()
	e.mu.Unlock()

	e.logger.ErrorWithErr(message, err)
	e.notifier.Error(message, err)
	return fmt.Errorf("%s: %w", strings.ToLower(message[:1])+message[1:], err)
}

// AddVideo resolves rawURL, inserts the record and selects it. The record is
// shown through the overlay until its insert event arrives.
func (e *Engine) AddVideo(ctx context.Context, rawURL, title, category string) (*models.Video, error) {
	defer e.begin(loadingActivity | syncingActivity)()
	e.clearError()

	if strings.TrimSpace(rawURL) == "" {
		return nil, e.fail("Failed to add video", resolver.ErrEmptyURL)
	}

	record, err := e.resolver.Resolve(ctx, rawURL, title, category)
	if err != nil {
		return nil, e.fail("Failed to add video", err)
	}
	record.OwnerID = e.ownerID

	saved, err := e.store.Insert(ctx, record)
	if err != nil {
		return nil, e.fail("Failed to add video", err)
	}

	e.mu.Lock()
	// The insert event may already have been applied
	if _, ok := e.seen[saved.ID]; !ok {
		e.addOverlayLocked(opInsert, saved, true)
	}
	e.currentID = saved.ID
	e.currentSnap = saved.Clone()
	e.pendingRestore = ""
	e.mu.Unlock()

	e.persistSelection(ctx)
	e.emit()

	e.logger.WithVideoID(saved.ID).Info("Video added")
	return saved.Clone(), nil
}

// SelectVideo makes v the current video and persists the choice before any
// network call. The lastPlayed stamp is written in the background; its
// failure is logged and does not undo the selection. A nil v clears the selection.
func (e *Engine) SelectVideo(ctx context.Context, v *models.Video) {
	if v == nil {
		e.ClearCurrentVideo(ctx)
		return
	}

	tentative := v.Clone()
	tentative.Metadata = tentative.Metadata.Merge(nil)
	tentative.Metadata[models.MetaLastPlayed] = e.now().Format(time.RFC3339Nano)

	e.mu.Lock()
	e.currentID = v.ID
	e.currentSnap = v.Clone()
	e.pendingRestore = ""
	op := e.addOverlayLocked(opSelect, tentative, false)
	e.mu.Unlock()

	e.persistSelection(ctx)
	e.emit()

	e.effects.Add(1)
	go func() {
		defer e.effects.Done()

		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.sideEffectTimeout)
		defer cancel()

		_, err := e.store.Update(bg, v.ID, e.ownerID, models.VideoPatch{Metadata: tentative.Metadata})

		e.mu.Lock()
		if err != nil {
			e.dropOverlayLocked(op)
		} else if p, ok := e.overlay[op]; ok {
			p.settled = true
		}
		e.mu.Unlock()

		if err != nil {
			e.logger.WithVideoID(v.ID).WarnWithErr("Failed to record last played", err)
			e.emit()
		}
	}()
}

// RemoveVideo soft-deletes id. The list itself changes when the delete event
// arrives; the selection is cleared as soon as the store confirms.
func (e *Engine) RemoveVideo(ctx context.Context, id string) error {
	defer e.begin(syncingActivity)()
	e.clearError()

	if err := e.store.SoftDelete(ctx, id, e.ownerID); err != nil {
		return e.fail("Failed to remove video", err)
	}

	e.mu.Lock()
	e.dropOverlayForLocked(id)
	clearSelection := false
	if e.currentID == id {
		e.currentID = ""
		e.currentSnap = nil
		clearSelection = true
	}
	if e.pendingRestore == id {
		e.pendingRestore = ""
		clearSelection = true
	}
	e.mu.Unlock()

	if clearSelection {
		e.persistSelection(ctx)
	}
	e.emit()

	e.logger.WithVideoID(id).Info("Video removed")
	return nil
}

// UpdateVideo applies patch in the store. The view changes when the update
// event arrives, so it always shows server-accepted state.
func (e *Engine) UpdateVideo(ctx context.Context, id string, patch models.VideoPatch) (*models.Video, error) {
	defer e.begin(syncingActivity)()
	e.clearError()

	if patch.Empty() {
		return nil, e.fail("Failed to update video", ErrEmptyPatch)
	}
	if patch.Thumbnail != nil || patch.Duration != nil {
		return nil, e.fail("Failed to update video", ErrReadOnlyField)
	}

	updated, err := e.store.Update(ctx, id, e.ownerID, patch)
	if err != nil {
		return nil, e.fail("Failed to update video", err)
	}

	e.notifier.Success("Video updated successfully!")
	return updated.Clone(), nil
}

// RefreshVideos replaces the confirmed list with a fresh fetch. Insert
// overlays are dropped once the fetch contains their record, since the fetch
// may predate an insert made while it ran. A restored selection the fetch
// does not contain is dropped. It is the manual recovery path after missed events.
func (e *Engine) RefreshVideos(ctx context.Context) error {
	defer e.begin(loadingActivity)()

	videos, err := e.store.ListActive(ctx, e.ownerID)
	if err != nil {
		return e.fail("Failed to refresh videos", err)
	}

	e.mu.Lock()
	e.errMsg = ""
	e.confirmed = cloneAll(videos)
	e.dropSettledSelectsLocked()
	for _, v := range e.confirmed {
		e.seen[v.ID] = struct{}{}
		for op, p := range e.overlay {
			if p.kind == opInsert && p.record.ID == v.ID {
				e.dropOverlayLocked(op)
			}
		}
	}
	e.resolvePendingLocked()

	clearSelection := false
	rendered := e.renderedLocked()
	if e.currentID != "" && findByID(rendered, e.currentID) == nil {
		e.currentID = ""
		e.currentSnap = nil
		clearSelection = true
	}
	if e.pendingRestore != "" {
		e.pendingRestore = ""
		clearSelection = true
	}
	e.mu.Unlock()

	if clearSelection {
		e.persistSelection(ctx)
	}
	e.emit()
	return nil
}

// ClearCurrentVideo unsets the selection and its persisted copy
func (e *Engine) ClearCurrentVideo(ctx context.Context) {
	e.mu.Lock()
	e.currentID = ""
	e.currentSnap = nil
	e.pendingRestore = ""
	e.mu.Unlock()

	e.persistSelection(ctx)
	e.emit()
}

// FilterVideosByCategory sets the client-side category filter. A blank
// category selects everything.
func (e *Engine) FilterVideosByCategory(category string) {
	if strings.TrimSpace(category) == "" {
		category = models.AllCategories
	}

	e.mu.Lock()
	e.selectedCategory = category
	e.mu.Unlock()
	e.emit()
}

// SearchVideos returns the rendered list for a blank query and the store's
// matches otherwise. Failures are notified and returned but do not touch
// State.Error.
func (e *Engine) SearchVideos(ctx context.Context, query string) ([]*models.Video, error) {
	if strings.TrimSpace(query) == "" {
		e.mu.Lock()
		defer e.mu.Unlock()
		return cloneAll(e.renderedLocked()), nil
	}

	defer e.begin(syncingActivity)()

	results, err := e.store.Search(ctx, e.ownerID, query)
	if err != nil {
		e.logger.ErrorWithErr("Search failed", err)
		e.notifier.Error("Search failed", err)
		return nil, fmt.Errorf("search videos: %w", err)
	}
	return cloneAll(results), nil
}
