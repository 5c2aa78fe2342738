package library

import (
	"sort"

	"github.com/therealutkarshpriyadarshi/videosync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

type opKind int

const (
	// opInsert shows a record the store accepted before its insert event arrives
	opInsert opKind = iota
	// opSelect shows a new lastPlayed stamp before its update event arrives
	opSelect
)

type pendingOp struct {
	kind   opKind
	record *models.Video
	// settled is set once the store call behind the entry has succeeded
	settled bool
}

func (e *Engine) addOverlayLocked(kind opKind, record *models.Video, settled bool) uint64 {
	e.nextOp++
	id := e.nextOp
	e.overlay[id] = &pendingOp{kind: kind, record: record.Clone(), settled: settled}
	metrics.OverlayEntries.Inc()
	return id
}

func (e *Engine) dropOverlayLocked(op uint64) {
	if _, ok := e.overlay[op]; ok {
		delete(e.overlay, op)
		metrics.OverlayEntries.Dec()
	}
}

func (e *Engine) dropOverlayForLocked(videoID string) {
	for op, p := range e.overlay {
		if p.record.ID == videoID {
			e.dropOverlayLocked(op)
		}
	}
}

// dropSettledSelectsLocked drops select entries whose lastPlayed write has
// succeeded. Insert entries wait for their record to be confirmed.
func (e *Engine) dropSettledSelectsLocked() {
	for op, p := range e.overlay {
		if p.kind == opSelect && p.settled {
			e.dropOverlayLocked(op)
		}
	}
}

// renderedLocked merges the overlay over the confirmed list. Overlay records
// replace confirmed records with the same id, later operations winning;
// unconfirmed inserts are added in creation order.
func (e *Engine) renderedLocked() []*models.Video {
	if len(e.overlay) == 0 {
		return e.confirmed
	}

	ops := make([]uint64, 0, len(e.overlay))
	for op := range e.overlay {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })

	out := make([]*models.Video, len(e.confirmed))
	copy(out, e.confirmed)

	for _, op := range ops {
		p := e.overlay[op]
		if i := indexOf(out, p.record.ID); i >= 0 {
			out[i] = p.record
			continue
		}
		if p.kind == opInsert {
			out = insertByCreatedAt(out, p.record)
		}
	}
	return out
}

// insertByCreatedAt places v in a newest-first list ahead of records created
// at the same time or earlier
func insertByCreatedAt(videos []*models.Video, v *models.Video) []*models.Video {
	i := sort.Search(len(videos), func(i int) bool {
		return !videos[i].CreatedAt.After(v.CreatedAt)
	})
	videos = append(videos, nil)
	copy(videos[i+1:], videos[i:])
	videos[i] = v
	return videos
}
