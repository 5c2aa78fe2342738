// Package library keeps a live, owner-scoped view of a video collection in
// sync with the video store through the change feed.
//
// Confirmed state only changes through feed events and explicit refreshes.
// The user's own inserts and selections are shown optimistically through an
// overlay until the matching event arrives. Deletes and edits are never
// applied optimistically.
package library

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/videosync/internal/feed"
	"github.com/therealutkarshpriyadarshi/videosync/internal/logging"
	"github.com/therealutkarshpriyadarshi/videosync/internal/selection"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

var (
	// ErrNoOwner is returned when an engine is built without an owner
	ErrNoOwner = errors.New("library requires an owner id")
	// ErrAlreadyStarted is returned by a second call to Start
	ErrAlreadyStarted = errors.New("library already started")
	// ErrEmptyPatch is returned by UpdateVideo when the patch changes nothing
	ErrEmptyPatch = errors.New("no fields to update")
	// ErrReadOnlyField is returned by UpdateVideo for fields only metadata refresh may set
	ErrReadOnlyField = errors.New("thumbnail and duration cannot be edited")
)

// VideoStore is the subset of the video store the engine drives
type VideoStore interface {
	Insert(ctx context.Context, video *models.Video) (*models.Video, error)
	ListActive(ctx context.Context, ownerID string) ([]*models.Video, error)
	Update(ctx context.Context, id, ownerID string, patch models.VideoPatch) (*models.Video, error)
	SoftDelete(ctx context.Context, id, ownerID string) error
	Search(ctx context.Context, ownerID, query string) ([]*models.Video, error)
}

// Resolver turns a URL into an unsaved video record
type Resolver interface {
	Resolve(ctx context.Context, rawURL, title, category string) (*models.Video, error)
}

// State is a snapshot of everything the engine exposes. Records are copies.
// Version increases with every change, so a later snapshot always carries a
// larger Version.
type State struct {
	Version          uint64
	Videos           []*models.Video
	CurrentVideo     *models.Video
	Categories       []string
	SelectedCategory string
	IsLoading        bool
	IsSyncing        bool
	Error            string
	IsInitialized    bool
}

// Option configures an Engine
type Option func(*Engine)

// WithLogger sets the engine logger
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithNotifier sets the user-facing notification surface
func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithNamespacedSelection controls whether the persisted selection key
// includes the owner id. The default is true.
func WithNamespacedSelection(namespaced bool) Option {
	return func(e *Engine) { e.namespaced = namespaced }
}

// WithClock overrides the clock used for lastPlayed stamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSideEffectTimeout bounds the lastPlayed update and each selection write
func WithSideEffectTimeout(d time.Duration) Option {
	return func(e *Engine) { e.sideEffectTimeout = d }
}

// Engine is the synchronized video library of one owner
type Engine struct {
	ownerID   string
	store     VideoStore
	feed      feed.Feed
	resolver  Resolver
	selection selection.Store

	logger            *logging.Logger
	notifier          Notifier
	namespaced        bool
	now               func() time.Time
	sideEffectTimeout time.Duration

	mu               sync.Mutex
	confirmed        []*models.Video
	overlay          map[uint64]*pendingOp
	nextOp           uint64
	seen             map[string]struct{}
	currentID        string
	currentSnap      *models.Video
	pendingRestore   string
	selectedCategory string
	loading          int
	syncing          int
	errMsg           string
	initialized      bool
	started          bool
	listeners        map[uint64]func(State)
	nextListener     uint64
	version          uint64

	// persisting is set while one caller writes the selection store;
	// persistDirty asks it to write again before it returns
	persisting   bool
	persistDirty bool

	sub       feed.Subscription
	closeOnce sync.Once
	effects   sync.WaitGroup
}

// New creates an engine for ownerID. f may be nil, in which case the view
// only changes through the engine's own calls and RefreshVideos.
func New(ownerID string, store VideoStore, f feed.Feed, resolver Resolver, sel selection.Store, opts ...Option) (*Engine, error) {
	if ownerID == "" {
		return nil, ErrNoOwner
	}
	if store == nil || resolver == nil {
		return nil, errors.New("library requires a store and a resolver")
	}
	if sel == nil {
		sel = selection.NewMemoryStore()
	}

	e := &Engine{
		ownerID:           ownerID,
		store:             store,
		feed:              f,
		resolver:          resolver,
		selection:         sel,
		namespaced:        true,
		now:               func() time.Time { return time.Now().UTC() },
		sideEffectTimeout: 10 * time.Second,
		overlay:           make(map[uint64]*pendingOp),
		seen:              make(map[string]struct{}),
		selectedCategory:  models.AllCategories,
		listeners:         make(map[uint64]func(State)),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.Nop()
	}
	e.logger = e.logger.WithComponent("library").WithOwnerID(ownerID)
	if e.notifier == nil {
		e.notifier = NewLogNotifier(e.logger)
	}

	return e, nil
}

// OwnerID returns the owner the engine is scoped to
func (e *Engine) OwnerID() string {
	return e.ownerID
}

// SelectionKey returns the key the current selection is persisted under
func (e *Engine) SelectionKey() string {
	return selection.Key(e.ownerID, e.namespaced)
}

// Start fetches the library, subscribes to the change feed and restores the
// persisted selection. A failed fetch is reported through State.Error and a
// failed subscription is only logged; both leave the engine usable.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.loading++
	e.mu.Unlock()
	e.emit()

	videos, err := e.store.ListActive(ctx, e.ownerID)

	e.mu.Lock()
	if err != nil {
		e.errMsg = "Failed to load videos: " + err.Error()
	} else {
		e.confirmed = cloneAll(videos)
	}
	e.mu.Unlock()

	if err != nil {
		e.logger.ErrorWithErr("Failed to load videos", err)
		e.notifier.Error("Failed to load videos", err)
	}

	if e.feed != nil {
		sub, subErr := e.feed.Subscribe(ctx, models.VideosTable, e.Apply)
		if subErr != nil {
			e.logger.WarnWithErr("Change feed subscription failed, serving last snapshot", subErr)
		} else {
			e.mu.Lock()
			e.sub = sub
			e.mu.Unlock()
		}
	}

	restored, loadErr := e.selection.Load(ctx, e.SelectionKey())
	if loadErr != nil {
		e.logger.WarnWithErr("Failed to read persisted selection", loadErr)
	}

	e.mu.Lock()
	if restored != "" && e.currentID == "" {
		e.pendingRestore = restored
		e.resolvePendingLocked()
	}
	e.initialized = true
	e.loading--
	e.mu.Unlock()

	e.emit()
	return nil
}

// Close unsubscribes from the change feed and waits for background side
// effects started by SelectVideo. It is safe to call more than once.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		sub := e.sub
		e.sub = nil
		e.mu.Unlock()

		if sub != nil {
			err = sub.Unsubscribe()
		}
		e.effects.Wait()
	})
	return err
}

// State returns a snapshot of the current view
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// OnChange registers fn to receive a snapshot after every change. Listeners
// run outside the engine lock and may run concurrently with each other, so
// snapshots can arrive out of order; keep the one with the highest Version.
func (e *Engine) OnChange(fn func(State)) (cancel func()) {
	e.mu.Lock()
	id := e.nextListener
	e.nextListener++
	e.listeners[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

func (e *Engine) stateLocked() State {
	videos := e.renderedLocked()
	return State{
		Version:          e.version,
		Videos:           cloneAll(videos),
		CurrentVideo:     e.currentLocked(videos).Clone(),
		Categories:       categoriesOf(videos),
		SelectedCategory: e.selectedCategory,
		IsLoading:        e.loading > 0,
		IsSyncing:        e.syncing > 0,
		Error:            e.errMsg,
		IsInitialized:    e.initialized,
	}
}

func (e *Engine) emit() {
	e.mu.Lock()
	e.version++
	if len(e.listeners) == 0 {
		e.mu.Unlock()
		return
	}
	state := e.stateLocked()
	listeners := make([]func(State), 0, len(e.listeners))
	for _, fn := range e.listeners {
		listeners = append(listeners, fn)
	}
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

// currentLocked resolves the selection against the rendered view, falling
// back to the snapshot taken when it was selected
func (e *Engine) currentLocked(rendered []*models.Video) *models.Video {
	if e.currentID == "" {
		return nil
	}
	if v := findByID(rendered, e.currentID); v != nil {
		return v
	}
	return e.currentSnap
}

func (e *Engine) resolvePendingLocked() {
	if e.pendingRestore == "" {
		return
	}
	if v := findByID(e.renderedLocked(), e.pendingRestore); v != nil {
		e.currentID = v.ID
		e.currentSnap = v.Clone()
		e.pendingRestore = ""
	}
}

// persistedLocked is the id the selection store should hold
func (e *Engine) persistedLocked() string {
	if e.currentID != "" {
		return e.currentID
	}
	return e.pendingRestore
}

// persistSelection writes the selection the engine holds now. Only one
// caller writes at a time; a change made while a write is in flight is
// picked up by that writer before it returns, so the last write always
// matches the latest selection.
func (e *Engine) persistSelection(ctx context.Context) {
	e.mu.Lock()
	e.persistDirty = true
	if e.persisting {
		e.mu.Unlock()
		return
	}
	e.persisting = true
	for e.persistDirty {
		e.persistDirty = false
		id := e.persistedLocked()
		e.mu.Unlock()

		e.writeSelection(ctx, id)
		// Later passes write on behalf of other callers
		ctx = context.WithoutCancel(ctx)

		e.mu.Lock()
	}
	e.persisting = false
	e.mu.Unlock()
}

func (e *Engine) writeSelection(ctx context.Context, id string) {
	ctx, cancel := context.WithTimeout(ctx, e.sideEffectTimeout)
	defer cancel()

	var err error
	if id == "" {
		err = e.selection.Clear(ctx, e.SelectionKey())
	} else {
		err = e.selection.Save(ctx, e.SelectionKey(), id)
	}
	if err != nil {
		e.logger.WithVideoID(id).WarnWithErr("Failed to persist selection", err)
	}
}

func findByID(videos []*models.Video, id string) *models.Video {
	for _, v := range videos {
		if v.ID == id {
			return v
		}
	}
	return nil
}

func indexOf(videos []*models.Video, id string) int {
	for i, v := range videos {
		if v.ID == id {
			return i
		}
	}
	return -1
}

func cloneAll(videos []*models.Video) []*models.Video {
	out := make([]*models.Video, 0, len(videos))
	for _, v := range videos {
		out = append(out, v.Clone())
	}
	return out
}
