package library

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/videosync/internal/database"
	"github.com/therealutkarshpriyadarshi/videosync/internal/feed"
	"github.com/therealutkarshpriyadarshi/videosync/internal/resolver"
	"github.com/therealutkarshpriyadarshi/videosync/internal/selection"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

const owner = "user-1"

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeStore is an in-memory VideoStore that never publishes events, so
// tests drive reconciliation through Apply
type fakeStore struct {
	mu     sync.Mutex
	videos []*models.Video
	nextID int

	insertErr error
	listErr   error
	updateErr error
	deleteErr error
	searchErr error

	updates  []models.VideoPatch
	searches []string
}

func (s *fakeStore) Insert(_ context.Context, video *models.Video) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	s.nextID++
	v := video.Clone()
	v.ID = fmt.Sprintf("v%d", s.nextID)
	v.IsActive = true
	v.CreatedAt = epoch.Add(time.Duration(100+s.nextID) * time.Minute)
	v.UpdatedAt = v.CreatedAt
	s.videos = append([]*models.Video{v}, s.videos...)
	return v.Clone(), nil
}

func (s *fakeStore) ListActive(_ context.Context, ownerID string) ([]*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*models.Video
	for _, v := range s.videos {
		if v.OwnerID == ownerID && v.IsActive {
			out = append(out, v.Clone())
		}
	}
	return out, nil
}

func (s *fakeStore) Update(_ context.Context, id, ownerID string, patch models.VideoPatch) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, patch)
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	for _, v := range s.videos {
		if v.ID == id && v.OwnerID == ownerID && v.IsActive {
			patch.Apply(v)
			return v.Clone(), nil
		}
	}
	return nil, database.ErrNotFound
}

func (s *fakeStore) SoftDelete(_ context.Context, id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	for _, v := range s.videos {
		if v.ID == id && v.OwnerID == ownerID {
			v.IsActive = false
			return nil
		}
	}
	return database.ErrNotFound
}

func (s *fakeStore) Search(_ context.Context, ownerID, query string) ([]*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches = append(s.searches, query)
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	var out []*models.Video
	for _, v := range s.videos {
		if v.OwnerID == ownerID && v.IsActive && strings.Contains(strings.ToLower(v.Title), strings.ToLower(query)) {
			out = append(out, v.Clone())
		}
	}
	return out, nil
}

func (s *fakeStore) seed(videos ...*models.Video) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos = append(s.videos, videos...)
}

func (s *fakeStore) patches() []models.VideoPatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.VideoPatch(nil), s.updates...)
}

// stubResolver classifies with the real rules and pretends the provider
// lookup returned title
type stubResolver struct {
	title string
	err   error
	calls int
	mu    sync.Mutex
}

func (r *stubResolver) Resolve(ctx context.Context, rawURL, title, category string) (*models.Video, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	v, err := resolver.NewNop("", nil).Resolve(ctx, rawURL, title, category)
	if err != nil {
		return nil, err
	}
	if v.Type == models.VideoTypeYouTube && title == "" && r.title != "" {
		v.Title = r.title
	}
	return v, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	errors    []string
}

func (n *recordingNotifier) Success(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, message)
}

func (n *recordingNotifier) Error(message string, _ error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, message)
}

func (n *recordingNotifier) errorMessages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.errors...)
}

func (n *recordingNotifier) successMessages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.successes...)
}

type failingFeed struct{}

func (failingFeed) Subscribe(context.Context, string, feed.Handler) (feed.Subscription, error) {
	return nil, fmt.Errorf("websocket closed")
}

func video(id, category string, minute int) *models.Video {
	return &models.Video{
		ID:          id,
		Title:       "Video " + id,
		OriginalURL: "https://example.com/" + id + ".mp4",
		Type:        models.VideoTypeDirect,
		EmbedURL:    "https://example.com/" + id + ".mp4",
		Category:    category,
		IsActive:    true,
		OwnerID:     owner,
		Metadata:    models.Metadata{},
		CreatedAt:   epoch.Add(time.Duration(minute) * time.Minute),
		UpdatedAt:   epoch.Add(time.Duration(minute) * time.Minute),
	}
}

func ids(videos []*models.Video) []string {
	out := make([]string, 0, len(videos))
	for _, v := range videos {
		out = append(out, v.ID)
	}
	return out
}

func startEngine(t *testing.T, store VideoStore, f feed.Feed, sel selection.Store, opts ...Option) *Engine {
	t.Helper()

	e, err := New(owner, store, f, &stubResolver{}, sel, opts...)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Close() })
	return e
}

// liveEnv is a real SQLite store publishing through an in-memory hub
type liveEnv struct {
	hub   *feed.Memory
	store *database.NotifyingStore
}

func newLiveEnv(t *testing.T) liveEnv {
	t.Helper()

	sqlite, err := database.NewSQLiteStore(filepath.Join(t.TempDir(), "videos.db"))
	require.NoError(t, err)
	hub := feed.NewMemory(nil)

	t.Cleanup(func() {
		_ = hub.Close()
		sqlite.Close()
	})
	return liveEnv{hub: hub, store: database.NewNotifyingStore(sqlite, hub, nil)}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 5*time.Millisecond, msg)
}

// gatedListStore holds ListActive calls made after gate is set until release
// is closed. The list is read before blocking, so a held call returns a
// snapshot from before anything written while it waits.
type gatedListStore struct {
	*fakeStore
	gate    chan struct{}
	release chan struct{}
}

func (s *gatedListStore) ListActive(ctx context.Context, ownerID string) ([]*models.Video, error) {
	videos, err := s.fakeStore.ListActive(ctx, ownerID)
	if s.gate != nil {
		s.gate <- struct{}{}
		<-s.release
	}
	return videos, err
}

// blockingSelection holds Clear calls until release is closed and signals
// cleared when the first one starts
type blockingSelection struct {
	*selection.MemoryStore
	cleared chan struct{}
	release chan struct{}
}

func newBlockingSelection() *blockingSelection {
	return &blockingSelection{
		MemoryStore: selection.NewMemoryStore(),
		cleared:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
}

func (s *blockingSelection) Clear(ctx context.Context, key string) error {
	select {
	case s.cleared <- struct{}{}:
	default:
	}
	<-s.release
	return s.MemoryStore.Clear(ctx, key)
}

func waitFor(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal(msg)
	}
}
