package database

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ChangeEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event models.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) kinds() []models.ChangeKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []models.ChangeKind
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

func TestNotifyingStorePublishesWrites(t *testing.T) {
	pub := &recordingPublisher{}
	store := NewNotifyingStore(newTestSQLite(t), pub, nil)
	ctx := context.Background()

	saved, err := store.Insert(ctx, directVideo("u", "clams", "Hip"))
	require.NoError(t, err)

	title := "Clamshells"
	_, err = store.Update(ctx, saved.ID, "u", models.VideoPatch{Title: &title})
	require.NoError(t, err)
	require.NoError(t, store.SoftDelete(ctx, saved.ID, "u"))

	assert.Equal(t, []models.ChangeKind{models.ChangeInsert, models.ChangeUpdate, models.ChangeDelete}, pub.kinds())

	insert := pub.events[0]
	assert.Equal(t, models.VideosTable, insert.Table)
	assert.Equal(t, saved.ID, insert.Record.ID)
	assert.True(t, insert.Record.IsActive)
	assert.False(t, insert.CommittedAt.IsZero())

	assert.Equal(t, "Clamshells", pub.events[1].Record.Title)

	deleted := pub.events[2].Record
	assert.Equal(t, saved.ID, deleted.ID)
	assert.Equal(t, "u", deleted.OwnerID)
	assert.False(t, deleted.IsActive)
}

func TestNotifyingStoreSkipsFailedWrites(t *testing.T) {
	pub := &recordingPublisher{}
	store := NewNotifyingStore(newTestSQLite(t), pub, nil)
	ctx := context.Background()

	_, err := store.Insert(ctx, directVideo("", "orphan", ""))
	require.ErrorIs(t, err, ErrInvalidVideo)

	title := "x"
	_, err = store.Update(ctx, "missing", "u", models.VideoPatch{Title: &title})
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, store.SoftDelete(ctx, "missing", "u"), ErrNotFound)

	_, err = store.ListActive(ctx, "u")
	require.NoError(t, err)
	_, err = store.Search(ctx, "u", "x")
	require.NoError(t, err)

	assert.Empty(t, pub.kinds())
}

func TestNotifyingStoreKeepsWriteWhenPublishFails(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	store := NewNotifyingStore(newTestSQLite(t), pub, nil)
	ctx := context.Background()

	saved, err := store.Insert(ctx, directVideo("u", "bands", ""))
	require.NoError(t, err)

	got, err := store.Get(ctx, saved.ID, "u")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
}

func TestNotifyingStorePublishesAfterCancel(t *testing.T) {
	pub := &recordingPublisher{}
	store := NewNotifyingStore(newTestSQLite(t), pub, nil)

	saved, err := store.Insert(context.Background(), directVideo("u", "steps", ""))
	require.NoError(t, err)

	// The caller gave up after the write committed
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store.publish(ctx, models.NewChangeEvent(models.ChangeUpdate, saved))

	assert.Equal(t, []models.ChangeKind{models.ChangeInsert, models.ChangeUpdate}, pub.kinds())
}
