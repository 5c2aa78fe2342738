package feed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

func setupRedisFeed(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedis(client, nil), mr
}

func TestRedisPublishSubscribe(t *testing.T) {
	f, _ := setupRedisFeed(t)
	ctx := context.Background()

	var rec recorder
	sub, err := f.Subscribe(ctx, models.VideosTable, rec.handle)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	inserted := &models.Video{
		ID:       "v1",
		Title:    "Knee extension",
		Type:     models.VideoTypeYouTube,
		OwnerID:  "u1",
		IsActive: true,
		Metadata: models.Metadata{"source": "rehab_app"},
	}
	require.NoError(t, f.Publish(ctx, models.NewChangeEvent(models.ChangeInsert, inserted)))
	require.NoError(t, f.Publish(ctx, event(models.ChangeDelete, "v1", "u1")))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)

	got := rec.snapshot()
	assert.Equal(t, models.ChangeInsert, got[0].Kind)
	assert.Equal(t, models.VideosTable, got[0].Table)
	assert.Equal(t, "Knee extension", got[0].Record.Title)
	assert.Equal(t, "rehab_app", got[0].Record.Metadata["source"])
	assert.Equal(t, models.ChangeDelete, got[1].Kind)
	assert.False(t, got[1].Record.IsActive)
}

func TestRedisScopesByTable(t *testing.T) {
	f, _ := setupRedisFeed(t)
	ctx := context.Background()

	var rec recorder
	sub, err := f.Subscribe(ctx, "posts", rec.handle)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, f.Publish(ctx, event(models.ChangeInsert, "v1", "u1")))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestRedisDropsUndecodablePayloads(t *testing.T) {
	f, mr := setupRedisFeed(t)
	ctx := context.Background()

	var rec recorder
	sub, err := f.Subscribe(ctx, models.VideosTable, rec.handle)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	mr.Publish(Channel(models.VideosTable), "{not json")
	require.NoError(t, f.Publish(ctx, event(models.ChangeInsert, "v2", "u1")))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"v2"}, rec.ids())
}

func TestRedisUnsubscribe(t *testing.T) {
	f, _ := setupRedisFeed(t)
	ctx := context.Background()

	var rec recorder
	sub, err := f.Subscribe(ctx, models.VideosTable, rec.handle)
	require.NoError(t, err)

	require.NoError(t, sub.Unsubscribe())
	_ = sub.Unsubscribe()

	_ = f.Publish(ctx, event(models.ChangeInsert, "v1", "u1"))
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestRedisSubscribeFailsWhenServerDown(t *testing.T) {
	f, mr := setupRedisFeed(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := f.Subscribe(ctx, models.VideosTable, func(models.ChangeEvent) {})
	assert.Error(t, err)
	assert.Error(t, f.Publish(ctx, event(models.ChangeInsert, "v1", "u1")))
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "videosync:changes:exercise_videos", Channel(models.VideosTable))
}
