package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/videosync/internal/library"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

type result struct {
	code   int
	stdout string
	stderr string
}

// localCLI returns a runner bound to a fresh SQLite library and selection file
func localCLI(t *testing.T) (func(args ...string) result, string) {
	t.Helper()
	dir := t.TempDir()
	configPath := filepath.Join(dir, "videolib.yaml")
	config := fmt.Sprintf(`database:
  driver: sqlite
sqlite:
  path: %s
redis:
  enabled: false
feed:
  driver: memory
selection:
  driver: file
  path: %s
`, filepath.Join(dir, "videos.db"), filepath.Join(dir, "selection.json"))
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0o600))

	return func(args ...string) result {
		t.Helper()
		var stdout, stderr bytes.Buffer
		full := append([]string{"--config", configPath, "--user", "user-1"}, args...)
		code := run(context.Background(), full, &stdout, &stderr)
		return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
	}, configPath
}

func addJSON(t *testing.T, cli func(args ...string) result, args ...string) *models.Video {
	t.Helper()
	res := cli(append([]string{"--json", "add"}, args...)...)
	require.Equal(t, 0, res.code, res.stderr)
	var v models.Video
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &v))
	return &v
}

func TestRunUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, run(context.Background(), nil, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "Commands:")

	stdout.Reset()
	assert.Equal(t, 2, run(context.Background(), []string{"frobnicate"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Unknown command: frobnicate")
}

func TestRunRequiresUser(t *testing.T) {
	t.Setenv("VIDEOSYNC_USER", "")
	var stdout, stderr bytes.Buffer

	code := run(context.Background(), []string{"list"}, &stdout, &stderr)

	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "--user")
}

func TestAddAndList(t *testing.T) {
	cli, _ := localCLI(t)

	res := cli("add", "https://cdn.example.com/heel-slides.mp4", "--title", "Heel slides", "--category", "Knee")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Added Heel slides")

	res = cli("add", "--category", "Shoulder", "https://youtu.be/abc123")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, models.DefaultTitle)

	res = cli("list")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Heel slides")
	assert.Contains(t, res.stdout, models.DefaultTitle)

	res = cli("list", "--category", "Knee")
	require.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "Heel slides")
	assert.NotContains(t, res.stdout, models.DefaultTitle)

	res = cli("categories")
	assert.Equal(t, "All\nShoulder\nKnee\n", res.stdout, "newest video's category comes first")
}

func TestAddRejectsBadURL(t *testing.T) {
	cli, _ := localCLI(t)

	res := cli("add", "not a url")

	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "Error: failed to add video")

	res = cli("add")
	assert.Equal(t, 2, res.code)
	assert.Contains(t, res.stderr, "Usage: videolib add")
}

func TestSelectionSurvivesSessions(t *testing.T) {
	cli, _ := localCLI(t)
	first := addJSON(t, cli, "https://cdn.example.com/a.mp4", "--title", "Bridges")
	addJSON(t, cli, "https://cdn.example.com/b.mp4", "--title", "Clamshells")

	// Adding selects the new video
	res := cli("current")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Clamshells")

	res = cli("select", first.ID)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Now playing Bridges")

	res = cli("current")
	require.Equal(t, 0, res.code)
	assert.Contains(t, res.stdout, "Bridges")
	assert.Contains(t, res.stdout, "Last played:", "the lastPlayed stamp is written before exit")

	res = cli("clear")
	require.Equal(t, 0, res.code)
	res = cli("current")
	assert.Contains(t, res.stdout, "No video selected")

	res = cli("select", "missing")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, `no video with id "missing"`)
}

func TestRemove(t *testing.T) {
	cli, _ := localCLI(t)
	v := addJSON(t, cli, "https://cdn.example.com/a.mp4")

	res := cli("remove", v.ID)
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Removed "+v.ID)

	res = cli("list")
	assert.Contains(t, res.stdout, "No videos")
	res = cli("current")
	assert.Contains(t, res.stdout, "No video selected")

	res = cli("remove", "missing")
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, "video not found")
}

func TestUpdate(t *testing.T) {
	cli, _ := localCLI(t)
	v := addJSON(t, cli, "https://cdn.example.com/a.mp4", "--category", "Knee")

	res := cli("update", v.ID, "--title", "Wall sits", "--description", "Hold 30 seconds")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Wall sits")
	assert.Contains(t, res.stdout, "Hold 30 seconds")
	assert.Contains(t, res.stdout, "Knee", "untouched fields keep their values")

	res = cli("update", v.ID)
	assert.Equal(t, 1, res.code)
	assert.Contains(t, res.stderr, library.ErrEmptyPatch.Error())

	res = cli("update")
	assert.Equal(t, 2, res.code)
}

func TestSearchAndStats(t *testing.T) {
	cli, _ := localCLI(t)
	addJSON(t, cli, "https://cdn.example.com/a.mp4", "--title", "Knee raises", "--category", "Knee")
	addJSON(t, cli, "https://cdn.example.com/b.mp4", "--title", "Shoulder rolls", "--category", "Shoulder")
	addJSON(t, cli, "https://cdn.example.com/c.mp4", "--title", "Knee bends", "--category", "Knee")

	res := cli("search", "knee")
	require.Equal(t, 0, res.code, res.stderr)
	assert.Contains(t, res.stdout, "Knee raises")
	assert.Contains(t, res.stdout, "Knee bends")
	assert.NotContains(t, res.stdout, "Shoulder rolls")

	res = cli("--json", "stats")
	require.Equal(t, 0, res.code, res.stderr)
	var stats library.Stats
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &stats))
	assert.Equal(t, library.Stats{
		Total:      3,
		ByCategory: map[string]int{"Knee": 2, "Shoulder": 1},
		HasCurrent: true,
	}, stats)

	res = cli("stats")
	assert.Contains(t, res.stdout, "Total:")
	assert.Contains(t, res.stdout, "Knee:")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWatchStopsOnCancel(t *testing.T) {
	cli, configPath := localCLI(t)
	addJSON(t, cli, "https://cdn.example.com/a.mp4", "--title", "Bridges")

	ctx, cancel := context.WithCancel(context.Background())
	var stdout, stderr syncBuffer
	done := make(chan int, 1)
	go func() {
		done <- run(ctx, []string{"--config", configPath, "--user", "user-1", "watch"}, &stdout, &stderr)
	}()

	require.Eventually(t, func() bool {
		return strings.Contains(stdout.String(), `videos=1 current="Bridges"`)
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, 0, code, stderr.String())
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestLatestStateKeepsNewest(t *testing.T) {
	latest := newLatestState(library.State{Version: 3, SelectedCategory: "Knee"})

	assert.False(t, latest.offer(library.State{Version: 2, SelectedCategory: "Hip"}))
	assert.False(t, latest.offer(library.State{Version: 3, SelectedCategory: "Hip"}))
	assert.Equal(t, "Knee", latest.get().SelectedCategory)

	assert.True(t, latest.offer(library.State{Version: 5, SelectedCategory: "Shoulder"}))
	assert.False(t, latest.offer(library.State{Version: 4, SelectedCategory: "Hip"}))
	assert.Equal(t, "Shoulder", latest.get().SelectedCategory)
}
